package models_test

import (
	"math/rand"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/taminot_backend/models"
)

func mov(orgId string, productId int, variant string, qty int64, txnType models.TransactionType) *models.StockTransaction {
	return &models.StockTransaction{
		OrgId:     orgId,
		ProductId: productId,
		Variant:   models.NormalizeVariant(variant),
		Qty:       qty,
		Type:      txnType,
		CreatedAt: time.Now(),
	}
}

func TestReduceBalancesSequence(t *testing.T) {
	txns := []*models.StockTransaction{
		mov("3", 1, "", 10, models.TransactionTypeIn),
		mov("3", 1, "", 3, models.TransactionTypeOut),
		mov("3", 1, "", 5, models.TransactionTypeIn),
	}
	balances := models.ReduceBalances(txns, "3")
	if got := balances[models.BalanceKey(1, "")]; got != 12 {
		t.Fatalf("expected balance 12; got %d", got)
	}
	if len(balances) != 1 {
		t.Fatalf("expected a single balance key; got %d", len(balances))
	}
}

func TestReduceBalancesIsCommutative(t *testing.T) {
	base := []*models.StockTransaction{
		mov("3", 1, "", 10, models.TransactionTypeIn),
		mov("3", 1, "", 3, models.TransactionTypeOut),
		mov("3", 1, "O(I) Rh+", 7, models.TransactionTypeIn),
		mov("3", 2, "", 4, models.TransactionTypeIn),
		mov("3", 1, "", 5, models.TransactionTypeIn),
		mov("3", 2, "", 9, models.TransactionTypeOut),
	}
	want := models.ReduceBalances(base, "3")

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		shuffled := make([]*models.StockTransaction, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		got := models.ReduceBalances(shuffled, "3")
		if len(got) != len(want) {
			t.Fatalf("permutation %d: key count changed: got %d want %d", i, len(got), len(want))
		}
		for key, qty := range want {
			if got[key] != qty {
				t.Fatalf("permutation %d: key %q: got %d want %d", i, key, got[key], qty)
			}
		}
	}
}

func TestReduceBalancesScopesAreIndependent(t *testing.T) {
	txns := []*models.StockTransaction{
		mov(models.CentralOrgId, 1, "", 100, models.TransactionTypeIn),
		mov("3", 1, "", 10, models.TransactionTypeIn),
		mov("4", 1, "", 25, models.TransactionTypeIn),
		mov("4", 1, "", 5, models.TransactionTypeOut),
	}

	key := models.BalanceKey(1, "")
	if got := models.ReduceBalances(txns, models.CentralOrgId)[key]; got != 100 {
		t.Fatalf("central scope: got %d want 100", got)
	}
	if got := models.ReduceBalances(txns, "3")[key]; got != 10 {
		t.Fatalf("org 3: got %d want 10", got)
	}
	if got := models.ReduceBalances(txns, "4")[key]; got != 20 {
		t.Fatalf("org 4: got %d want 20", got)
	}
	if got := models.ReduceBalances(txns, "5"); len(got) != 0 {
		t.Fatalf("org 5 should have no balances; got %v", got)
	}
}

func TestReduceBalancesAllowsNegative(t *testing.T) {
	txns := []*models.StockTransaction{
		mov("3", 1, "", 2, models.TransactionTypeIn),
		mov("3", 1, "", 5, models.TransactionTypeOut),
	}
	if got := models.ReduceBalances(txns, "3")[models.BalanceKey(1, "")]; got != -3 {
		t.Fatalf("expected -3; got %d", got)
	}
}

func TestReduceBalancesAsOf(t *testing.T) {
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	early := mov("3", 1, "", 10, models.TransactionTypeIn)
	early.CreatedAt = cutoff.Add(-time.Hour)
	late := mov("3", 1, "", 4, models.TransactionTypeOut)
	late.CreatedAt = cutoff.Add(time.Hour)

	got := models.ReduceBalancesAsOf([]*models.StockTransaction{early, late}, "3", cutoff)
	if got[models.BalanceKey(1, "")] != 10 {
		t.Fatalf("expected 10 as of cutoff; got %d", got[models.BalanceKey(1, "")])
	}
}

func TestBalanceKeyRoundTrip(t *testing.T) {
	cases := []struct {
		productId int
		variant   string
		want      string
	}{
		{1, "", "1::default"},
		{1, "default", "1::default"},
		{7, "O(I) Rh+", "7::O(I) Rh+"},
		{42, "AB(IV) Rh-", "42::AB(IV) Rh-"},
	}
	for _, tc := range cases {
		key := models.BalanceKey(tc.productId, tc.variant)
		if key != tc.want {
			t.Fatalf("BalanceKey(%d, %q) = %q; want %q", tc.productId, tc.variant, key, tc.want)
		}
		productId, variant, err := models.ParseBalanceKey(key)
		if err != nil {
			t.Fatalf("ParseBalanceKey(%q): %v", key, err)
		}
		if productId != tc.productId || variant != models.NormalizeVariant(tc.variant) {
			t.Fatalf("ParseBalanceKey(%q) = (%d, %q)", key, productId, variant)
		}
	}

	if _, _, err := models.ParseBalanceKey("garbage"); err == nil {
		t.Fatal("expected error for malformed key")
	}
	if _, _, err := models.ParseBalanceKey("::default"); err == nil {
		t.Fatal("expected error for missing product id")
	}
}
