package models

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BalanceKey renders the ledger key for a product/variant pair.
// Variant-less movements must already be normalized to the sentinel.
func BalanceKey(productId int, variant string) string {
	return fmt.Sprintf("%d::%s", productId, NormalizeVariant(variant))
}

// ParseBalanceKey splits a ledger key back into its product id and
// variant.
func ParseBalanceKey(key string) (int, string, error) {
	sep := strings.Index(key, "::")
	if sep < 1 {
		return 0, "", fmt.Errorf("malformed balance key %q", key)
	}
	productId, err := strconv.Atoi(key[:sep])
	if err != nil {
		return 0, "", fmt.Errorf("malformed balance key %q", key)
	}
	return productId, key[sep+2:], nil
}

// ReduceBalances folds movements into per-product/per-variant balances for
// one scope. Pure function of the transaction list: addition is
// commutative, so iteration order does not matter. Keys with no movements
// simply stay absent (zero). Balances may go negative; over-consumption is
// not rejected at this layer.
func ReduceBalances(txns []*StockTransaction, orgId string) map[string]int64 {
	balances := make(map[string]int64)
	for _, txn := range txns {
		if txn.OrgId != orgId {
			continue
		}
		key := BalanceKey(txn.ProductId, txn.Variant)
		switch txn.Type {
		case TransactionTypeIn:
			balances[key] += txn.Qty
		case TransactionTypeOut:
			balances[key] -= txn.Qty
		}
	}
	return balances
}

// ReduceBalancesAsOf is ReduceBalances restricted to movements recorded at
// or before the given instant.
func ReduceBalancesAsOf(txns []*StockTransaction, orgId string, asOf time.Time) map[string]int64 {
	limited := make([]*StockTransaction, 0, len(txns))
	for _, txn := range txns {
		if txn.CreatedAt.After(asOf) {
			continue
		}
		limited = append(limited, txn)
	}
	return ReduceBalances(limited, orgId)
}

// OrgBalances loads the scope's movements and folds them. Recomputed on
// every query; transaction volume here is reporting-scale, so no cache or
// invalidation exists.
func OrgBalances(ctx context.Context, orgId string) (map[string]int64, error) {
	txns, err := GetStockTransactions(ctx, orgId)
	if err != nil {
		return nil, err
	}
	return ReduceBalances(txns, orgId), nil
}
