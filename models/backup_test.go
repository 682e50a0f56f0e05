package models_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/taminot_backend/config"
	"bitbucket.org/mmdatafocus/taminot_backend/models"
	"bitbucket.org/mmdatafocus/taminot_backend/utils"
)

// A snapshot serialized and parsed back must fold to the same balances.
func TestSnapshotJSONRoundTrip(t *testing.T) {
	user := models.User{ID: 3, Username: "markaz1", Name: "Markaz 1", Role: models.UserRoleOrg, IsActive: utils.NewTrue()}
	snapshot := models.Snapshot{
		Version:   1,
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Users: []*models.SnapshotUser{
			{User: user, PasswordHash: "$2a$10$abcdefghijklmnopqrstuv"},
		},
		Products: []*models.Product{
			{ID: 1, Name: "Eritrotsitar massasi", Unit: "doza", Variants: []models.ProductVariant{
				{ID: 1, ProductId: 1, Name: "O(I) Rh+", Position: 0},
			}},
		},
		Requests: []*models.Requisition{
			{ID: 5, OrgId: "3", ProductId: 1, ProductName: "Eritrotsitar massasi", Variant: "O(I) Rh+", Qty: 4, Status: models.RequisitionStatusApproved},
		},
		Stock: []*models.StockTransaction{
			{ID: "a", OrgId: "3", ProductId: 1, Variant: "O(I) Rh+", Qty: 10, Type: models.TransactionTypeIn},
			{ID: "b", OrgId: "3", ProductId: 1, Variant: "O(I) Rh+", Qty: 3, Type: models.TransactionTypeOut},
			{ID: "c", OrgId: models.CentralOrgId, ProductId: 1, Variant: "O(I) Rh+", Qty: 50, Type: models.TransactionTypeIn},
		},
	}

	data, err := json.Marshal(&snapshot)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var restored models.Snapshot
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if restored.Version != snapshot.Version {
		t.Fatalf("version changed: got %d", restored.Version)
	}
	if len(restored.Users) != 1 || restored.Users[0].PasswordHash == "" {
		t.Fatal("password hash must survive the round trip")
	}
	if restored.Users[0].Username != "markaz1" {
		t.Fatalf("username changed: got %q", restored.Users[0].Username)
	}
	if len(restored.Products) != 1 || len(restored.Products[0].Variants) != 1 {
		t.Fatal("product variants must survive the round trip")
	}
	if len(restored.Requests) != 1 || restored.Requests[0].Status != models.RequisitionStatusApproved {
		t.Fatal("requisition status must survive the round trip")
	}

	key := models.BalanceKey(1, "O(I) Rh+")
	before := models.ReduceBalances(snapshot.Stock, "3")
	after := models.ReduceBalances(restored.Stock, "3")
	if before[key] != 7 || after[key] != before[key] {
		t.Fatalf("balances diverged: before %d after %d", before[key], after[key])
	}
	if got := models.ReduceBalances(restored.Stock, models.CentralOrgId)[key]; got != 50 {
		t.Fatalf("central balance diverged: got %d", got)
	}
}

// Regression: BuildSnapshot -> json -> RestoreSnapshot must reproduce the
// dataset, balances included, on a live database.
func TestSnapshotRestoreRoundTrip(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "taminot_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	adminCtx := utils.SetUserIdInContext(ctx, 1)
	adminCtx = utils.SetUserNameInContext(adminCtx, "Administrator")
	adminCtx = utils.SetUsernameInContext(adminCtx, "admin")
	adminCtx = utils.SetIsAdminInContext(adminCtx, true)

	org, err := models.CreateUser(adminCtx, &models.NewUser{
		Username: "markaz2", Name: "Markaz 2", Password: "parol123", Role: models.UserRoleOrg,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	product, err := models.CreateProduct(adminCtx, &models.NewProduct{
		Name: "Trombotsitar massasi", Unit: "doza", Variants: []string{"B(III) Rh+"},
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if _, err := models.RecordCentralIntake(adminCtx, &models.NewStockEntry{
		ProductId: product.ID, Variant: "B(III) Rh+", Qty: 30,
	}); err != nil {
		t.Fatalf("RecordCentralIntake: %v", err)
	}

	orgCtx := utils.SetUserIdInContext(ctx, org.ID)
	orgCtx = utils.SetUserNameInContext(orgCtx, org.Name)
	orgCtx = utils.SetUsernameInContext(orgCtx, org.Username)
	orgCtx = utils.SetIsAdminInContext(orgCtx, false)
	requisition, err := models.CreateRequisition(orgCtx, &models.NewRequisition{
		ProductId: product.ID, Variant: "B(III) Rh+", Qty: 6,
	})
	if err != nil {
		t.Fatalf("CreateRequisition: %v", err)
	}
	if _, err := models.UpdateRequisitionStatus(adminCtx, requisition.ID, &models.StatusUpdateInput{
		Status: models.RequisitionStatusApproved,
	}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	snapshot, err := models.BuildSnapshot(adminCtx)
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}

	var parsed models.Snapshot
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if err := models.RestoreSnapshot(adminCtx, &parsed); err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}

	orgScope := strconv.Itoa(org.ID)
	key := models.BalanceKey(product.ID, "B(III) Rh+")
	orgBalances, err := models.OrgBalances(adminCtx, orgScope)
	if err != nil {
		t.Fatalf("OrgBalances(org): %v", err)
	}
	if orgBalances[key] != 6 {
		t.Fatalf("org balance after restore: got %d want 6", orgBalances[key])
	}
	centralBalances, err := models.OrgBalances(adminCtx, models.CentralOrgId)
	if err != nil {
		t.Fatalf("OrgBalances(central): %v", err)
	}
	if centralBalances[key] != 30 {
		t.Fatalf("central balance after restore: got %d want 30", centralBalances[key])
	}

	// Restored credentials still authenticate.
	info, err := models.Login(adminCtx, "markaz2", "parol123")
	if err != nil {
		t.Fatalf("Login after restore: %v", err)
	}
	if info.Role != models.UserRoleOrg {
		t.Fatalf("restored role: got %s", info.Role)
	}
}
