package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/taminot_backend/config"
	"bitbucket.org/mmdatafocus/taminot_backend/models"
	"bitbucket.org/mmdatafocus/taminot_backend/utils"
)

// Regression: approving a requisition must flip the status and append
// exactly one IN movement for the requesting org, atomically; terminal
// requisitions must reject further decisions without emitting anything;
// deleting a requisition must leave its emitted movements untouched.
func TestRequisitionApprovalEmitsStock(t *testing.T) {
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
		Username: "markaz1",
		Name:     "Markaz 1",
		Password: "parol123",
		Role:     models.UserRoleOrg,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	orgScope := strconv.Itoa(org.ID)

	orgCtx := utils.SetUserIdInContext(ctx, org.ID)
	orgCtx = utils.SetUserNameInContext(orgCtx, org.Name)
	orgCtx = utils.SetUsernameInContext(orgCtx, org.Username)
	orgCtx = utils.SetIsAdminInContext(orgCtx, false)

	product, err := models.CreateProduct(adminCtx, &models.NewProduct{
		Name:     "Eritrotsitar massasi",
		Unit:     "doza",
		Variants: []string{"O(I) Rh+", "A(II) Rh+"},
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	if _, err := models.RecordCentralIntake(adminCtx, &models.NewStockEntry{
		ProductId: product.ID,
		Variant:   "O(I) Rh+",
		Qty:       100,
		Comment:   "Yetkazib beruvchidan",
	}); err != nil {
		t.Fatalf("RecordCentralIntake: %v", err)
	}
	if _, err := models.RecordCentralIntake(orgCtx, &models.NewStockEntry{
		ProductId: product.ID, Variant: "O(I) Rh+", Qty: 1,
	}); err == nil {
		t.Fatal("central intake must be administrator-only")
	}

	requisition, err := models.CreateRequisition(orgCtx, &models.NewRequisition{
		ProductId: product.ID,
		Variant:   "O(I) Rh+",
		Qty:       4,
		Comment:   "Operatsiya uchun",
	})
	if err != nil {
		t.Fatalf("CreateRequisition: %v", err)
	}
	if requisition.Status != models.RequisitionStatusPending {
		t.Fatalf("new requisition must be PENDING; got %s", requisition.Status)
	}
	if requisition.OrgId != orgScope {
		t.Fatalf("requisition org scope: got %q want %q", requisition.OrgId, orgScope)
	}

	// Organizations must not decide requisitions.
	if _, err := models.UpdateRequisitionStatus(orgCtx, requisition.ID, &models.StatusUpdateInput{
		Status: models.RequisitionStatusApproved,
	}); err == nil {
		t.Fatal("org user must not decide requisitions")
	}

	decided, err := models.UpdateRequisitionStatus(adminCtx, requisition.ID, &models.StatusUpdateInput{
		Status: models.RequisitionStatusApproved,
	})
	if err != nil {
		t.Fatalf("UpdateRequisitionStatus: %v", err)
	}
	if decided.Status != models.RequisitionStatusApproved {
		t.Fatalf("expected APPROVED; got %s", decided.Status)
	}

	key := models.BalanceKey(product.ID, "O(I) Rh+")

	orgTxns, err := models.GetStockTransactions(adminCtx, orgScope)
	if err != nil {
		t.Fatalf("GetStockTransactions: %v", err)
	}
	if len(orgTxns) != 1 {
		t.Fatalf("expected exactly one movement for the org; got %d", len(orgTxns))
	}
	if orgTxns[0].Type != models.TransactionTypeIn || orgTxns[0].Qty != 4 {
		t.Fatalf("unexpected emitted movement: %+v", orgTxns[0])
	}
	balances := models.ReduceBalances(orgTxns, orgScope)
	if balances[key] != 4 {
		t.Fatalf("org balance: got %d want 4", balances[key])
	}

	// The central scope never moves on approval.
	centralBalances, err := models.OrgBalances(adminCtx, models.CentralOrgId)
	if err != nil {
		t.Fatalf("OrgBalances(central): %v", err)
	}
	if centralBalances[key] != 100 {
		t.Fatalf("central balance: got %d want 100", centralBalances[key])
	}

	// Terminal requisitions reject further decisions and emit nothing.
	if _, err := models.UpdateRequisitionStatus(adminCtx, requisition.ID, &models.StatusUpdateInput{
		Status: models.RequisitionStatusRejected,
	}); !utils.IsInvalidInput(err) {
		t.Fatalf("expected invalid-input on re-decision; got %v", err)
	}
	orgTxns, _ = models.GetStockTransactions(adminCtx, orgScope)
	if len(orgTxns) != 1 {
		t.Fatalf("re-decision must not emit movements; got %d", len(orgTxns))
	}

	// Rejection emits nothing.
	second, err := models.CreateRequisition(orgCtx, &models.NewRequisition{
		ProductId: product.ID, Variant: "A(II) Rh+", Qty: 2,
	})
	if err != nil {
		t.Fatalf("CreateRequisition(second): %v", err)
	}
	if _, err := models.UpdateRequisitionStatus(adminCtx, second.ID, &models.StatusUpdateInput{
		Status: models.RequisitionStatusRejected,
	}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	orgTxns, _ = models.GetStockTransactions(adminCtx, orgScope)
	if len(orgTxns) != 1 {
		t.Fatalf("rejection must not emit movements; got %d", len(orgTxns))
	}

	// Consumption walks the same ledger down.
	if _, err := models.RecordConsumption(orgCtx, orgScope, &models.NewStockEntry{
		ProductId: product.ID, Variant: "O(I) Rh+", Qty: 3,
	}); err != nil {
		t.Fatalf("RecordConsumption: %v", err)
	}
	orgBalances, err := models.OrgBalances(adminCtx, orgScope)
	if err != nil {
		t.Fatalf("OrgBalances(org): %v", err)
	}
	if orgBalances[key] != 1 {
		t.Fatalf("org balance after consumption: got %d want 1", orgBalances[key])
	}

	// Deleting the approved requisition leaves the ledger untouched.
	if _, err := models.DeleteRequisition(adminCtx, requisition.ID); err != nil {
		t.Fatalf("DeleteRequisition: %v", err)
	}
	orgBalances, _ = models.OrgBalances(adminCtx, orgScope)
	if orgBalances[key] != 1 {
		t.Fatalf("deletion must not adjust stock: got %d want 1", orgBalances[key])
	}
	if _, err := models.GetRequisition(adminCtx, requisition.ID); !utils.IsNotFound(err) {
		t.Fatalf("expected not-found for deleted requisition; got %v", err)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("taminot-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("taminot-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=taminot_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
