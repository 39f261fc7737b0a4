package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/shopspring/decimal"
)

func TestRentalFlowKeepsStockLedgerBalanced(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "rentiq_test")

	connectCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := config.ConnectDatabaseWithRetry(connectCtx); err != nil {
		t.Fatalf("ConnectDatabaseWithRetry: %v", err)
	}
	if err := config.ConnectRedisWithRetry(connectCtx); err != nil {
		t.Fatalf("ConnectRedisWithRetry: %v", err)
	}
	if err := models.MigrateTable(); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}

	if _, _, err := models.BootstrapAdmin(context.Background(), &models.NewBootstrap{
		Business: models.NewBusiness{Name: "Test Rentals", Email: "owner@test.local"},
		Username: "owner",
		Name:     "Owner",
		Password: "s3cret-pass",
	}); err != nil {
		t.Fatalf("BootstrapAdmin: %v", err)
	}
	ctx, _, err := models.ActAs(context.Background(), "owner")
	if err != nil {
		t.Fatalf("ActAs: %v", err)
	}

	client, err := models.CreateClient(ctx, &models.NewClient{Name: "Acme Events"})
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	item, err := models.CreateInventoryItem(ctx, &models.NewInventoryItem{
		Code:          "CHAIR-01",
		Name:          "Folding chair",
		TotalQuantity: 100,
		DailyRate:     decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("CreateInventoryItem: %v", err)
	}

	issued := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	challan, err := models.CreateChallan(ctx, &models.NewChallan{
		ClientId:  client.ID,
		IssueDate: issued,
		Details:   []*models.NewChallanDetail{{ItemId: item.ID, Quantity: 40}},
	})
	if err != nil {
		t.Fatalf("CreateChallan: %v", err)
	}
	if len(challan.Details) != 1 {
		t.Fatalf("challan details = %d, want 1", len(challan.Details))
	}

	returned, err := models.ReturnChallanItems(ctx, challan.ID, &models.NewChallanReturn{
		ReturnDate: issued.AddDate(0, 0, 5),
		Lines: []*models.NewReturnLine{{
			DetailId:         challan.Details[0].ID,
			ReturnedQuantity: 30,
			LostQuantity:     2,
		}},
	})
	if err != nil {
		t.Fatalf("ReturnChallanItems: %v", err)
	}
	if returned.Status != models.ChallanStatusPartiallyReturned {
		t.Fatalf("status = %s, want %s", returned.Status, models.ChallanStatusPartiallyReturned)
	}

	if _, err := models.CreatePayment(ctx, &models.NewPayment{
		ClientId:    client.ID,
		ChallanId:   &challan.ID,
		PaymentDate: issued.AddDate(0, 0, 5),
		Amount:      decimal.NewFromInt(500),
		Mode:        models.PaymentModeCash,
	}); err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}

	after, err := models.GetInventoryItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetInventoryItem: %v", err)
	}
	// 40 out, 30 back, 2 lost: 8 still rented out of 98 owned.
	if after.TotalQuantity != 98 || after.RentedQuantity != 8 {
		t.Fatalf("stock = total %d rented %d, want 98/8", after.TotalQuantity, after.RentedQuantity)
	}

	drift, err := models.ReconcileStock(ctx, false)
	if err != nil {
		t.Fatalf("ReconcileStock: %v", err)
	}
	if len(drift) != 0 {
		t.Fatalf("unexpected drift: %+v", drift[0])
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("rentiq-test-redis-%d", time.Now().UnixNano())
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
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := dockerRun("exec", name, "redis-cli", "ping"); err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("rentiq-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=rentiq_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent"); err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

// dockerHostPort parses "127.0.0.1:49154" style output of docker port.
func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	m := regexp.MustCompile(`:(\d+)`).FindStringSubmatch(out)
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
	b, err := exec.Command("docker", args...).CombinedOutput()
	return string(b), err
}
