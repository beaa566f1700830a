package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/database"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/events"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/gateway"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/models"
)

const testTenant = "tenant-test"

// testDB bundles the database with the sandbox gateway and in-memory
// publisher most store tests need together.
type testDB struct {
	db  *sql.DB
	gw  *gateway.Sandbox
	pub *events.MemoryPublisher
}

func newTestDB(t *testing.T) (*testDB, func()) {
	db, cleanup := setupTestDB(t)
	return &testDB{
		db:  db,
		gw:  gateway.NewSandbox("test-secret"),
		pub: events.NewMemoryPublisher(),
	}, cleanup
}

func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:14-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	if err := runTestMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close database: %v", err)
		}
		if err := postgres.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return db, cleanup
}

func runTestMigrations(db *sql.DB) error {
	migrationDir := "../../migrations"
	files, err := os.ReadDir(migrationDir)
	if err != nil {
		return fmt.Errorf("read migration directory: %w", err)
	}

	var migrationFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".up.sql") {
			migrationFiles = append(migrationFiles, file.Name())
		}
	}

	sort.Strings(migrationFiles)

	for _, filename := range migrationFiles {
		filePath := filepath.Join(migrationDir, filename)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", filename, err)
		}

		err = database.WithTransaction(context.Background(), db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
			_, execErr := tx.Exec(string(content))
			return execErr
		})
		if err != nil {
			return fmt.Errorf("execute migration %s: %w", filename, err)
		}
	}

	return nil
}

func createTestVariant(t *testing.T, db *sql.DB, sku string, price int64, stock int) *models.Variant {
	t.Helper()

	variant, err := CreateVariant(t.Context(), db, testTenant, sku, "Variant "+sku, decimal.NewFromInt(price), stock)
	if err != nil {
		t.Fatalf("Create variant %s: %v", sku, err)
	}

	return variant
}

// placeTestOrder places an order for the given variant quantities through the
// sandbox gateway.
func placeTestOrder(t *testing.T, db *sql.DB, gw gateway.Gateway, pub events.Publisher, items []OrderItemRequest) *models.Order {
	t.Helper()

	order, err := PlaceOrder(t.Context(), db, gw, pub, PlaceOrderRequest{
		TenantID:   testTenant,
		CustomerID: "cust-1",
		Items:      items,
	})
	if err != nil {
		t.Fatalf("Place order: %v", err)
	}

	return order
}

// deliverTestOrder drives a freshly placed order all the way to DELIVERED:
// capture, confirm, pack, ship, deliver.
func deliverTestOrder(t *testing.T, db *sql.DB, gw gateway.Gateway, pub events.Publisher, order *models.Order) *models.Order {
	t.Helper()
	ctx := t.Context()

	payment, err := GetPaymentByOrder(ctx, db, testTenant, order.ID)
	if err != nil {
		t.Fatalf("Get payment: %v", err)
	}
	if _, err := CapturePayment(ctx, db, gw, pub, testTenant, order.ID, "pay_"+order.OrderNumber, payment.Amount); err != nil {
		t.Fatalf("Capture payment: %v", err)
	}
	if _, err := ConfirmOrder(ctx, db, pub, testTenant, order.ID); err != nil {
		t.Fatalf("Confirm order: %v", err)
	}
	if _, err := PackOrder(ctx, db, pub, testTenant, order.ID); err != nil {
		t.Fatalf("Pack order: %v", err)
	}
	if _, err := ShipOrder(ctx, db, pub, testTenant, order.ID, "bluedart", "TRK-1"); err != nil {
		t.Fatalf("Ship order: %v", err)
	}
	delivered, err := DeliverOrder(ctx, db, pub, testTenant, order.ID)
	if err != nil {
		t.Fatalf("Deliver order: %v", err)
	}

	return delivered
}

// backdateDelivery shifts an order's delivery timestamp into the past.
func backdateDelivery(t *testing.T, db *sql.DB, orderID int64, age time.Duration) {
	t.Helper()

	_, err := db.Exec(`UPDATE orders SET delivered_at = NOW() - $1::interval WHERE id = $2`,
		fmt.Sprintf("%d seconds", int64(age.Seconds())), orderID)
	if err != nil {
		t.Fatalf("Backdate delivery: %v", err)
	}
}
