package app

import (
	"context"
	"os"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), DefaultConfig(), log.WithField("test", "memory-storage"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(memory) failed: %v", err)
	}
	if deps.store == nil || deps.catalog == nil || deps.idempotencyRepo == nil || deps.pinger == nil {
		t.Fatalf("memory dependencies must be initialized: %+v", deps)
	}
	if _, err := deps.catalog.Product(context.Background(), "sku-tea"); err != nil {
		t.Fatalf("demo catalog must be seeded: %v", err)
	}
	if err := deps.close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestInitRuntimeDependencies_MemoryWithoutDemoCatalog(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.SeedDemoCatalog = false
	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "memory-storage"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(memory) failed: %v", err)
	}
	if _, err := deps.catalog.Product(context.Background(), "sku-tea"); err == nil {
		t.Fatal("catalog must be empty without demo seed")
	}
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	if _, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-missing-dsn")); err == nil {
		t.Fatal("expected error when postgres driver is selected without DSN")
	}
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.StorageDriver = "sqlite"
	if _, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "unsupported-driver")); err == nil {
		t.Fatal("expected error for unsupported storage driver")
	}
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("CART_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer func() { _ = deps.close() }()

	if err := deps.pinger.Ping(context.Background()); err != nil {
		t.Fatalf("expected reachable storage: %v", err)
	}
	if _, err := deps.catalog.Product(context.Background(), "sku-kettle"); err != nil {
		t.Fatalf("expected seeded catalog: %v", err)
	}
}
