package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
	"github.com/vladislavdragonenkov/cartsync/internal/health"
	"github.com/vladislavdragonenkov/cartsync/internal/storage/memory"
	"github.com/vladislavdragonenkov/cartsync/internal/storage/postgres"
)

// runtimeDependencies содержит хранилища, выбранные по StorageDriver.
type runtimeDependencies struct {
	store           domain.CartStore
	catalog         domain.Catalog
	idempotencyRepo domain.IdempotencyRepository
	pinger          health.Pinger
	close           func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		catalog := memory.NewCatalog()
		if cfg.SeedDemoCatalog {
			for _, product := range memory.DemoProducts() {
				catalog.Put(product)
			}
		}
		store := memory.NewCartStore()
		logger.Info("using in-memory cart storage")
		return &runtimeDependencies{
			store:           store,
			catalog:         catalog,
			idempotencyRepo: memory.NewIdempotencyRepository(),
			pinger:          store,
			close:           func() error { return nil },
		}, nil

	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return nil, fmt.Errorf("postgres storage requires %s", EnvPostgresDSN)
		}
		pg, err := postgres.Open(ctx, dsn, postgres.WithMaxOpenConns(cfg.PostgresMaxConns))
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := pg.MigrateUp(ctx, 0); err != nil {
				_ = pg.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		if cfg.SeedDemoCatalog {
			for _, product := range memory.DemoProducts() {
				if err := postgres.UpsertProduct(ctx, pg, product); err != nil {
					_ = pg.Close()
					return nil, fmt.Errorf("seed catalog: %w", err)
				}
			}
		}
		logger.Info("using postgres cart storage")
		return &runtimeDependencies{
			store:           postgres.NewCartStore(pg),
			catalog:         postgres.NewCatalog(pg),
			idempotencyRepo: postgres.NewIdempotencyRepository(pg),
			pinger:          pg,
			close:           pg.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.StorageDriver)
	}
}
