package app

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/kart-promotions/internal/domain/auth"
	"github.com/xenking/kart-promotions/internal/domain/customer"
	"github.com/xenking/kart-promotions/internal/domain/discount"
	"github.com/xenking/kart-promotions/internal/domain/ledger"
	"github.com/xenking/kart-promotions/internal/domain/order"
	"github.com/xenking/kart-promotions/internal/domain/product"
	"github.com/xenking/kart-promotions/internal/seed"
	"github.com/xenking/kart-promotions/internal/storage/memory"
	"github.com/xenking/kart-promotions/internal/storage/postgres"
	"github.com/xenking/kart-promotions/internal/storage/sqlite"
	"github.com/xenking/kart-promotions/pkg/health"
)

// Storage groups the repositories the services are built on.
type Storage struct {
	Products  product.Repository
	Rules     discount.RuleRepository
	Ledger    ledger.Store
	Customers customer.Repository
	Orders    order.Repository
	APIKeys   auth.Repository

	// Ping is nil for the in-memory backend.
	Ping  health.CheckFunc
	Close func()
}

// OpenStorage connects the backend selected by cfg.Storage.Driver.
func OpenStorage(ctx context.Context, lg *zap.Logger, cfg *Config) (*Storage, error) {
	switch cfg.Storage.Driver {
	case DriverPostgres:
		return openPostgres(ctx, lg, cfg)
	case DriverSQLite:
		return openSQLite(ctx, lg, cfg)
	case DriverMemory:
		return openMemory(lg, cfg)
	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func openPostgres(ctx context.Context, lg *zap.Logger, cfg *Config) (*Storage, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := migrateWithRetry(ctx, lg, pool, cfg.Storage.ConnectTimeout); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	return &Storage{
		Products:  postgres.NewProductRepository(pool),
		Rules:     postgres.NewRuleRepository(pool),
		Ledger:    postgres.NewLedgerStore(pool),
		Customers: postgres.NewCustomerRepository(pool),
		Orders:    postgres.NewOrderRepository(pool),
		APIKeys:   postgres.NewAPIKeyRepository(pool),
		Ping:      health.PingCheck(pool),
		Close:     pool.Close,
	}, nil
}

// migrateWithRetry runs the migrations until the database accepts them or
// timeout elapses. The pool connects lazily, so this is also the first
// connection attempt. A non-positive timeout disables retries.
func migrateWithRetry(ctx context.Context, lg *zap.Logger, pool *pgxpool.Pool, timeout time.Duration) error {
	if timeout <= 0 {
		return postgres.RunMigrations(ctx, pool)
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = timeout

	return backoff.RetryNotify(func() error {
		return postgres.RunMigrations(ctx, pool)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		lg.Warn("Database not ready, retrying", zap.Error(err), zap.Duration("next", next))
	})
}

func openSQLite(ctx context.Context, lg *zap.Logger, cfg *Config) (*Storage, error) {
	store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	closeStore := func() { _ = store.Close() }

	if cfg.Storage.SeedDir != "" {
		data, err := seed.Load(cfg.Storage.SeedDir)
		if err != nil {
			closeStore()
			return nil, errors.Wrap(err, "load seed")
		}
		if err := seedSQLite(ctx, store, data); err != nil {
			closeStore()
			return nil, err
		}
		logSeeded(lg, cfg.Storage.SeedDir, data)
	}
	if cfg.Storage.SeedAPIKey != "" {
		if err := store.UpsertAPIKey(ctx, seedKey(cfg)); err != nil {
			closeStore()
			return nil, errors.Wrap(err, "seed api key")
		}
	}
	return &Storage{
		Products:  store,
		Rules:     store,
		Ledger:    store,
		Customers: store,
		Orders:    store,
		APIKeys:   store,
		Ping:      store.Ping,
		Close:     closeStore,
	}, nil
}

func seedSQLite(ctx context.Context, store *sqlite.Store, data *seed.Data) error {
	for _, p := range data.Products {
		if err := store.UpsertProduct(ctx, p); err != nil {
			return err
		}
	}
	for _, c := range data.Customers {
		if err := store.UpsertCustomer(ctx, c); err != nil {
			return err
		}
	}
	for _, r := range data.Rules {
		if err := store.UpsertRule(ctx, r); err != nil {
			return errors.Wrapf(err, "seed rule %s", r.ID)
		}
	}
	return nil
}

func openMemory(lg *zap.Logger, cfg *Config) (*Storage, error) {
	store := memory.New()
	if cfg.Storage.SeedDir != "" {
		data, err := seed.Load(cfg.Storage.SeedDir)
		if err != nil {
			return nil, errors.Wrap(err, "load seed")
		}
		for _, p := range data.Products {
			store.PutProduct(p)
		}
		for _, c := range data.Customers {
			store.PutCustomer(c)
		}
		for _, r := range data.Rules {
			if err := store.PutRule(r); err != nil {
				return nil, errors.Wrapf(err, "seed rule %s", r.ID)
			}
		}
		logSeeded(lg, cfg.Storage.SeedDir, data)
	}
	if cfg.Storage.SeedAPIKey != "" {
		store.PutAPIKey(seedKey(cfg))
	}
	return &Storage{
		Products:  store,
		Rules:     store,
		Ledger:    store,
		Customers: store,
		Orders:    store,
		APIKeys:   store,
		Close:     func() {},
	}, nil
}

func seedKey(cfg *Config) auth.APIKeyInfo {
	return auth.APIKeyInfo{
		ID:      "seed",
		KeyHash: auth.HashKey(cfg.Storage.SeedAPIKey, []byte(cfg.APIKeyPepper)),
		Name:    "seed key",
	}
}

func logSeeded(lg *zap.Logger, dir string, data *seed.Data) {
	lg.Info("Storage seeded",
		zap.String("dir", dir),
		zap.Int("products", len(data.Products)),
		zap.Int("rules", len(data.Rules)),
		zap.Int("customers", len(data.Customers)),
	)
}
