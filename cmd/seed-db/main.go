// Command seed-db loads products, discount rules, customers and an API key
// into PostgreSQL.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/xenking/kart-promotions/internal/domain/auth"
	"github.com/xenking/kart-promotions/internal/seed"
	"github.com/xenking/kart-promotions/internal/storage/postgres"
)

type options struct {
	databaseURL  string
	seedDir      string
	apiKey       string
	apiKeyPepper string
	scopes       string
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", slog.String("error", err.Error()))
	}

	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.seedDir, "seed-dir", "db/seed", "directory with products.json, rules.json and customers.json")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed (or PROMO_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PROMO_API_KEY_PEPPER env)")
	flag.StringVar(&opts.scopes, "api-key-scopes", "", "comma-separated scopes of the seeded key, empty for full access")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("PROMO_SEED_API_KEY")
	}
	if opts.apiKey == "" {
		slog.Error("API key is required: set --api-key or PROMO_SEED_API_KEY")
		os.Exit(1)
	}
	if opts.apiKeyPepper == "" {
		opts.apiKeyPepper = os.Getenv("PROMO_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	slog.Info("reading seed directory", slog.String("path", opts.seedDir))

	data, err := seed.Load(opts.seedDir)
	if err != nil {
		return errors.Wrap(err, "load seed")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedData(ctx, pool, data); err != nil {
		return err
	}

	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), opts); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedData(ctx context.Context, pool *pgxpool.Pool, data *seed.Data) error {
	products := postgres.NewProductRepository(pool)
	slog.Info("upserting products", slog.Int("count", len(data.Products)))
	for _, p := range data.Products {
		if err := products.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	customers := postgres.NewCustomerRepository(pool)
	slog.Info("upserting customers", slog.Int("count", len(data.Customers)))
	for _, c := range data.Customers {
		if err := customers.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert customer %s", c.ID)
		}
	}

	rules := postgres.NewRuleRepository(pool)
	slog.Info("upserting discount rules", slog.Int("count", len(data.Rules)))
	for _, r := range data.Rules {
		if err := rules.Upsert(ctx, r); err != nil {
			return errors.Wrapf(err, "upsert rule %s", r.ID)
		}
		slog.Info("upserted rule",
			slog.String("id", r.ID),
			slog.String("code", r.Code),
			slog.String("type", string(r.Type())),
		)
	}

	return nil
}

func seedAPIKey(ctx context.Context, keys *postgres.APIKeyRepository, opts options) error {
	slog.Info("seeding default API key")

	var scopes []string
	for _, s := range strings.Split(opts.scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}

	if err := keys.Upsert(ctx, auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey(opts.apiKey, []byte(opts.apiKeyPepper)),
		Name:    "Default key",
		Scopes:  scopes,
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"), slog.Any("scopes", scopes))

	return nil
}
