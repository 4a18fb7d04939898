// Command seed-db applies migrations and loads demo catalog products, demo
// coupons and, optionally, payment gateway settings.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/xenking/hearth-checkout/internal/domain/settings"
	"github.com/xenking/hearth-checkout/internal/repository"
)

type options struct {
	databaseURL  string
	productsFile string
	settings     map[string]string
}

func main() {
	_ = godotenv.Load()

	var (
		opts      options
		upAPIKey  string
		upBaseURL string
		stripeKey string
	)
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&upAPIKey, "uddoktapay-api-key", "", "store the UddoktaPay API key in site settings")
	flag.StringVar(&upBaseURL, "uddoktapay-base-url", "", "store the UddoktaPay API base URL in site settings")
	flag.StringVar(&stripeKey, "stripe-secret-key", "", "store the Stripe secret key in site settings")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	opts.settings = nonEmpty(map[string]string{
		settings.KeyUddoktaPayAPIKey:  upAPIKey,
		settings.KeyUddoktaPayBaseURL: upBaseURL,
		settings.KeyStripeSecretKey:   stripeKey,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, lg, repository.NewProductRepository(pool), opts.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	coupons := repository.NewCouponRepository(pool)
	for _, c := range demoCoupons(now()) {
		if err := coupons.Upsert(ctx, c); err != nil {
			return errors.Wrap(err, "seed coupons")
		}
		lg.Info("Upserted coupon", zap.String("code", c.Code), zap.String("type", string(c.DiscountType)))
	}

	store := repository.NewSettingsRepository(pool)
	for key, value := range opts.settings {
		if err := store.Put(ctx, key, value); err != nil {
			return errors.Wrap(err, "seed settings")
		}
		lg.Info("Stored setting", zap.String("key", key))
	}
	return nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, repo *repository.ProductRepository, path string) error {
	n, err := repo.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		lg.Info("Catalog already seeded, skipping products", zap.Int64("count", n))
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}
	products, err := parseProducts(data)
	if err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}

	for _, p := range products {
		id, err := repo.Insert(ctx, p)
		if err != nil {
			return err
		}
		lg.Info("Inserted product", zap.String("id", id), zap.String("name", p.Name))
	}
	return nil
}

func nonEmpty(m map[string]string) map[string]string {
	for k, v := range m {
		if v == "" {
			delete(m, k)
		}
	}
	return m
}
