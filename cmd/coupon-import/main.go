// Command coupon-import bulk-loads coupon campaigns from gzip-compressed CSV
// files. Codes that already exist are left untouched.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/xenking/hearth-checkout/internal/repository"
)

func main() {
	_ = godotenv.Load()

	var (
		dataDir     string
		databaseURL string
		cfg         importConfig
	)
	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.csv.gz campaign files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&cfg.BatchSize, "batch-size", 5000, "coupons per COPY batch")
	flag.UintVar(&cfg.ExpectedCodes, "expected-codes", 1_000_000, "bloom filter capacity for stored codes")
	flag.BoolVar(&cfg.DryRun, "dry-run", false, "parse and deduplicate without writing")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, dataDir, databaseURL, cfg); err != nil {
		lg.Fatal("Coupon import failed", zap.Error(err))
	}
}

func run(ctx context.Context, lg *zap.Logger, dataDir, databaseURL string, cfg importConfig) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
	if err != nil {
		return errors.Wrap(err, "list campaign files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.csv.gz files in %s", dataDir)
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	im := newImporter(repository.NewCouponRepository(pool), lg, cfg)
	stats, err := im.Run(ctx, files)
	if err != nil {
		return err
	}

	lg.Info("Coupon import completed",
		zap.Int("read", stats.Read),
		zap.Int("invalid", stats.Invalid),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("existing", stats.Existing),
		zap.Int64("inserted", stats.Inserted),
	)
	return nil
}
