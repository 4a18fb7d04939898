package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/hearth-checkout/internal/domain/coupon"
)

const bloomFPR = 0.001

// couponStore is the part of the coupon repository the import writes through.
type couponStore interface {
	EachCode(ctx context.Context, fn func(code string)) error
	ExistingCodes(ctx context.Context, codes []string) (map[string]struct{}, error)
	CopyCoupons(ctx context.Context, coupons []coupon.Coupon) (int64, error)
}

type importConfig struct {
	BatchSize     int
	ExpectedCodes uint
	DryRun        bool
}

type importStats struct {
	Read       int
	Invalid    int
	Duplicates int
	Existing   int
	Inserted   int64
}

type importer struct {
	store couponStore
	lg    *zap.Logger
	cfg   importConfig
}

func newImporter(store couponStore, lg *zap.Logger, cfg importConfig) *importer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5000
	}
	if cfg.ExpectedCodes == 0 {
		cfg.ExpectedCodes = 1_000_000
	}
	return &importer{store: store, lg: lg, cfg: cfg}
}

// Run parses files concurrently, drops codes repeated across or within files
// (first file in order wins), skips codes already stored and copies the rest.
func (im *importer) Run(ctx context.Context, files []string) (importStats, error) {
	var stats importStats

	parsed := make([][]coupon.Coupon, len(files))
	invalid := make([]int, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			lg := im.lg.With(zap.String("file", path))
			return readFile(gctx, path, func(line int, c coupon.Coupon, err error) {
				if err != nil {
					invalid[i]++
					lg.Warn("Skipping invalid row", zap.Int("line", line), zap.Error(err))
					return
				}
				parsed[i] = append(parsed[i], c)
			})
		})
	}

	stored := bloom.NewWithEstimates(im.cfg.ExpectedCodes, bloomFPR)
	g.Go(func() error {
		return im.store.EachCode(gctx, func(code string) { stored.AddString(code) })
	})

	if err := g.Wait(); err != nil {
		return stats, errors.Wrap(err, "load coupons")
	}

	seen := make(map[string]struct{})
	var fresh []coupon.Coupon
	for i, coupons := range parsed {
		stats.Invalid += invalid[i]
		for _, c := range coupons {
			stats.Read++
			if _, dup := seen[c.Code]; dup {
				stats.Duplicates++
				continue
			}
			seen[c.Code] = struct{}{}
			fresh = append(fresh, c)
		}
	}
	stats.Read += stats.Invalid

	for start := 0; start < len(fresh); start += im.cfg.BatchSize {
		candidates := fresh[start:min(start+im.cfg.BatchSize, len(fresh))]

		batch, err := im.dropExisting(ctx, stored, candidates)
		if err != nil {
			return stats, err
		}
		stats.Existing += len(candidates) - len(batch)
		if len(batch) == 0 || im.cfg.DryRun {
			continue
		}

		n, err := im.store.CopyCoupons(ctx, batch)
		if err != nil {
			return stats, errors.Wrap(err, "copy coupons")
		}
		stats.Inserted += n
		im.lg.Info("Batch imported", zap.Int64("inserted", stats.Inserted))
	}
	return stats, nil
}

// dropExisting removes stored codes from batch. The bloom filter has no false
// negatives, so only its positives need a database lookup.
func (im *importer) dropExisting(ctx context.Context, stored *bloom.BloomFilter, batch []coupon.Coupon) ([]coupon.Coupon, error) {
	var maybe []string
	for _, c := range batch {
		if stored.TestString(c.Code) {
			maybe = append(maybe, c.Code)
		}
	}
	if len(maybe) == 0 {
		return batch, nil
	}

	existing, err := im.store.ExistingCodes(ctx, maybe)
	if err != nil {
		return nil, errors.Wrap(err, "check existing codes")
	}

	out := make([]coupon.Coupon, 0, len(batch))
	for _, c := range batch {
		if _, ok := existing[c.Code]; !ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// readFile streams a gzip-compressed CSV file through readCoupons.
func readFile(ctx context.Context, path string, fn func(line int, c coupon.Coupon, err error)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	if err := readCoupons(ctx, gz, fn); err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	return nil
}

// readCoupons parses CSV with a header row. Required columns are code,
// discount_type and discount_value; min_order_amount, max_uses, expires_at
// (RFC 3339) and is_active are optional. Row errors go to fn, I/O and header
// errors are returned.
func readCoupons(ctx context.Context, r io.Reader, fn func(line int, c coupon.Coupon, err error)) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return errors.Wrap(err, "read header")
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"code", "discount_type", "discount_value"} {
		if _, ok := cols[required]; !ok {
			return errors.Errorf("missing column %q", required)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			fn(parseErr.Line, coupon.Coupon{}, err)
			continue
		}
		if err != nil {
			return err
		}
		line, _ := cr.FieldPos(0)
		c, err := parseRecord(cols, rec)
		fn(line, c, err)
	}
}

func parseRecord(cols map[string]int, rec []string) (coupon.Coupon, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	c := coupon.Coupon{
		Code:         coupon.NormalizeCode(field("code")),
		DiscountType: coupon.DiscountType(strings.ToLower(field("discount_type"))),
		IsActive:     true,
	}
	if c.Code == "" {
		return c, errors.New("empty code")
	}
	if !c.DiscountType.Valid() {
		return c, errors.Errorf("unknown discount type %q", c.DiscountType)
	}

	var err error
	if c.DiscountValue, err = decimal.NewFromString(field("discount_value")); err != nil {
		return c, errors.Wrap(err, "discount_value")
	}
	if !c.DiscountValue.IsPositive() {
		return c, errors.New("discount_value must be positive")
	}
	if c.DiscountType == coupon.DiscountPercentage && c.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return c, errors.New("percentage above 100")
	}

	if v := field("min_order_amount"); v != "" {
		if c.MinOrderAmount, err = decimal.NewFromString(v); err != nil {
			return c, errors.Wrap(err, "min_order_amount")
		}
	}
	if v := field("max_uses"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return c, errors.Errorf("max_uses %q is not a positive integer", v)
		}
		c.MaxUses = &n
	}
	if v := field("expires_at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c, errors.Wrap(err, "expires_at")
		}
		c.ExpiresAt = &t
	}
	if v := field("is_active"); v != "" {
		if c.IsActive, err = strconv.ParseBool(v); err != nil {
			return c, errors.Wrap(err, "is_active")
		}
	}
	return c, nil
}
