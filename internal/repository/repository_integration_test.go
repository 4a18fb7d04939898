//go:build integration

package repository

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/hearth-checkout/internal/domain/coupon"
	"github.com/xenking/hearth-checkout/internal/domain/order"
	"github.com/xenking/hearth-checkout/internal/events"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "checkout",
				"POSTGRES_PASSWORD": "checkout",
				"POSTGRES_DB":       "checkout",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		return 1
	}
	defer func() { _ = pg.Terminate(context.Background()) }()

	host, err := pg.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres host: %v\n", err)
		return 1
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres port: %v\n", err)
		return 1
	}

	dsn := fmt.Sprintf("postgres://checkout:checkout@%s:%s/checkout?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pool: %v\n", err)
		return 1
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		fmt.Fprintf(os.Stderr, "migrations: %v\n", err)
		return 1
	}

	return m.Run()
}

func newOrder(items ...order.Item) *order.Order {
	return &order.Order{
		ID:              uuid.NewString(),
		Number:          order.NewNumber(),
		CustomerName:    "Ayesha Rahman",
		CustomerEmail:   "ayesha@example.com",
		ShippingAddress: "12 Lake Road, Dhaka",
		Subtotal:        decimal.RequireFromString("100"),
		Discount:        decimal.Zero,
		DeliveryCharge:  decimal.RequireFromString("15"),
		Total:           decimal.RequireFromString("115"),
		PaymentMethod:   order.PaymentOnline,
		Status:          order.StatusPending,
		PaymentStatus:   order.PaymentUnpaid,
		Items:           items,
	}
}

func item(name string, qty int, price string) order.Item {
	return order.Item{ProductName: name, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

func countEvents(t *testing.T, aggregateID, eventType string) int {
	t.Helper()
	var n int
	err := testPool.QueryRow(context.Background(),
		`SELECT count(*) FROM outbox_events WHERE aggregate_id = $1 AND event_type = $2`,
		aggregateID, eventType,
	).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestOrderRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	products := NewProductRepository(testPool)
	productID, err := products.Insert(ctx, NewProduct{Name: "Walnut Desk " + uuid.NewString(), Price: decimal.RequireFromString("60")})
	require.NoError(t, err)

	repo := NewOrderRepository(testPool)
	o := newOrder(
		order.Item{ProductID: productID, ProductName: "Walnut Desk", Quantity: 1, UnitPrice: decimal.RequireFromString("60")},
		item("Desk Lamp", 2, "20"),
		item("Cushion", 1, "0"),
	)

	require.NoError(t, repo.Create(ctx, o))
	assert.False(t, o.CreatedAt.IsZero())

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, got.Number)
	assert.True(t, o.Total.Equal(got.Total))
	assert.Equal(t, order.PaymentUnpaid, got.PaymentStatus)
	require.Len(t, got.Items, 3)
	assert.Equal(t, productID, got.Items[0].ProductID)
	assert.Equal(t, "Desk Lamp", got.Items[1].ProductName)
	assert.Equal(t, 2, got.Items[1].Quantity)
	assert.Empty(t, got.Items[2].ProductID)

	assert.Equal(t, 1, countEvents(t, o.ID, events.TypeOrderPlaced))
}

func TestOrderRepository_ItemFailureRollsBackOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	// The third line violates the quantity check constraint.
	o := newOrder(item("Chair", 1, "10"), item("Table", 1, "50"), item("Broken", 0, "5"))

	err := repo.Create(ctx, o)
	require.Error(t, err)

	_, err = repo.Get(ctx, o.ID)
	require.ErrorIs(t, err, order.ErrNotFound)

	var items int
	require.NoError(t, testPool.QueryRow(ctx, `SELECT count(*) FROM order_items WHERE order_id = $1`, o.ID).Scan(&items))
	assert.Zero(t, items)
	assert.Zero(t, countEvents(t, o.ID, events.TypeOrderPlaced))
}

func TestOrderRepository_DuplicateNumber(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	first := newOrder(item("Chair", 1, "10"))
	require.NoError(t, repo.Create(ctx, first))

	second := newOrder(item("Chair", 1, "10"))
	second.Number = first.Number

	err := repo.Create(ctx, second)
	require.ErrorIs(t, err, order.ErrDuplicateNumber)
}

func TestOrderRepository_CouponRedemption(t *testing.T) {
	ctx := context.Background()
	coupons := NewCouponRepository(testPool)
	orders := NewOrderRepository(testPool)

	code := "LAST" + uuid.NewString()[:6]
	code = coupon.NormalizeCode(code)
	maxUses := 1
	require.NoError(t, coupons.Upsert(ctx, coupon.Coupon{
		Code:          code,
		DiscountType:  coupon.DiscountFixed,
		DiscountValue: decimal.RequireFromString("5"),
		MaxUses:       &maxUses,
		IsActive:      true,
	}))

	first := newOrder(item("Chair", 1, "10"))
	first.CouponCode = code
	require.NoError(t, orders.Create(ctx, first))

	second := newOrder(item("Chair", 1, "10"))
	second.CouponCode = code
	err := orders.Create(ctx, second)
	require.ErrorIs(t, err, coupon.ErrUsageExhausted)

	_, err = orders.Get(ctx, second.ID)
	require.ErrorIs(t, err, order.ErrNotFound)

	c, err := coupons.FindByCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsedCount)
}

func TestOrderRepository_RedemptionReportsCouponState(t *testing.T) {
	ctx := context.Background()
	coupons := NewCouponRepository(testPool)
	orders := NewOrderRepository(testPool)
	lastWeek := time.Now().Add(-7 * 24 * time.Hour)

	tests := []struct {
		name    string
		coupon  coupon.Coupon
		wantErr error
	}{
		{
			name:    "expired",
			coupon:  coupon.Coupon{IsActive: true, ExpiresAt: &lastWeek},
			wantErr: coupon.ErrExpired,
		},
		{
			name:    "deactivated",
			coupon:  coupon.Coupon{IsActive: false},
			wantErr: coupon.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.coupon
			c.Code = coupon.NormalizeCode("state" + uuid.NewString()[:6])
			c.DiscountType = coupon.DiscountFixed
			c.DiscountValue = decimal.RequireFromString("5")
			require.NoError(t, coupons.Upsert(ctx, c))

			o := newOrder(item("Chair", 1, "10"))
			o.CouponCode = c.Code
			err := orders.Create(ctx, o)

			require.ErrorIs(t, err, tt.wantErr)
			_, err = orders.Get(ctx, o.ID)
			assert.ErrorIs(t, err, order.ErrNotFound)
		})
	}
}

func TestOrderRepository_ConcurrentLastRedemption(t *testing.T) {
	ctx := context.Background()
	coupons := NewCouponRepository(testPool)
	orders := NewOrderRepository(testPool)

	code := coupon.NormalizeCode("race" + uuid.NewString()[:6])
	maxUses := 1
	require.NoError(t, coupons.Upsert(ctx, coupon.Coupon{
		Code:          code,
		DiscountType:  coupon.DiscountPercentage,
		DiscountValue: decimal.RequireFromString("10"),
		MaxUses:       &maxUses,
		IsActive:      true,
	}))

	const buyers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exhausted int
	)
	for range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o := newOrder(item("Chair", 1, "10"))
			o.CouponCode = code
			err := orders.Create(ctx, o)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, coupon.ErrUsageExhausted):
				exhausted++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, buyers-1, exhausted)
}

func TestOrderRepository_MarkPaidOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)
	o := newOrder(item("Chair", 1, "10"))
	require.NoError(t, repo.Create(ctx, o))

	changed, err := repo.MarkPaid(ctx, o.ID, "INV-1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkPaid(ctx, o.ID, "INV-1")
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, "INV-1", got.PaymentInvoiceID)
	assert.Equal(t, 1, countEvents(t, o.ID, events.TypeOrderPaid))

	_, err = repo.MarkPaid(ctx, uuid.NewString(), "INV-2")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestOutboxRepository_RelayCycle(t *testing.T) {
	ctx := context.Background()
	outbox := NewOutboxRepository(testPool)

	// Drain whatever earlier tests left behind.
	for {
		batch, err := outbox.Unpublished(ctx, 100)
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		ids := make([]string, len(batch))
		for i, ev := range batch {
			ids[i] = ev.ID
		}
		require.NoError(t, outbox.MarkPublished(ctx, ids))
	}

	o := newOrder(item("Chair", 1, "10"))
	require.NoError(t, NewOrderRepository(testPool).Create(ctx, o))

	pending, err := outbox.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	batch, err := outbox.Unpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, events.TypeOrderPlaced, batch[0].Type)
	assert.Equal(t, o.ID, batch[0].AggregateID)
	assert.NotEmpty(t, batch[0].Payload)

	require.NoError(t, outbox.MarkPublished(ctx, []string{batch[0].ID}))
	batch, err = outbox.Unpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)

	pending, err = outbox.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestCouponRepository_Bulk(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository(testPool)

	a := coupon.NormalizeCode("bulka" + uuid.NewString()[:5])
	b := coupon.NormalizeCode("bulkb" + uuid.NewString()[:5])
	n, err := repo.CopyCoupons(ctx, []coupon.Coupon{
		{Code: a, DiscountType: coupon.DiscountPercentage, DiscountValue: decimal.NewFromInt(10), IsActive: true},
		{Code: b, DiscountType: coupon.DiscountFixed, DiscountValue: decimal.NewFromInt(5), IsActive: true},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	existing, err := repo.ExistingCodes(ctx, []string{a, "NOPE" + a})
	require.NoError(t, err)
	assert.Contains(t, existing, a)
	assert.Len(t, existing, 1)

	seen := map[string]bool{}
	require.NoError(t, repo.EachCode(ctx, func(code string) { seen[code] = true }))
	assert.True(t, seen[a])
	assert.True(t, seen[b])
}

func TestSettingsRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSettingsRepository(testPool)

	v, err := repo.Get(ctx, "missing_"+uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, repo.Put(ctx, "uddoktapay_base_url", "https://sandbox.uddoktapay.com/api"))
	require.NoError(t, repo.Put(ctx, "uddoktapay_base_url", "https://pay.example.com/api"))
	v, err = repo.Get(ctx, "uddoktapay_base_url")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/api", v)
}

func TestProductRepository_ResolveNames(t *testing.T) {
	ctx := context.Background()
	repo := NewProductRepository(testPool)

	name := "Linen Sofa " + uuid.NewString()
	id, err := repo.Insert(ctx, NewProduct{Name: name, Price: decimal.RequireFromString("899")})
	require.NoError(t, err)

	ids, err := repo.ResolveNames(ctx, []string{name, "No Such Product"})
	require.NoError(t, err)
	assert.Equal(t, id, ids[name])
	assert.NotContains(t, ids, "No Such Product")
}
