package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Store reads and acknowledges outbox events.
type Store interface {
	Unpublished(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []string) error
}

// Publisher delivers events to the message broker.
type Publisher interface {
	Publish(ctx context.Context, batch []Event) error
}

// Relay polls the outbox and forwards unpublished events. Delivery is at
// least once: an event whose acknowledgement fails is sent again.
type Relay struct {
	store     Store
	publisher Publisher
	interval  time.Duration
	batchSize int
	lg        *zap.Logger
}

// NewRelay creates a Relay.
func NewRelay(store Store, publisher Publisher, interval time.Duration, batchSize int, lg *zap.Logger) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		lg:        lg,
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.lg.Info("Outbox relay started",
		zap.Duration("interval", r.interval),
		zap.Int("batch_size", r.batchSize),
	)
	for {
		select {
		case <-ctx.Done():
			r.lg.Info("Outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.lg.Warn("Outbox relay tick failed", zap.Error(err))
			}
		}
	}
}

// Flush forwards one batch and reports how many events were acknowledged.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	batch, err := r.store.Unpublished(ctx, r.batchSize)
	if err != nil {
		return 0, errors.Wrap(err, "load unpublished events")
	}
	if len(batch) == 0 {
		return 0, nil
	}

	if err := r.publisher.Publish(ctx, batch); err != nil {
		return 0, errors.Wrapf(err, "publish %d events", len(batch))
	}

	ids := make([]string, len(batch))
	for i, ev := range batch {
		ids[i] = ev.ID
	}
	if err := r.store.MarkPublished(ctx, ids); err != nil {
		return 0, errors.Wrap(err, "mark events published")
	}

	r.lg.Debug("Outbox events relayed", zap.Int("count", len(batch)))
	return len(batch), nil
}
