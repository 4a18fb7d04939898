// Package settings resolves runtime configuration values, such as gateway
// credentials, from a chain of sources tried in priority order.
package settings

import (
	"context"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Setting keys as stored in the site_settings table.
const (
	KeyUddoktaPayAPIKey  = "uddoktapay_api_key"
	KeyUddoktaPayBaseURL = "uddoktapay_base_url"
	KeyStripeSecretKey   = "stripe_secret_key"
)

// ErrNotSet is returned by a Source that has no value for a key.
var ErrNotSet = errors.New("setting not set")

// NotConfiguredError is returned when no source provides a value.
type NotConfiguredError struct {
	Key string
}

func (e *NotConfiguredError) Error() string {
	return EnvName(e.Key) + " is not configured"
}

// EnvName returns the process environment variable backing key.
func EnvName(key string) string {
	return strings.ToUpper(key)
}

// Source looks up one setting. Implementations return ErrNotSet for a
// missing or empty value.
type Source interface {
	Lookup(ctx context.Context, key string) (string, error)
}

// Store is a persisted key/value settings backend.
type Store interface {
	// Get returns "" with a nil error when the key does not exist.
	Get(ctx context.Context, key string) (string, error)
}

// StoreSource adapts a Store to Source.
type StoreSource struct {
	Store Store
}

func (s StoreSource) Lookup(ctx context.Context, key string) (string, error) {
	v, err := s.Store.Get(ctx, key)
	if err != nil {
		return "", errors.Wrapf(err, "read setting %q", key)
	}
	if strings.TrimSpace(v) == "" {
		return "", ErrNotSet
	}
	return strings.TrimSpace(v), nil
}

// EnvSource reads settings from the process environment using EnvName.
type EnvSource struct {
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

func (s EnvSource) Lookup(_ context.Context, key string) (string, error) {
	getenv := s.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	v := strings.TrimSpace(getenv(EnvName(key)))
	if v == "" {
		return "", ErrNotSet
	}
	return v, nil
}

// Resolver tries each source in order. A failing source is logged and
// skipped.
type Resolver struct {
	sources []Source
}

// NewResolver creates a Resolver over sources, highest priority first.
func NewResolver(sources ...Source) *Resolver {
	return &Resolver{sources: sources}
}

// Lookup returns the first non-empty value for key.
func (r *Resolver) Lookup(ctx context.Context, key string) (string, error) {
	for _, src := range r.sources {
		v, err := src.Lookup(ctx, key)
		switch {
		case err == nil:
			return v, nil
		case errors.Is(err, ErrNotSet):
			continue
		default:
			zctx.From(ctx).Warn("Settings source failed, falling through",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
	return "", &NotConfiguredError{Key: key}
}

// UddoktaPayCredentials are resolved on every gateway call so rotated keys
// take effect without a restart.
type UddoktaPayCredentials struct {
	APIKey  string
	BaseURL string
}

// UddoktaPay resolves the UddoktaPay API key and base URL.
func (r *Resolver) UddoktaPay(ctx context.Context) (UddoktaPayCredentials, error) {
	key, err := r.Lookup(ctx, KeyUddoktaPayAPIKey)
	if err != nil {
		return UddoktaPayCredentials{}, err
	}
	base, err := r.Lookup(ctx, KeyUddoktaPayBaseURL)
	if err != nil {
		return UddoktaPayCredentials{}, err
	}
	return UddoktaPayCredentials{
		APIKey:  key,
		BaseURL: strings.TrimRight(base, "/"),
	}, nil
}

// StripeKey resolves the Stripe secret key.
func (r *Resolver) StripeKey(ctx context.Context) (string, error) {
	return r.Lookup(ctx, KeyStripeSecretKey)
}
