package product

import (
	"context"
)

// Resolver maps catalog product names to product identifiers. Resolution is
// best-effort: names with no exact match are absent from the returned map.
type Resolver interface {
	ResolveNames(ctx context.Context, names []string) (map[string]string, error)
}
