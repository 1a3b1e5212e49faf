// Package cache holds the stores that remember which tenant namespaces have
// already been provisioned, so the router can skip the idempotent DDL and the
// metadata lookup on hot paths.
package cache

import (
	"context"
	"time"
)

// ProvisionCache remembers namespaces known to exist.
// A miss is always safe: the caller falls back to create-if-absent plus re-check.
type ProvisionCache interface {
	Known(ctx context.Context, namespace string) (bool, error)
	Remember(ctx context.Context, namespace string) error
	Forget(ctx context.Context, namespace string) error
	Close() error
}

// DefaultTTL bounds how long a namespace is trusted without re-checking
const DefaultTTL = 10 * time.Minute
