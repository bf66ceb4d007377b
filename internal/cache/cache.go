// Package cache keeps recently fetched pages so a maintenance run does not
// hit the same detail page twice inside the TTL.
package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/galois26/event-feed/internal/clock"
	"github.com/galois26/event-feed/internal/config"
)

// Cache is a byte store with a fixed TTL per implementation.
type Cache interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte) error
	Close() error
}

// NewFromConfig returns nil for type "none".
func NewFromConfig(cfg config.CacheConfig, c clock.Clock) (Cache, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemory(cfg.MaxKeys, cfg.TTL, c), nil
	case "redis":
		r, err := NewRedis(cfg.Redis, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}
