// Package store persists the canonical event collection. Collections are
// loaded and saved wholesale; two writers on one collection is an
// operational error this package does not guard against.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/galois26/event-feed/internal/config"
	"github.com/galois26/event-feed/internal/model"
)

var (
	ErrNotFound    = errors.New("event not found")
	ErrDuplicateID = errors.New("duplicate event id")
)

type Store interface {
	Name() string
	Load(ctx context.Context) ([]model.Event, error)
	Save(ctx context.Context, events []model.Event) error
}

// NewFromConfig opens the configured store. Postgres connects eagerly.
func NewFromConfig(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", "json":
		return NewJSONFile(cfg.Path), nil
	case "postgres":
		p, err := NewPostgres(ctx, cfg.DSN, cfg.Table)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}

// Find returns the event with id.
func Find(events []model.Event, id string) (model.Event, error) {
	for _, ev := range events {
		if ev.ID == id {
			return ev, nil
		}
	}
	return model.Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Upsert replaces events with the same id in place and appends new ones.
// It returns how many were added and how many replaced.
func Upsert(events []model.Event, incoming ...model.Event) (out []model.Event, added, replaced int) {
	out = events
	index := make(map[string]int, len(events))
	for i, ev := range out {
		index[ev.ID] = i
	}
	for _, ev := range incoming {
		if i, ok := index[ev.ID]; ok {
			out[i] = ev
			replaced++
			continue
		}
		index[ev.ID] = len(out)
		out = append(out, ev)
		added++
	}
	return out, added, replaced
}

func checkUnique(events []model.Event) error {
	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		if ev.ID == "" {
			return fmt.Errorf("%w: event %q has no id", ErrDuplicateID, ev.URL)
		}
		if _, ok := seen[ev.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, ev.ID)
		}
		seen[ev.ID] = struct{}{}
	}
	return nil
}
