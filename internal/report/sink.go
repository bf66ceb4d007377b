package report

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/galois26/event-feed/internal/config"
)

// Sink is the minimal interface all report destinations implement.
type Sink interface {
	Name() string
	Push(ctx context.Context, r *Report) error
}

// NewSinksFromConfig builds every enabled sink. A section without a URL,
// directory or broker list is skipped.
func NewSinksFromConfig(cfg config.ReportsConfig) ([]Sink, error) {
	var sinks []Sink
	if cfg.Log {
		sinks = append(sinks, NewLog(nil))
	}
	if cfg.Dir != "" {
		fs, err := NewFile(cfg.Dir, cfg.Formats)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fs)
	}
	if cfg.Loki.URL != "" {
		sinks = append(sinks, NewLoki(cfg.Loki))
	}
	if cfg.Victoria.URL != "" {
		sinks = append(sinks, NewVictoria(cfg.Victoria))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		ks, err := NewKafka(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, ks)
	}
	return sinks, nil
}

// PushAll sends r to every sink. A failing sink does not stop the others.
func PushAll(ctx context.Context, sinks []Sink, r *Report) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Push(ctx, r); err != nil {
			log.Printf("[report] sink=%s push error: %v", s.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// CloseAll releases sinks that hold connections.
func CloseAll(sinks []Sink) {
	for _, s := range sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				log.Printf("[report] sink=%s close: %v", s.Name(), err)
			}
		}
	}
}
