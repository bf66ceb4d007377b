package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/galois26/event-feed/internal/model"
)

// Postgres keeps one JSONB row per event; position preserves collection order.
type Postgres struct {
	pool  *pgxpool.Pool
	table string
	ident pgx.Identifier
}

func NewPostgres(ctx context.Context, dsn, table string) (*Postgres, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("store.dsn is required for postgres")
	}
	if table == "" {
		table = "events"
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg-dsn parse: %w", err)
	}
	if cfg.MaxConns <= 0 || cfg.MaxConns > 4 {
		cfg.MaxConns = 4
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pg connect: %w", err)
	}
	p := &Postgres{pool: pool, table: table, ident: pgx.Identifier{table}}
	if err := p.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) Name() string { return "postgres:" + p.table }

func (p *Postgres) ensureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+p.ident.Sanitize()+` (
		id         text PRIMARY KEY,
		position   integer NOT NULL,
		doc        jsonb NOT NULL,
		saved_at   timestamptz NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("create table %s: %w", p.table, err)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context) ([]model.Event, error) {
	rows, err := p.pool.Query(ctx, `SELECT doc FROM `+p.ident.Sanitize()+` ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var ev model.Event
		if err := json.Unmarshal(doc, &ev); err != nil {
			return nil, fmt.Errorf("decode event row: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Save replaces the table contents in one transaction.
func (p *Postgres) Save(ctx context.Context, events []model.Event) error {
	if err := checkUnique(events); err != nil {
		return err
	}
	docs := make([]string, len(events))
	for i, ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", ev.ID, err)
		}
		docs[i] = string(b)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM `+p.ident.Sanitize()); err != nil {
		return fmt.Errorf("clear %s: %w", p.table, err)
	}
	_, err = tx.CopyFrom(ctx, p.ident, []string{"id", "position", "doc"},
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			return []any{events[i].ID, i, docs[i]}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy events: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Close() { p.pool.Close() }
