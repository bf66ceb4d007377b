// Package runner drives the maintenance operations over a persisted
// collection: re-fetch and merge, audit, renormalize, prune and ingest.
//
// Every operation loads the whole collection, mutates it in memory and saves
// it back in one go. Item failures are counted in the report and never stop
// the run; only load and save failures are returned as errors.
package runner

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/galois26/event-feed/internal/clock"
	"github.com/galois26/event-feed/internal/config"
	"github.com/galois26/event-feed/internal/diag"
	"github.com/galois26/event-feed/internal/enrich"
	"github.com/galois26/event-feed/internal/extract"
	"github.com/galois26/event-feed/internal/fetch"
	"github.com/galois26/event-feed/internal/metrics"
	"github.com/galois26/event-feed/internal/model"
	"github.com/galois26/event-feed/internal/pipeline"
	"github.com/galois26/event-feed/internal/quality"
	"github.com/galois26/event-feed/internal/report"
	"github.com/galois26/event-feed/internal/sanitize"
	"github.com/galois26/event-feed/internal/store"
)

type Op string

const (
	OpEnrich      Op = "enrich"
	OpAudit       Op = "audit"
	OpRenormalize Op = "renormalize"
	OpPrune       Op = "prune"
	OpIngest      Op = "ingest"
)

// ParseOp accepts the operation names used on the command line.
func ParseOp(s string) (Op, error) {
	switch op := Op(s); op {
	case OpEnrich, OpAudit, OpRenormalize, OpPrune, OpIngest:
		return op, nil
	}
	return "", fmt.Errorf("unknown operation: %s", s)
}

// Scope selects which stored events an enrich run re-fetches.
type Scope string

const (
	ScopeAll        Scope = "all"
	ScopeIncomplete Scope = "incomplete"
	ScopeUpcoming   Scope = "upcoming"
)

type Options struct {
	BatchSize  int
	ItemDelay  time.Duration
	BatchDelay time.Duration
	Scope      Scope
	Limit      int
	Keep       quality.Keep
	StatePath  string // empty disables run state
	Verbose    bool
}

func OptionsFromConfig(cfg *config.Config) (Options, error) {
	keep, err := quality.ParseKeep(cfg.Gate.Dedupe)
	if err != nil {
		return Options{}, err
	}
	return Options{
		BatchSize:  cfg.Batch.Size,
		ItemDelay:  cfg.Batch.ItemDelay,
		BatchDelay: cfg.Batch.BatchDelay,
		Scope:      Scope(cfg.Batch.Scope),
		Limit:      cfg.Batch.Limit,
		Keep:       keep,
		StatePath:  cfg.Store.StatePath,
	}, nil
}

// Deps are the collaborators a Runner works with. Fetcher and Extractor are
// only needed for OpEnrich; Sinks, Metrics and Diag may be nil.
type Deps struct {
	Store     store.Store
	Fetcher   fetch.PageFetcher
	Extractor *extract.Extractor
	Engine    *enrich.Engine
	Gate      *quality.Gate
	Builder   *pipeline.Builder
	Sanitizer *sanitize.Sanitizer
	Sinks     []report.Sink
	Metrics   *metrics.Metrics
	Diag      *diag.Collector
	Clock     clock.Clock
}

type Runner struct {
	Deps
	opts      Options
	processor *pipeline.Processor
	sleep     func(ctx context.Context, d time.Duration) error
}

func New(d Deps, opts Options) *Runner {
	d.Clock = clock.OrSystem(d.Clock)
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.Scope == "" {
		opts.Scope = ScopeIncomplete
	}
	return &Runner{
		Deps:      d,
		opts:      opts,
		processor: pipeline.NewProcessor(d.Builder, d.Engine, d.Gate),
		sleep:     sleepCtx,
	}
}

// Run dispatches op. records is only read by OpIngest.
func (r *Runner) Run(ctx context.Context, op Op, records []pipeline.RawRecord) (*report.Report, error) {
	switch op {
	case OpEnrich:
		return r.Enrich(ctx)
	case OpAudit:
		return r.Audit(ctx)
	case OpRenormalize:
		return r.Renormalize(ctx)
	case OpPrune:
		return r.Prune(ctx)
	case OpIngest:
		return r.Ingest(ctx, records)
	}
	return nil, fmt.Errorf("unknown operation: %s", op)
}

func (r *Runner) begin(op Op) *report.Report {
	r.Diag.Reset()
	return report.New(string(op), r.Clock.Now())
}

func (r *Runner) add(rep *report.Report, it report.Item) {
	rep.Add(it)
	r.Metrics.ObserveItem(rep.Op, string(it.Outcome))
	if r.opts.Verbose && it.Outcome != report.Valid {
		log.Printf("[%s] %s %s reasons=%v changes=%d", rep.Op, it.Outcome, it.URL, it.Reasons, len(it.Changes))
	}
}

func (r *Runner) fail(rep *report.Report, id, url string, err error) {
	rep.Fail(id, url, err)
	r.Metrics.ObserveItem(rep.Op, string(report.Errored))
	log.Printf("[%s] error %s: %v", rep.Op, url, err)
}

// finish closes the report, pushes it and records run state. runErr is the
// load/save outcome of the operation itself.
func (r *Runner) finish(ctx context.Context, rep *report.Report, collection []model.Event, runErr error) {
	at := r.Clock.Now()
	rep.Finish(at, r.Diag.Counts())
	r.Metrics.ObserveRun(rep.Op, rep.Duration(), runErr == nil, at)
	if collection != nil {
		r.Metrics.SetCollection(collection)
	}

	// a cancelled run still reports what it got through
	pushCtx := context.WithoutCancel(ctx)
	_ = report.PushAll(pushCtx, r.Sinks, rep)

	if r.opts.StatePath != "" && runErr == nil {
		st, err := store.LoadRunState(r.opts.StatePath)
		if err != nil {
			log.Printf("[%s] run state: %v", rep.Op, err)
		}
		st.LastRun[rep.Op] = store.RunSummary{
			RunID:      rep.RunID,
			FinishedAt: at.Format(time.RFC3339),
			Counts:     rep.Summary(),
			Errors:     len(rep.Errors),
		}
		if err := store.SaveRunState(r.opts.StatePath, st); err != nil {
			log.Printf("[%s] save run state: %v", rep.Op, err)
		}
	}
	log.Printf("[%s] run=%s total=%d valid=%d fixed=%d rejected=%d errored=%d cancelled=%d in %s",
		rep.Op, rep.RunID, rep.Counts.Total, rep.Counts.Valid, rep.Counts.Fixed, rep.Counts.Rejected,
		rep.Counts.Errored, rep.Counts.Cancelled, rep.Duration().Truncate(time.Millisecond))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
