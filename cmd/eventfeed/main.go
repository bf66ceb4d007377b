package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/galois26/event-feed/internal/api"
	"github.com/galois26/event-feed/internal/cache"
	"github.com/galois26/event-feed/internal/categorize"
	"github.com/galois26/event-feed/internal/clock"
	"github.com/galois26/event-feed/internal/config"
	"github.com/galois26/event-feed/internal/dates"
	"github.com/galois26/event-feed/internal/diag"
	"github.com/galois26/event-feed/internal/enrich"
	"github.com/galois26/event-feed/internal/extract"
	"github.com/galois26/event-feed/internal/fetch"
	"github.com/galois26/event-feed/internal/metrics"
	"github.com/galois26/event-feed/internal/pipeline"
	"github.com/galois26/event-feed/internal/quality"
	"github.com/galois26/event-feed/internal/report"
	"github.com/galois26/event-feed/internal/runner"
	"github.com/galois26/event-feed/internal/sanitize"
	"github.com/galois26/event-feed/internal/store"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

const modeServe = "serve"

func main() {
	var (
		cfgPath  = flag.String("config", "config.yml", "path to YAML config")
		mode     = flag.String("mode", "enrich", "enrich | audit | renormalize | prune | ingest | serve")
		input    = flag.String("input", "", "raw records for ingest (JSON array or object, - for stdin)")
		interval = flag.Duration("interval", time.Hour, "run interval")
		once     = flag.Bool("once", false, "run a single cycle then exit")
		verbose  = flag.Bool("verbose", false, "enable verbose logging")
	)
	flag.Parse()

	log.Printf("eventfeed %s starting (mode=%s)...", Version, *mode)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.NewFromConfig(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	if pg, ok := st.(*store.Postgres); ok {
		defer pg.Close()
	}
	log.Printf("store: %s", st.Name())

	var m *metrics.Metrics
	if cfg.Metrics.Enable {
		m = metrics.New()
	}

	if *mode == modeServe {
		if !*verbose {
			gin.SetMode(gin.ReleaseMode)
		}
		if err := serve(ctx, api.New(st, m, cfg.API)); err != nil {
			log.Fatalf("serve: %v", err)
		}
		return
	}

	op, err := runner.ParseOp(*mode)
	if err != nil {
		log.Fatal(err)
	}
	if op == runner.OpIngest && *input == "" {
		log.Fatal("ingest needs -input")
	}

	r, cleanup, err := buildRunner(cfg, st, m, op, *verbose)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer cleanup()

	if m != nil && cfg.Metrics.Listen != "" {
		srv := m.Server(cfg.Metrics.Listen, cfg.API.ReadTimeout, cfg.API.WriteTimeout)
		go func() {
			log.Printf("serving /metrics on %s", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics server: %v", err)
			}
		}()
		defer shutdown(srv)
	}

	runOnce := func() {
		start := time.Now()
		var records []pipeline.RawRecord
		if op == runner.OpIngest {
			records, err = pipeline.LoadRecords(*input)
			if err != nil {
				log.Printf("read input: %v", err)
				return
			}
		}

		rep, err := r.Run(ctx, op, records)
		if err != nil {
			log.Printf("%s: %v", op, err)
		}

		if m != nil {
			if snap := m.Dump(); snap != "" {
				fmt.Println("METRICS SNAPSHOT:" + snap)
			}
		}
		if *verbose && rep != nil {
			log.Printf("cycle finished in %s, total=%d errors=%d", time.Since(start).Truncate(time.Millisecond), rep.Counts.Total, rep.Counts.Errored)
		}
	}

	log.Printf("eventfeed started: op=%s interval=%s", op, interval.String())
	runOnce()
	if *once || ctx.Err() != nil {
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("stopping: %v", ctx.Err())
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

// buildRunner wires the normalization stack. The page cache and fetcher are
// only built for enrich.
func buildRunner(cfg *config.Config, st store.Store, m *metrics.Metrics, op runner.Op, verbose bool) (*runner.Runner, func(), error) {
	c := clock.NewSystem()
	d := diag.New(cfg.Diag.Capacity)

	zone, err := dates.ZonePolicyByName(cfg.Dates.Zoneless)
	if err != nil {
		return nil, nil, err
	}
	n := dates.New(c, dates.WithZonePolicy(zone), dates.WithDiag(d))
	s := sanitize.New(cfg.Sanitize)
	cats, err := categorize.New(cfg.Categories)
	if err != nil {
		return nil, nil, fmt.Errorf("categories: %w", err)
	}
	gate := quality.New(cfg.Gate, c, n)
	engine := enrich.New(n, s, c, enrich.DefaultPolicies(gate, s, cfg.Policy)...)

	sinks, err := report.NewSinksFromConfig(cfg.Reports)
	if err != nil {
		return nil, nil, fmt.Errorf("report sinks: %w", err)
	}
	for _, sk := range sinks {
		log.Printf("configured report sink: %s", sk.Name())
	}

	opts, err := runner.OptionsFromConfig(cfg)
	if err != nil {
		report.CloseAll(sinks)
		return nil, nil, err
	}
	opts.Verbose = verbose

	deps := runner.Deps{
		Store:     st,
		Engine:    engine,
		Gate:      gate,
		Builder:   pipeline.NewBuilder(n, s, cats, c, d),
		Sanitizer: s,
		Sinks:     sinks,
		Metrics:   m,
		Diag:      d,
		Clock:     c,
	}
	var pages cache.Cache
	if op == runner.OpEnrich {
		pages, err = cache.NewFromConfig(cfg.Cache, c)
		if err != nil {
			report.CloseAll(sinks)
			return nil, nil, fmt.Errorf("cache: %w", err)
		}
		if pages != nil {
			log.Printf("page cache: %s ttl=%s", pages.Name(), cfg.Cache.TTL)
		}
		f, err := fetch.NewFromConfig(cfg.Fetch, pages, c)
		if err != nil {
			report.CloseAll(sinks)
			return nil, nil, fmt.Errorf("fetcher: %w", err)
		}
		deps.Fetcher = f
		deps.Extractor = extract.New(d)
		log.Printf("fetcher: %s", f.Name())
	}

	cleanup := func() {
		report.CloseAll(sinks)
		if pages != nil {
			if err := pages.Close(); err != nil {
				log.Printf("close cache: %v", err)
			}
		}
	}
	return runner.New(deps, opts), cleanup, nil
}

func serve(ctx context.Context, s *api.Server) error {
	srv := s.HTTPServer()
	errCh := make(chan error, 1)
	go func() {
		log.Printf("serving feed API on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Printf("stopping: %v", ctx.Err())
		shutdown(srv)
		return nil
	}
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
