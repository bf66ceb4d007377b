package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/galois26/event-feed/internal/enrich"
	"github.com/galois26/event-feed/internal/model"
	"github.com/galois26/event-feed/internal/report"
)

type fetched struct {
	enrichment model.Enrichment
	err        error
}

// Enrich re-fetches the selected events batch by batch and merges what the
// extractor finds back into the collection.
func (r *Runner) Enrich(ctx context.Context) (*report.Report, error) {
	if r.Fetcher == nil || r.Extractor == nil {
		return nil, errors.New("enrich needs a fetcher and an extractor")
	}
	rep := r.begin(OpEnrich)
	events, err := r.Store.Load(ctx)
	if err != nil {
		r.finish(ctx, rep, nil, err)
		return rep, fmt.Errorf("load: %w", err)
	}

	candidates := r.selectCandidates(events)
	log.Printf("[enrich] %d of %d events selected (scope=%s limit=%d)", len(candidates), len(events), r.opts.Scope, r.opts.Limit)

	dirty := false
	var stopErr error
	for start := 0; start < len(candidates); start += r.opts.BatchSize {
		if start > 0 {
			if stopErr = r.sleep(ctx, r.opts.BatchDelay); stopErr != nil {
				break
			}
		}
		end := min(start+r.opts.BatchSize, len(candidates))
		batch := candidates[start:end]

		results, err := r.fetchBatch(ctx, events, batch)
		for i, idx := range batch {
			if results[i] == nil {
				// never started: the context ended while staggering
				continue
			}
			if r.apply(rep, &events[idx], *results[i]) {
				dirty = true
			}
		}
		if err != nil {
			stopErr = err
			break
		}
		if r.opts.Verbose {
			log.Printf("[enrich] batch %d-%d of %d done", start+1, end, len(candidates))
		}
	}
	if stopErr != nil {
		log.Printf("[enrich] stopping early: %v", stopErr)
	}

	var saveErr error
	if dirty {
		if saveErr = r.Store.Save(context.WithoutCancel(ctx), events); saveErr != nil {
			saveErr = fmt.Errorf("save: %w", saveErr)
		}
	}
	r.finish(ctx, rep, events, saveErr)
	if saveErr != nil {
		return rep, saveErr
	}
	return rep, stopErr
}

// fetchBatch starts one fetch per candidate, staggered by the item delay,
// and waits for all of them. Slots left nil were never started.
func (r *Runner) fetchBatch(ctx context.Context, events []model.Event, batch []int) ([]*fetched, error) {
	results := make([]*fetched, len(batch))
	var (
		wg      sync.WaitGroup
		stopErr error
	)
	for i, idx := range batch {
		if i > 0 {
			if stopErr = r.sleep(ctx, r.opts.ItemDelay); stopErr != nil {
				break
			}
		}
		url := events[idx].URL
		res := &fetched{}
		results[i] = res
		wg.Add(1)
		go func() {
			defer wg.Done()
			res.enrichment, res.err = r.fetchOne(ctx, url)
		}()
	}
	wg.Wait()
	return results, stopErr
}

func (r *Runner) fetchOne(ctx context.Context, url string) (model.Enrichment, error) {
	start := time.Now()
	page, err := r.Fetcher.Fetch(ctx, url)
	r.Metrics.ObserveFetch(r.Fetcher.Name(), time.Since(start), err)
	if err != nil {
		return model.Enrichment{}, err
	}
	res, err := r.Extractor.Extract(page.URL, page.HTML)
	if err != nil {
		return model.Enrichment{}, fmt.Errorf("extract: %w", err)
	}
	return res.Enrichment, nil
}

// apply merges one fetch result into ev and reports it. It returns whether
// ev was replaced.
func (r *Runner) apply(rep *report.Report, ev *model.Event, f fetched) bool {
	if f.err != nil {
		r.fail(rep, ev.ID, ev.URL, f.err)
		return false
	}
	res := r.Engine.Merge(*ev, f.enrichment)
	verdict := r.Gate.Check(res.Event)

	it := report.Item{
		ID:        ev.ID,
		URL:       ev.URL,
		Changes:   res.Changes,
		Reasons:   append(append([]string{}, verdict.Reasons...), verdict.Flags...),
		Cancelled: res.StatusChanged() && res.Event.Status == model.StatusCancelled,
	}
	if it.Cancelled && !contains(it.Reasons, res.Event.StatusReason) {
		it.Reasons = append(it.Reasons, res.Event.StatusReason)
	}
	it.Outcome = outcome(verdict.Accepted, res.Changes)
	r.add(rep, it)

	*ev = res.Event
	return true
}

func outcome(accepted bool, changes []enrich.Change) report.Outcome {
	switch {
	case !accepted:
		return report.Rejected
	case len(changes) > 0:
		return report.Fixed
	}
	return report.Valid
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
