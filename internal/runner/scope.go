package runner

import (
	"strings"
	"time"

	"github.com/galois26/event-feed/internal/dates"
	"github.com/galois26/event-feed/internal/model"
)

// selectCandidates returns the indexes of events an enrich run should
// re-fetch, in collection order, capped by the limit.
func (r *Runner) selectCandidates(events []model.Event) []int {
	now := r.Clock.Now()
	var out []int
	for i := range events {
		ev := &events[i]
		if strings.TrimSpace(ev.URL) == "" {
			continue
		}
		var pick bool
		switch r.opts.Scope {
		case ScopeAll:
			pick = true
		case ScopeUpcoming:
			pick = upcoming(ev, now)
		default:
			pick = r.incomplete(ev)
		}
		if !pick {
			continue
		}
		out = append(out, i)
		if r.opts.Limit > 0 && len(out) >= r.opts.Limit {
			break
		}
	}
	return out
}

// incomplete is true when a re-fetch could still fill something in.
func (r *Runner) incomplete(ev *model.Event) bool {
	if ev.Status == model.StatusCancelled {
		return false
	}
	if ev.PriceAmount == nil || ev.EndDate == "" || ev.Date == "" {
		return true
	}
	if r.Sanitizer != nil {
		return !r.Sanitizer.Meaningful(ev.Description) || r.Sanitizer.IsFallbackImage(ev.Image)
	}
	return false
}

// upcoming is true for live events whose end (or start) is not yet past.
func upcoming(ev *model.Event, now time.Time) bool {
	if ev.Status == model.StatusCancelled {
		return false
	}
	t, ok := dates.ParseCanonical(ev.EndDate)
	if !ok {
		t, ok = dates.ParseCanonical(ev.Date)
	}
	return ok && !t.Before(now)
}

// past is true when the event has finished before now.
func past(ev *model.Event, now time.Time) bool {
	t, ok := dates.ParseCanonical(ev.EndDate)
	if !ok {
		t, ok = dates.ParseCanonical(ev.Date)
	}
	return ok && t.Before(now)
}
