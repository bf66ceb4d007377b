// Package report accumulates the per-run summary of a maintenance operation
// and pushes it to the configured sinks.
package report

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/galois26/event-feed/internal/enrich"
)

// Outcome is the bucket an item lands in.
type Outcome string

const (
	Valid    Outcome = "valid"    // accepted, nothing changed
	Fixed    Outcome = "fixed"    // accepted after at least one change
	Rejected Outcome = "rejected" // gate said no
	Errored  Outcome = "errored"  // fetch or processing failure
)

type Counts struct {
	Total     int `json:"total"`
	Valid     int `json:"valid"`
	Fixed     int `json:"fixed"`
	Rejected  int `json:"rejected"`
	Errored   int `json:"errored"`
	Cancelled int `json:"cancelled"`
	Deduped   int `json:"deduped"`
	Added     int `json:"added,omitempty"`
	Removed   int `json:"removed,omitempty"`
}

type ItemError struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Message string `json:"message"`
}

// Change is one field mutation attributed to an event.
type Change struct {
	ID    string `json:"id"`
	Field string `json:"field"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

// Item is what the runner knows about one processed event.
type Item struct {
	ID        string
	URL       string
	Outcome   Outcome
	Reasons   []string
	Changes   []enrich.Change
	Cancelled bool // status moved to CANCELLED during this run
}

type Report struct {
	RunID      string         `json:"run_id"`
	Op         string         `json:"op"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Counts     Counts         `json:"counts"`
	Reasons    map[string]int `json:"reasons"`
	Changes    []Change       `json:"changes"`
	Errors     []ItemError    `json:"errors"`
	Diag       map[string]int `json:"diag,omitempty"`
}

func New(op string, started time.Time) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Op:        op,
		StartedAt: started,
		Reasons:   map[string]int{},
		Changes:   []Change{},
		Errors:    []ItemError{},
	}
}

// Add counts one item.
func (r *Report) Add(it Item) {
	r.Counts.Total++
	switch it.Outcome {
	case Valid:
		r.Counts.Valid++
	case Fixed:
		r.Counts.Fixed++
	case Rejected:
		r.Counts.Rejected++
	case Errored:
		r.Counts.Errored++
	}
	if it.Cancelled {
		r.Counts.Cancelled++
	}
	for _, reason := range it.Reasons {
		r.Reasons[reason]++
	}
	for _, c := range it.Changes {
		r.Changes = append(r.Changes, Change{ID: it.ID, Field: c.Field, From: c.From, To: c.To})
	}
}

// Fail records an item that could not be processed.
func (r *Report) Fail(id, url string, err error) {
	r.Counts.Total++
	r.Counts.Errored++
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	r.Errors = append(r.Errors, ItemError{ID: id, URL: url, Message: msg})
}

func (r *Report) Finish(at time.Time, diagCounts map[string]int) {
	r.FinishedAt = at
	if len(diagCounts) > 0 {
		r.Diag = diagCounts
	}
}

func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary flattens the counts into the key-value shape used by run state
// and line-oriented sinks.
func (r *Report) Summary() map[string]int {
	c := r.Counts
	return map[string]int{
		"total":     c.Total,
		"valid":     c.Valid,
		"fixed":     c.Fixed,
		"rejected":  c.Rejected,
		"errored":   c.Errored,
		"cancelled": c.Cancelled,
		"deduped":   c.Deduped,
		"added":     c.Added,
		"removed":   c.Removed,
	}
}

// ReasonKeys returns reason names sorted for stable output.
func (r *Report) ReasonKeys() []string {
	keys := make([]string, 0, len(r.Reasons))
	for k := range r.Reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func summaryKeys() []string {
	return []string{"total", "valid", "fixed", "rejected", "errored", "cancelled", "deduped", "added", "removed"}
}
