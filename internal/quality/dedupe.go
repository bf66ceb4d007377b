package quality

import (
	"fmt"

	"github.com/galois26/event-feed/internal/dates"
	"github.com/galois26/event-feed/internal/model"
)

// Keep selects which record survives when two share an id.
type Keep int

const (
	KeepFirst Keep = iota
	KeepLatest
)

func ParseKeep(s string) (Keep, error) {
	switch s {
	case "", "latest":
		return KeepLatest, nil
	case "first":
		return KeepFirst, nil
	}
	return KeepFirst, fmt.Errorf("unknown dedupe policy: %s", s)
}

// Key is the identity used for deduplication: the id, or the id the URL
// would produce when the id is missing.
func Key(ev model.Event) string {
	if ev.ID != "" {
		return ev.ID
	}
	return model.EventID(ev.URL)
}

// Dedupe removes records whose id was already seen and returns how many
// were dropped. Survivors keep the position of the first occurrence. With
// KeepLatest the record with the newest lastUpdated wins; ties go to the
// later record. Records with neither id nor URL are kept as they are.
func Dedupe(events []model.Event, keep Keep) ([]model.Event, int) {
	out := make([]model.Event, 0, len(events))
	index := make(map[string]int, len(events))
	dropped := 0
	for _, ev := range events {
		k := Key(ev)
		if k == "" {
			out = append(out, ev)
			continue
		}
		i, seen := index[k]
		if !seen {
			index[k] = len(out)
			out = append(out, ev)
			continue
		}
		dropped++
		if keep == KeepLatest && !newer(out[i].LastUpdated, ev.LastUpdated) {
			out[i] = ev
		}
	}
	return out, dropped
}

// newer reports whether a is strictly newer than b.
func newer(a, b string) bool {
	ta, okA := dates.ParseCanonical(a)
	tb, okB := dates.ParseCanonical(b)
	switch {
	case okA && okB:
		return ta.After(tb)
	case okA:
		return true
	case okB:
		return false
	}
	return a > b
}
