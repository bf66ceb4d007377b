package enrich

import (
	"unicode"

	"github.com/galois26/event-feed/internal/config"
	"github.com/galois26/event-feed/internal/model"
	"github.com/galois26/event-feed/internal/quality"
	"github.com/galois26/event-feed/internal/sanitize"
)

// Policy is a named status rule applied after the field merge.
type Policy interface {
	Name() string
	Apply(ev *model.Event) []Change
}

// DefaultPolicies returns sold-out, language (when enabled) and quality, in
// that order.
func DefaultPolicies(gate *quality.Gate, s *sanitize.Sanitizer, cfg config.PolicyConfig) []Policy {
	ps := []Policy{SoldOutPolicy{}}
	if cfg.CancelNonLatinEnabled() {
		ps = append(ps, LanguagePolicy{MinLatinRatio: cfg.LatinRatio, Sanitizer: s})
	}
	if gate != nil {
		ps = append(ps, QualityPolicy{Gate: gate})
	}
	return ps
}

// cancel moves ev to CANCELLED. CANCELLED is terminal: a second cancel keeps
// the first reason.
func cancel(ev *model.Event, reason string) []Change {
	if ev.Status == model.StatusCancelled {
		return nil
	}
	from := string(ev.Status)
	ev.Status = model.StatusCancelled
	ev.StatusReason = reason
	return []Change{{Field: "status", From: from, To: string(model.StatusCancelled) + ":" + reason}}
}

// SoldOutPolicy cancels events with no tickets left for anyone. A
// single-gender sell-out leaves the status alone.
type SoldOutPolicy struct{}

func (SoldOutPolicy) Name() string { return "sold-out" }

func (SoldOutPolicy) Apply(ev *model.Event) []Change {
	if ev.IsSoldOut || ev.GenderSoldOut == model.GenderBoth {
		return cancel(ev, model.ReasonSoldOut)
	}
	return nil
}

// LanguagePolicy cancels events whose meaningful description is mostly
// written in a non-Latin script.
type LanguagePolicy struct {
	MinLatinRatio float64
	Sanitizer     *sanitize.Sanitizer
}

func (LanguagePolicy) Name() string { return "language" }

func (p LanguagePolicy) Apply(ev *model.Event) []Change {
	if p.Sanitizer != nil && !p.Sanitizer.Meaningful(ev.Description) {
		return nil
	}
	threshold := p.MinLatinRatio
	if threshold <= 0 {
		threshold = 0.5
	}
	if LatinRatio(ev.Description) < threshold {
		return cancel(ev, model.ReasonUnsupportedLanguage)
	}
	return nil
}

// LatinRatio is the share of letters in text that are Latin script. Text
// without letters counts as fully Latin.
func LatinRatio(text string) float64 {
	letters, latin := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Latin, r) {
			latin++
		}
	}
	if letters == 0 {
		return 1
	}
	return float64(latin) / float64(letters)
}

// QualityPolicy re-runs the gate; a rejection cancels the event instead of
// deleting it, so the record stays available for audit.
type QualityPolicy struct {
	Gate *quality.Gate
}

func (QualityPolicy) Name() string { return "quality" }

func (p QualityPolicy) Apply(ev *model.Event) []Change {
	v := p.Gate.Check(*ev)
	if v.Accepted {
		return nil
	}
	return cancel(ev, v.Reasons[0])
}
