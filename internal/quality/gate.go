// Package quality decides whether a merged event may stay in the collection.
package quality

import (
	"fmt"
	"time"

	"github.com/galois26/event-feed/internal/clock"
	"github.com/galois26/event-feed/internal/config"
	"github.com/galois26/event-feed/internal/dates"
	"github.com/galois26/event-feed/internal/model"
)

type PriceMode string

const (
	PriceReject PriceMode = "reject"
	PriceFlag   PriceMode = "flag"
)

// Gate holds the acceptance thresholds. A zero PriceCeiling, MaxPast or
// MaxFuture disables that check.
type Gate struct {
	PriceCeiling float64
	PriceMode    PriceMode
	MaxPast      time.Duration
	MaxFuture    time.Duration

	clock clock.Clock
	dates *dates.Normalizer
}

func New(cfg config.GateConfig, c clock.Clock, n *dates.Normalizer) *Gate {
	c = clock.OrSystem(c)
	if n == nil {
		n = dates.New(c)
	}
	mode := PriceMode(cfg.PriceMode)
	if mode != PriceFlag {
		mode = PriceReject
	}
	return &Gate{
		PriceCeiling: cfg.PriceCeiling,
		PriceMode:    mode,
		MaxPast:      cfg.MaxPast,
		MaxFuture:    cfg.MaxFuture,
		clock:        c,
		dates:        n,
	}
}

// Verdict is the outcome of Check. Reasons block acceptance; Flags do not.
type Verdict struct {
	Accepted bool
	Reasons  []string
	Flags    []string
}

func (v Verdict) String() string {
	if v.Accepted {
		return fmt.Sprintf("accepted flags=%v", v.Flags)
	}
	return fmt.Sprintf("rejected reasons=%v", v.Reasons)
}

// Check evaluates ev. An unresolvable start date is always a rejection.
// An ongoing multi-day event is judged by its end date for the past bound.
func (g *Gate) Check(ev model.Event) Verdict {
	var v Verdict

	start, ok := g.dates.Parse(ev.Date)
	if !ok {
		v.Reasons = append(v.Reasons, model.ReasonDateUnresolvable)
	} else {
		end := start
		if e, ok := g.dates.Parse(ev.EndDate); ok && e.After(start) {
			end = e
		}
		now := g.clock.Now()
		if g.MaxPast > 0 && end.Before(now.Add(-g.MaxPast)) {
			v.Reasons = append(v.Reasons, model.ReasonDateOutOfWindow)
		} else if g.MaxFuture > 0 && start.After(now.Add(g.MaxFuture)) {
			v.Reasons = append(v.Reasons, model.ReasonDateOutOfWindow)
		}
	}

	if g.PriceCeiling > 0 && ev.PriceAmount != nil && *ev.PriceAmount > g.PriceCeiling {
		if g.PriceMode == PriceFlag {
			v.Flags = append(v.Flags, model.ReasonPriceOverCeiling)
		} else {
			v.Reasons = append(v.Reasons, model.ReasonPriceOverCeiling)
		}
	}

	v.Accepted = len(v.Reasons) == 0
	return v
}

func (g *Gate) Accept(ev model.Event) bool {
	return g.Check(ev).Accepted
}

// Filter splits events into accepted and rejected, preserving order.
func (g *Gate) Filter(events []model.Event) (accepted, rejected []model.Event) {
	for _, ev := range events {
		if g.Accept(ev) {
			accepted = append(accepted, ev)
		} else {
			rejected = append(rejected, ev)
		}
	}
	return accepted, rejected
}
