// Package dates turns free-text and machine date strings scraped from event
// sites into canonical timestamps in the civil timezone (America/Toronto).
//
// Parsing is an ordered ladder of named strategies; the first strategy that
// produces an in-band date wins. Inputs that no strategy resolves are reported
// as unknown, never replaced by a synthetic date.
package dates

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/galois26/event-feed/internal/clock"
	"github.com/galois26/event-feed/internal/diag"
)

const (
	// Layout is the canonical output format: second precision, numeric offset.
	Layout = "2006-01-02T15:04:05-07:00"

	// CivilZone is the fixed display and implicit-interpretation timezone.
	CivilZone = "America/Toronto"

	displayLayout        = "Monday, January 2, 2006 at 3:04 PM"
	displayLayoutSeconds = "Monday, January 2, 2006 at 3:04:05 PM"

	minYear = 2001
	maxYear = 2099

	// Year-less dates further than this in the past are assumed to be next year.
	rollForwardAfter = 183 * 24 * time.Hour
)

var civil = mustLoadCivil()

func mustLoadCivil() *time.Location {
	loc, err := time.LoadLocation(CivilZone)
	if err != nil {
		panic(fmt.Sprintf("dates: load %s: %v", CivilZone, err))
	}
	return loc
}

// Civil returns the civil timezone location.
func Civil() *time.Location { return civil }

// ZonePolicy decides which instant a zoneless wall-clock reading denotes.
// wall carries the reading in UTC fields; the result must be in loc.
type ZonePolicy func(wall time.Time, loc *time.Location) time.Time

// AssumeCivil reads zoneless wall-clock times as already being civil time.
// A source that emits bare UTC is misread under this policy; configure
// AssumeUTC for it.
func AssumeCivil(wall time.Time, loc *time.Location) time.Time {
	return time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(), wall.Nanosecond(), loc)
}

// AssumeUTC reads zoneless wall-clock times as UTC.
func AssumeUTC(wall time.Time, loc *time.Location) time.Time {
	return time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(), wall.Nanosecond(), time.UTC).In(loc)
}

// ZonePolicyByName maps a configuration value to a policy.
func ZonePolicyByName(name string) (ZonePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "civil", "local":
		return AssumeCivil, nil
	case "utc":
		return AssumeUTC, nil
	default:
		return nil, fmt.Errorf("unknown zoneless policy: %s", name)
	}
}

// Normalizer resolves date strings. It is safe for concurrent use.
type Normalizer struct {
	clock      clock.Clock
	loc        *time.Location
	zone       ZonePolicy
	diag       *diag.Collector
	strategies []Strategy
}

type Option func(*Normalizer)

func WithZonePolicy(p ZonePolicy) Option {
	return func(n *Normalizer) {
		if p != nil {
			n.zone = p
		}
	}
}

func WithDiag(c *diag.Collector) Option {
	return func(n *Normalizer) { n.diag = c }
}

// WithStrategies replaces the default ladder.
func WithStrategies(s []Strategy) Option {
	return func(n *Normalizer) {
		if len(s) > 0 {
			n.strategies = s
		}
	}
}

func New(c clock.Clock, opts ...Option) *Normalizer {
	n := &Normalizer{
		clock:      clock.OrSystem(c),
		loc:        civil,
		zone:       AssumeCivil,
		strategies: DefaultStrategies(),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

func (n *Normalizer) context() Context {
	return Context{Now: n.clock.Now().In(n.loc), Loc: n.loc, Zone: n.zone}
}

// Parse resolves input to an instant in the civil zone.
func (n *Normalizer) Parse(input string) (time.Time, bool) {
	t, _, ok := n.parse(input)
	return t, ok
}

// ParseWith is Parse that also reports the winning strategy name.
func (n *Normalizer) ParseWith(input string) (time.Time, string, bool) {
	return n.parse(input)
}

func (n *Normalizer) parse(input string) (time.Time, string, bool) {
	s := Clean(input)
	if s == "" {
		return time.Time{}, "", false
	}
	t, name, ok := firstSuccess(n.strategies, s, n.context())
	if !ok {
		n.diag.Error("dates", input, "no strategy resolved input")
		return time.Time{}, "", false
	}
	return t, name, true
}

// Normalize returns the canonical form of input, or ("", false) when the
// date is unknown.
func (n *Normalizer) Normalize(input string) (string, bool) {
	t, ok := n.Parse(input)
	if !ok {
		return "", false
	}
	return t.Format(Layout), true
}

// NormalizeTime formats an already-resolved instant.
func (n *Normalizer) NormalizeTime(t time.Time) (string, bool) {
	if t.IsZero() || !inBand(t.In(n.loc)) {
		return "", false
	}
	return t.In(n.loc).Format(Layout), true
}

// NormalizeValue accepts the loosely-typed values scrapers hand over:
// strings, time values, epoch numbers, or nil.
func (n *Normalizer) NormalizeValue(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return n.Normalize(x)
	case time.Time:
		return n.NormalizeTime(x)
	case *time.Time:
		if x == nil {
			return "", false
		}
		return n.NormalizeTime(*x)
	case float64:
		return n.NormalizeTime(epoch(int64(x)))
	case int64:
		return n.NormalizeTime(epoch(x))
	case int:
		return n.NormalizeTime(epoch(int64(x)))
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return n.NormalizeTime(epoch(i))
		}
		if f, err := x.Float64(); err == nil {
			return n.NormalizeTime(epoch(int64(f)))
		}
		return n.Normalize(x.String())
	case fmt.Stringer:
		return n.Normalize(x.String())
	default:
		n.diag.Error("dates", fmt.Sprintf("%v", v), fmt.Sprintf("unsupported date value type %T", v))
		return "", false
	}
}

// epoch reads values above 1e11 as milliseconds.
func epoch(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	if v > 100_000_000_000 {
		return time.UnixMilli(v)
	}
	return time.Unix(v, 0)
}

// ParseCanonical parses a value produced by Normalize.
func ParseCanonical(s string) (time.Time, bool) {
	t, err := time.Parse(Layout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t.In(civil), true
}

// DisplayForm renders a canonical timestamp the way listings show it. The
// result normalizes back to the same instant.
func DisplayForm(canonical string) string {
	t, ok := ParseCanonical(canonical)
	if !ok {
		return ""
	}
	if t.Second() != 0 {
		return t.Format(displayLayoutSeconds)
	}
	return t.Format(displayLayout)
}

func inBand(t time.Time) bool {
	return t.Year() >= minYear && t.Year() <= maxYear
}
