// Package enrich folds partial results from secondary extraction passes into
// a stored event without corrupting fields that were already good.
//
// A merge runs in two passes. MergeFields applies the per-field precedence
// rules and has no status side effects beyond an explicit MOVED signal.
// ApplyPolicy then runs the named status policies in order.
package enrich

import (
	"fmt"
	"math"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/galois26/event-feed/internal/clock"
	"github.com/galois26/event-feed/internal/dates"
	"github.com/galois26/event-feed/internal/model"
	"github.com/galois26/event-feed/internal/price"
	"github.com/galois26/event-feed/internal/sanitize"
)

// Multi-Day applies to spans longer than a day and no longer than this.
const maxMultiDaySpan = 30 * 24 * time.Hour

// Change records one field mutation for the run report.
type Change struct {
	Field string `json:"field"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

// Result is a merged event plus everything that changed on the way.
type Result struct {
	Event   model.Event
	Changes []Change
}

// StatusChanged reports whether the merge moved the status.
func (r Result) StatusChanged() bool {
	for _, c := range r.Changes {
		if c.Field == "status" {
			return true
		}
	}
	return false
}

type Engine struct {
	dates    *dates.Normalizer
	sanitize *sanitize.Sanitizer
	clock    clock.Clock
	policies []Policy
}

// New builds an engine. Policies run in the given order.
func New(n *dates.Normalizer, s *sanitize.Sanitizer, c clock.Clock, policies ...Policy) *Engine {
	c = clock.OrSystem(c)
	if n == nil {
		n = dates.New(c)
	}
	return &Engine{dates: n, sanitize: s, clock: c, policies: policies}
}

// Policies returns the configured policy names in order.
func (e *Engine) Policies() []string {
	names := make([]string, 0, len(e.policies))
	for _, p := range e.policies {
		names = append(names, p.Name())
	}
	return names
}

// Merge applies fields, then policies, then refreshes lastUpdated.
func (e *Engine) Merge(base model.Event, en model.Enrichment) Result {
	ev, changes := e.MergeFields(base, en)
	ev, more := e.ApplyPolicy(ev)
	changes = append(changes, more...)
	ev.LastUpdated = e.clock.Now().In(dates.Civil()).Format(dates.Layout)
	return Result{Event: ev, Changes: changes}
}

// MergeFields applies the per-field precedence rules. base is not mutated.
func (e *Engine) MergeFields(base model.Event, en model.Enrichment) (model.Event, []Change) {
	ev := base.Clone()
	var changes []Change
	record := func(field, from, to string) {
		if from != to {
			changes = append(changes, Change{Field: field, From: from, To: to})
		}
	}

	e.mergePrice(&ev, en, record)
	e.mergeTickets(&ev, en, record)
	e.mergeTimes(&ev, en, record)
	e.mergeDescription(&ev, en, record)
	e.mergeLocation(&ev, en, record)
	e.mergeSoldOut(&ev, en, record)
	e.mergeMultiDay(&ev, en, record)
	e.mergeImage(&ev, en, record)

	if en.Status != nil && *en.Status == model.StatusMoved && (ev.Status == model.StatusUpcoming || ev.Status == "") {
		record("status", string(ev.Status), string(model.StatusMoved))
		ev.Status = model.StatusMoved
		ev.StatusReason = model.ReasonMoved
	}
	return ev, changes
}

type recorder func(field, from, to string)

func fmtAmount(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func usable(p *float64) bool {
	return p != nil && *p >= 0 && !math.IsNaN(*p) && !math.IsInf(*p, 0)
}

// mergePrice takes the enrichment amount when the base has none, when the
// base shows the unavailable sentinel, or when the amounts differ.
func (e *Engine) mergePrice(ev *model.Event, en model.Enrichment, record recorder) {
	amount := en.PriceAmount
	if amount == nil && en.Price != "" {
		amount = price.Parse(en.Price, nil).Amount
	}
	if usable(amount) {
		take := ev.PriceAmount == nil ||
			ev.Price == model.PriceUnavailable ||
			*ev.PriceAmount != *amount
		if take {
			e.setAmount(ev, *amount, record)
		}
	}

	supplied := false
	if usable(en.MinPrice) {
		record("minPrice", fmtAmount(ev.MinPrice), fmtAmount(en.MinPrice))
		ev.MinPrice = model.Float(*en.MinPrice)
		supplied = true
	}
	if usable(en.MaxPrice) {
		record("maxPrice", fmtAmount(ev.MaxPrice), fmtAmount(en.MaxPrice))
		ev.MaxPrice = model.Float(*en.MaxPrice)
		supplied = true
	}
	if !supplied {
		return
	}
	lo := ev.MinPrice
	if lo == nil || (ev.MaxPrice != nil && *ev.MaxPrice < *lo) {
		lo = ev.MaxPrice
	}
	if lo != nil && (ev.PriceAmount == nil || *ev.PriceAmount != *lo) {
		e.setAmount(ev, *lo, record)
	}
}

func (e *Engine) setAmount(ev *model.Event, v float64, record recorder) {
	r := price.Parse("", &v)
	record("priceAmount", fmtAmount(ev.PriceAmount), fmtAmount(r.Amount))
	record("price", ev.Price, r.Display)
	ev.PriceAmount = r.Amount
	ev.Price = r.Display
}

func (e *Engine) mergeTickets(ev *model.Event, en model.Enrichment, record recorder) {
	if len(en.TicketTypes) == 0 {
		return
	}
	record("ticketTypes", strconv.Itoa(len(ev.TicketTypes)), strconv.Itoa(len(en.TicketTypes)))
	ev.TicketTypes = append([]model.TicketType(nil), en.TicketTypes...)
}

func (e *Engine) mergeTimes(ev *model.Event, en model.Enrichment, record recorder) {
	start := en.StartTime
	if start == "" && ev.Date == "" {
		start = en.StartGuess
	}
	if start != "" {
		if d, ok := e.dates.Normalize(start); ok {
			record("date", ev.Date, d)
			ev.Date = d
		}
	}
	if en.EndTime != "" {
		if d, ok := e.dates.Normalize(en.EndTime); ok {
			record("endDate", ev.EndDate, d)
			ev.EndDate = d
		}
	}
}

// mergeDescription keeps the longer text by rune count; a base that carries
// no real content always yields to a meaningful enrichment.
func (e *Engine) mergeDescription(ev *model.Event, en model.Enrichment, record recorder) {
	if en.Description == "" || !e.meaningful(en.Description) {
		return
	}
	candidate := sanitize.PlainText(en.Description)
	if e.meaningful(ev.Description) && utf8.RuneCountInString(candidate) <= utf8.RuneCountInString(ev.Description) {
		return
	}
	record("description", Clip(ev.Description), Clip(candidate))
	ev.Description = candidate
}

func (e *Engine) meaningful(text string) bool {
	if e.sanitize == nil {
		return sanitize.PlainText(text) != ""
	}
	return e.sanitize.Meaningful(text)
}

// Clip shortens s to a rune-safe excerpt for change records.
func Clip(s string) string {
	const n = 60
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

func (e *Engine) mergeLocation(ev *model.Event, en model.Enrichment, record recorder) {
	if en.LocationDetails == nil {
		return
	}
	ld := *en.LocationDetails
	ev.LocationDetails = &ld
	loc := sanitize.Location(ev.Location, &ld)
	record("location", ev.Location, loc)
	ev.Location = loc
}

func (e *Engine) mergeSoldOut(ev *model.Event, en model.Enrichment, record recorder) {
	if en.IsSoldOut != nil {
		record("isSoldOut", strconv.FormatBool(ev.IsSoldOut), strconv.FormatBool(*en.IsSoldOut))
		ev.IsSoldOut = *en.IsSoldOut
	}
	if en.GenderSoldOut != nil {
		record("genderSoldOut", string(ev.GenderSoldOut), string(*en.GenderSoldOut))
		ev.GenderSoldOut = *en.GenderSoldOut
	}
}

func (e *Engine) mergeMultiDay(ev *model.Event, en model.Enrichment, record recorder) {
	multi := en.IsRecurring
	if !multi {
		start, ok1 := e.dates.Parse(ev.Date)
		end, ok2 := e.dates.Parse(ev.EndDate)
		if ok1 && ok2 {
			span := end.Sub(start)
			multi = span > 24*time.Hour && span <= maxMultiDaySpan
		}
	}
	if multi && ev.AddCategory(model.CategoryMultiDay) {
		record("categories", "", fmt.Sprintf("+%s", model.CategoryMultiDay))
	}
}

// mergeImage replaces only fallback or placeholder images.
func (e *Engine) mergeImage(ev *model.Event, en model.Enrichment, record recorder) {
	if en.Image == "" || e.sanitize == nil || !e.sanitize.IsFallbackImage(ev.Image) {
		return
	}
	img := e.sanitize.Image(en.Image, ev.Categories)
	if e.sanitize.IsFallbackImage(img) {
		return
	}
	record("image", ev.Image, img)
	ev.Image = img
}

// ApplyPolicy runs the status policies in order on a copy of ev.
func (e *Engine) ApplyPolicy(ev model.Event) (model.Event, []Change) {
	out := ev.Clone()
	var changes []Change
	for _, p := range e.policies {
		changes = append(changes, p.Apply(&out)...)
	}
	return out, changes
}
