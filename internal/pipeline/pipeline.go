// Package pipeline turns loosely typed scraper output into canonical events.
//
// Builder is the normalization contract every scraper feeds: dates, prices
// and the textual fields are coerced independently, then combined into a
// baseline event. Processor runs the status policies and the quality gate on
// top of a baseline.
package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/galois26/event-feed/internal/categorize"
	"github.com/galois26/event-feed/internal/clock"
	"github.com/galois26/event-feed/internal/dates"
	"github.com/galois26/event-feed/internal/diag"
	"github.com/galois26/event-feed/internal/enrich"
	"github.com/galois26/event-feed/internal/model"
	"github.com/galois26/event-feed/internal/price"
	"github.com/galois26/event-feed/internal/quality"
	"github.com/galois26/event-feed/internal/sanitize"
	"github.com/galois26/event-feed/internal/soldout"
)

var ErrMissingURL = errors.New("raw record has no url")

// RawRecord is a scraped listing as the scraper saw it. Date, EndDate,
// Price and PriceAmount accept strings, numbers, time values or nothing.
type RawRecord struct {
	URL         string             `json:"url"`
	Source      string             `json:"source,omitempty"`
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Date        any                `json:"date,omitempty"`
	EndDate     any                `json:"endDate,omitempty"`
	Price       any                `json:"price,omitempty"`
	PriceAmount any                `json:"priceAmount,omitempty"`
	Location    string             `json:"location,omitempty"`
	Image       string             `json:"image,omitempty"`
	TicketTypes []model.TicketType `json:"ticketTypes,omitempty"`
	Categories  []string           `json:"categories,omitempty"`
	Text        string             `json:"text,omitempty"` // body text used for sold-out inference
	Online      bool               `json:"online,omitempty"`
	Platform    string             `json:"platform,omitempty"`
}

type Builder struct {
	dates    *dates.Normalizer
	sanitize *sanitize.Sanitizer
	cats     *categorize.Categorizer
	clock    clock.Clock
	diag     *diag.Collector
}

func NewBuilder(n *dates.Normalizer, s *sanitize.Sanitizer, cats *categorize.Categorizer, c clock.Clock, d *diag.Collector) *Builder {
	c = clock.OrSystem(c)
	if n == nil {
		n = dates.New(c, dates.WithDiag(d))
	}
	return &Builder{dates: n, sanitize: s, cats: cats, clock: c, diag: d}
}

// Build produces the baseline event. A record without a resolvable date is
// still built, with an empty date; rejecting it is the gate's job.
func (b *Builder) Build(r RawRecord) (model.Event, error) {
	url := strings.TrimSpace(r.URL)
	if url == "" {
		return model.Event{}, ErrMissingURL
	}
	ev := model.Event{
		ID:     model.EventID(url),
		URL:    url,
		Source: strings.TrimSpace(r.Source),
		Status: model.StatusUpcoming,
	}
	ev.Title = b.sanitize.Title(r.Title)
	ev.Description = b.sanitize.Description(r.Description)

	ev.Date, _ = b.dates.NormalizeValue(r.Date)
	ev.EndDate, _ = b.dates.NormalizeValue(r.EndDate)

	if len(r.TicketTypes) > 0 {
		ev.TicketTypes = append([]model.TicketType(nil), r.TicketTypes...)
	}
	b.setPrice(&ev, r.Price, r.PriceAmount)

	var details *model.LocationDetails
	if r.Online {
		details = &model.LocationDetails{IsOnline: true, Platform: strings.TrimSpace(r.Platform)}
	}
	ev.LocationDetails = details
	ev.Location = sanitize.Location(r.Location, details)

	for _, c := range r.Categories {
		ev.AddCategory(strings.TrimSpace(c))
	}
	b.categorize(&ev)
	ev.Image = b.sanitize.Image(r.Image, ev.Categories)

	inf := soldout.Infer(strings.TrimSpace(r.Title + "\n" + r.Text))
	ev.IsSoldOut = inf.IsSoldOut
	ev.GenderSoldOut = inf.GenderSoldOut

	ev.LastUpdated = b.clock.Now().In(dates.Civil()).Format(dates.Layout)
	return ev, nil
}

func (b *Builder) categorize(ev *model.Event) {
	if b.cats != nil {
		b.cats.Apply(ev)
		return
	}
	if len(ev.Categories) == 0 {
		ev.AddCategory(model.CategoryOther)
	}
}

// setPrice resolves the display price and amount. Tier strings such as
// "$20 - $45" also fill min and max; without any price, the cheapest ticket
// tier is used.
func (b *Builder) setPrice(ev *model.Event, display, amount any) {
	known := price.ParseValue(amount, nil).Amount
	res := price.ParseValue(display, known)
	if text, ok := display.(string); ok && known == nil {
		if lo, hi := price.Range(text); lo != nil && *hi > *lo {
			ev.MinPrice, ev.MaxPrice = lo, hi
		}
	}
	if !res.Valid {
		var lo *float64
		for _, t := range ev.TicketTypes {
			r := price.Parse(t.Price, nil)
			if r.Valid && (lo == nil || *r.Amount < *lo) {
				lo = r.Amount
			}
		}
		if lo != nil {
			res = price.Parse("", lo)
		}
	}
	if raw := toString(display); !res.Valid && raw != "" && !strings.EqualFold(raw, model.PriceUnavailable) {
		b.diag.Raw("price", raw, "no amount resolved")
	}
	ev.Price = res.Display
	ev.PriceAmount = res.Amount
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	}
	return fmt.Sprint(v)
}

// Renormalize re-runs the field normalizers over a stored event. Status,
// sold-out flags and ticket tiers are kept as they are.
func (b *Builder) Renormalize(ev model.Event) model.Event {
	out := ev.Clone()
	if out.ID == "" && out.URL != "" {
		out.ID = model.EventID(out.URL)
	}
	out.Title = b.sanitize.Title(out.Title)
	out.Description = b.sanitize.Description(out.Description)
	out.Date, _ = b.dates.Normalize(out.Date)
	out.EndDate, _ = b.dates.Normalize(out.EndDate)

	if out.MinPrice != nil || out.MaxPrice != nil {
		lo := out.MinPrice
		if lo == nil || (out.MaxPrice != nil && *out.MaxPrice < *lo) {
			lo = out.MaxPrice
		}
		res := price.Parse("", lo)
		out.Price, out.PriceAmount = res.Display, res.Amount
	} else {
		res := price.Parse(out.Price, out.PriceAmount)
		out.Price, out.PriceAmount = res.Display, res.Amount
	}

	out.Location = sanitize.Location(out.Location, out.LocationDetails)
	b.categorize(&out)
	if b.sanitize.IsFallbackImage(out.Image) {
		out.Image = b.sanitize.FallbackImage(out.Categories)
	} else {
		out.Image = b.sanitize.Image(out.Image, out.Categories)
	}
	if out.Status == "" {
		out.Status = model.StatusUpcoming
	}
	if out.GenderSoldOut == "" {
		out.GenderSoldOut = model.GenderNone
	}
	return out
}

// Outcome is a processed record: the event after policies, the gate verdict
// and the policy changes that got it there.
type Outcome struct {
	Event   model.Event
	Verdict quality.Verdict
	Changes []enrich.Change
}

type Processor struct {
	builder *Builder
	engine  *enrich.Engine
	gate    *quality.Gate
}

func NewProcessor(b *Builder, e *enrich.Engine, g *quality.Gate) *Processor {
	return &Processor{builder: b, engine: e, gate: g}
}

// Process builds r and runs the same policy pass a merge would, with an
// empty enrichment, so Multi-Day tagging and cancellations match.
func (p *Processor) Process(r RawRecord) (Outcome, error) {
	ev, err := p.builder.Build(r)
	if err != nil {
		return Outcome{}, err
	}
	res := p.engine.Merge(ev, model.Enrichment{})
	out := Outcome{Event: res.Event, Changes: res.Changes}
	if p.gate != nil {
		out.Verdict = p.gate.Check(res.Event)
	} else {
		out.Verdict = quality.Verdict{Accepted: true}
	}
	return out, nil
}
