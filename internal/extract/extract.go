// Package extract reads an enrichment out of a fetched detail page.
//
// Three passes run in precedence order: schema.org JSON-LD, CSS selectors,
// then regular expressions over the visible body text. A later pass only
// fills fields the earlier ones left empty.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/galois26/event-feed/internal/diag"
	"github.com/galois26/event-feed/internal/model"
)

// Pass is one extraction strategy.
type Pass struct {
	Name string
	Run  func(doc *goquery.Document) model.Enrichment
}

type Extractor struct {
	passes []Pass
	diag   *diag.Collector
}

type Option func(*Extractor)

// WithSelectors replaces the CSS pass selectors.
func WithSelectors(s Selectors) Option {
	return func(e *Extractor) {
		for i := range e.passes {
			if e.passes[i].Name == "css" {
				e.passes[i].Run = s.run
			}
		}
	}
}

func New(d *diag.Collector, opts ...Option) *Extractor {
	e := &Extractor{diag: d}
	e.passes = []Pass{
		{Name: "json-ld", Run: e.jsonLD},
		{Name: "css", Run: DefaultSelectors.run},
		{Name: "text", Run: bodyText},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Result is the combined enrichment and the passes that contributed to it.
type Result struct {
	Enrichment model.Enrichment
	Passes     []string
}

// Extract parses html and runs every pass. url is stamped on the result.
func (e *Extractor) Extract(url, html string) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Result{}, fmt.Errorf("parse html %s: %w", url, err)
	}
	var res Result
	for _, p := range e.passes {
		got := p.Run(doc)
		if got.Empty() {
			continue
		}
		if fill(&res.Enrichment, got) {
			res.Passes = append(res.Passes, p.Name)
		}
	}
	res.Enrichment.URL = url
	return res, nil
}

// fill copies fields dst lacks from src and reports whether anything moved.
func fill(dst *model.Enrichment, src model.Enrichment) bool {
	moved := false
	setStr := func(d *string, s string) {
		if *d == "" && s != "" {
			*d = s
			moved = true
		}
	}
	setNum := func(d **float64, s *float64) {
		if *d == nil && s != nil {
			*d = s
			moved = true
		}
	}
	setStr(&dst.Description, src.Description)
	setStr(&dst.StartTime, src.StartTime)
	setStr(&dst.EndTime, src.EndTime)
	setStr(&dst.StartGuess, src.StartGuess)
	setStr(&dst.Image, src.Image)
	setStr(&dst.Price, src.Price)
	setNum(&dst.PriceAmount, src.PriceAmount)
	setNum(&dst.MinPrice, src.MinPrice)
	setNum(&dst.MaxPrice, src.MaxPrice)
	if len(dst.TicketTypes) == 0 && len(src.TicketTypes) > 0 {
		dst.TicketTypes = src.TicketTypes
		moved = true
	}
	if dst.LocationDetails == nil && src.LocationDetails != nil {
		dst.LocationDetails = src.LocationDetails
		moved = true
	}
	if dst.IsSoldOut == nil && src.IsSoldOut != nil {
		dst.IsSoldOut = src.IsSoldOut
		moved = true
	}
	if dst.GenderSoldOut == nil && src.GenderSoldOut != nil {
		dst.GenderSoldOut = src.GenderSoldOut
		moved = true
	}
	if !dst.IsRecurring && src.IsRecurring {
		dst.IsRecurring = true
		moved = true
	}
	if dst.Status == nil && src.Status != nil {
		dst.Status = src.Status
		moved = true
	}
	return moved
}
