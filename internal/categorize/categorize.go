// Package categorize tags events with categories from keyword and regex
// rules. Categories only accumulate; an event with none gets the fallback.
package categorize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/galois26/event-feed/internal/config"
	"github.com/galois26/event-feed/internal/model"
)

// DefaultKeywords is used when the configuration has no rules at all.
var DefaultKeywords = []config.KeywordRule{
	{When: []string{"concert", "live music", "dj", "jazz", "band", "orchestra", "symphony", "hip hop", "techno", "album release"}, Category: "Music"},
	{When: []string{"party", "nightclub", "club night", "rave", "afterhours", "after hours"}, Category: "Nightlife"},
	{When: []string{"comedy", "stand-up", "standup", "improv"}, Category: "Comedy"},
	{When: []string{"theatre", "theater", "musical", "opera", "ballet", "gallery", "exhibition", "art show"}, Category: "Arts & Theatre"},
	{When: []string{"festival", "fest"}, Category: "Festival"},
	{When: []string{"food", "wine", "beer", "tasting", "brunch", "culinary"}, Category: "Food & Drink"},
	{When: []string{"marathon", "tournament", "yoga", "match", "hockey", "basketball", "soccer"}, Category: "Sports & Fitness"},
	{When: []string{"networking", "conference", "workshop", "seminar", "meetup", "summit"}, Category: "Business"},
	{When: []string{"kids", "family", "children"}, Category: "Family"},
}

type rule struct {
	field    string
	re       *regexp.Regexp
	category string
}

// Categorizer applies compiled rules.
type Categorizer struct {
	rules    []rule
	fallback string
}

// New compiles cfg. Keyword rules match any listed word on word boundaries
// in the title or description; regex rules run against a single field.
func New(cfg config.CategoriesConfig) (*Categorizer, error) {
	c := &Categorizer{fallback: cfg.Fallback}
	if c.fallback == "" {
		c.fallback = model.CategoryOther
	}
	keywords := cfg.Keywords
	if len(keywords) == 0 && len(cfg.Regex) == 0 {
		keywords = DefaultKeywords
	}
	for _, kr := range keywords {
		if strings.TrimSpace(kr.Category) == "" {
			continue
		}
		words := make([]string, 0, len(kr.When))
		for _, w := range kr.When {
			if s := strings.TrimSpace(w); s != "" {
				words = append(words, regexp.QuoteMeta(strings.ToLower(s)))
			}
		}
		if len(words) == 0 {
			continue
		}
		re := regexp.MustCompile(`(?i)\b(?:` + strings.Join(words, "|") + `)\b`)
		c.rules = append(c.rules, rule{field: "text", re: re, category: kr.Category})
	}
	for _, rr := range cfg.Regex {
		if strings.TrimSpace(rr.Expr) == "" || strings.TrimSpace(rr.Category) == "" {
			continue
		}
		re, err := regexp.Compile(rr.Expr)
		if err != nil {
			return nil, fmt.Errorf("category regex %q: %w", rr.Expr, err)
		}
		field := strings.ToLower(strings.TrimSpace(rr.Field))
		if field == "" {
			field = "text"
		}
		c.rules = append(c.rules, rule{field: field, re: re, category: rr.Category})
	}
	return c, nil
}

func field(ev *model.Event, name string) string {
	switch name {
	case "title":
		return ev.Title
	case "description":
		return ev.Description
	case "url":
		return ev.URL
	case "location":
		return ev.Location
	case "source":
		return ev.Source
	default:
		return ev.Title + "\n" + ev.Description
	}
}

// Match returns the categories the rules assign, in rule order.
func (c *Categorizer) Match(ev *model.Event) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range c.rules {
		if seen[r.category] {
			continue
		}
		val := field(ev, r.field)
		if val == "" {
			continue
		}
		if r.re.MatchString(val) {
			seen[r.category] = true
			out = append(out, r.category)
		}
	}
	return out
}

// Apply adds matched categories to ev and returns how many were new. The
// fallback is dropped once a real category is present and added when the
// set would otherwise be empty.
func (c *Categorizer) Apply(ev *model.Event) int {
	added := 0
	for _, cat := range c.Match(ev) {
		if ev.AddCategory(cat) {
			added++
		}
	}
	if c.hasReal(ev) {
		c.removeFallback(ev)
	} else if ev.AddCategory(c.fallback) {
		added++
	}
	return added
}

func (c *Categorizer) hasReal(ev *model.Event) bool {
	for _, cat := range ev.Categories {
		if !strings.EqualFold(cat, c.fallback) && cat != model.CategoryMultiDay {
			return true
		}
	}
	return false
}

func (c *Categorizer) removeFallback(ev *model.Event) {
	out := ev.Categories[:0]
	for _, cat := range ev.Categories {
		if !strings.EqualFold(cat, c.fallback) {
			out = append(out, cat)
		}
	}
	ev.Categories = out
}
