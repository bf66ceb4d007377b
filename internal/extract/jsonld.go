package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/galois26/event-feed/internal/model"
	"github.com/galois26/event-feed/internal/price"
)

// jsonLD reads the first schema.org Event found in the page's ld+json blocks.
func (e *Extractor) jsonLD(doc *goquery.Document) model.Enrichment {
	var out model.Enrichment
	found := false
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return true
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			e.diag.Raw("extract", raw, "invalid ld+json: "+err.Error())
			return true
		}
		if ev := findEvent(v); ev != nil {
			out = fromEvent(ev)
			found = true
			return false
		}
		return true
	})
	if !found {
		return model.Enrichment{}
	}
	return out
}

// findEvent walks arrays and @graph containers.
func findEvent(v any) map[string]any {
	switch x := v.(type) {
	case []any:
		for _, item := range x {
			if ev := findEvent(item); ev != nil {
				return ev
			}
		}
	case map[string]any:
		if isEventType(x["@type"]) {
			return x
		}
		if g, ok := x["@graph"]; ok {
			return findEvent(g)
		}
	}
	return nil
}

func isEventType(t any) bool {
	switch x := t.(type) {
	case string:
		return strings.HasSuffix(x, "Event")
	case []any:
		for _, item := range x {
			if isEventType(item) {
				return true
			}
		}
	}
	return false
}

func str(m map[string]any, key string) string {
	switch x := m[key].(type) {
	case string:
		return strings.TrimSpace(x)
	case float64, json.Number:
		return strings.TrimSpace(toText(x))
	}
	return ""
}

func toText(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// list treats a single object as a one-element list.
func list(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	}
	return []any{v}
}

func fromEvent(ev map[string]any) model.Enrichment {
	out := model.Enrichment{
		Description: str(ev, "description"),
		StartTime:   str(ev, "startDate"),
		EndTime:     str(ev, "endDate"),
		Image:       image(ev["image"]),
	}
	offers(&out, ev["offers"])
	out.LocationDetails = location(ev)

	if _, ok := ev["eventSchedule"]; ok {
		out.IsRecurring = true
	}
	if len(list(ev["subEvent"])) > 1 {
		out.IsRecurring = true
	}
	status := str(ev, "eventStatus")
	if strings.HasSuffix(status, "EventMovedOnline") || strings.HasSuffix(status, "EventRescheduled") {
		moved := model.StatusMoved
		out.Status = &moved
	}
	return out
}

func image(v any) string {
	for _, item := range list(v) {
		switch x := item.(type) {
		case string:
			if s := strings.TrimSpace(x); s != "" {
				return s
			}
		case map[string]any:
			if s := str(x, "url"); s != "" {
				return s
			}
		}
	}
	return ""
}

// offers fills tiers, the price range and availability. Every offer sold
// out means the event is sold out; any buyable offer means it is not.
func offers(out *model.Enrichment, v any) {
	var lo, hi *float64
	seen, soldOut := 0, 0
	consider := func(p *float64) {
		if p == nil {
			return
		}
		if lo == nil || *p < *lo {
			lo = model.Float(*p)
		}
		if hi == nil || *p > *hi {
			hi = model.Float(*p)
		}
	}
	for _, item := range list(v) {
		o := asMap(item)
		if o == nil {
			continue
		}
		seen++
		amount := offerAmount(o, "price")
		low, high := offerAmount(o, "lowPrice"), offerAmount(o, "highPrice")
		consider(amount)
		consider(low)
		consider(high)

		avail := str(o, "availability")
		if strings.HasSuffix(avail, "SoldOut") {
			soldOut++
		}
		tier := model.TicketType{Name: str(o, "name"), Availability: availability(avail)}
		switch {
		case amount != nil:
			tier.Price = price.Format(*amount)
		case low != nil:
			tier.Price = price.Format(*low)
		}
		if tier.Name != "" || tier.Price != "" {
			out.TicketTypes = append(out.TicketTypes, tier)
		}
	}
	if lo != nil {
		out.PriceAmount = lo
		out.Price = price.Format(*lo)
		if hi != nil && *hi > *lo {
			out.MinPrice, out.MaxPrice = lo, hi
		}
	}
	if seen > 0 {
		out.IsSoldOut = model.Bool(soldOut == seen)
	}
}

func offerAmount(o map[string]any, key string) *float64 {
	r := price.ParseValue(o[key], nil)
	if o[key] == nil || !r.Valid {
		return nil
	}
	return r.Amount
}

func availability(v string) string {
	if i := strings.LastIndex(v, "/"); i >= 0 {
		v = v[i+1:]
	}
	return v
}

func location(ev map[string]any) *model.LocationDetails {
	online := strings.HasSuffix(str(ev, "eventAttendanceMode"), "OnlineEventAttendanceMode")
	for _, item := range list(ev["location"]) {
		var loc map[string]any
		switch x := item.(type) {
		case string:
			if s := strings.TrimSpace(x); s != "" {
				return &model.LocationDetails{Venue: s, IsOnline: online}
			}
			continue
		case map[string]any:
			loc = x
		default:
			continue
		}
		t, _ := loc["@type"].(string)
		if t == "VirtualLocation" {
			return &model.LocationDetails{IsOnline: true, Platform: platform(str(loc, "url"))}
		}
		ld := &model.LocationDetails{Venue: str(loc, "name"), IsOnline: online}
		switch a := loc["address"].(type) {
		case string:
			ld.Address = strings.TrimSpace(a)
		case map[string]any:
			ld.Address = str(a, "streetAddress")
			ld.City = str(a, "addressLocality")
			ld.Region = str(a, "addressRegion")
			ld.PostalCode = str(a, "postalCode")
		}
		if ld.Venue != "" || ld.Address != "" || ld.City != "" || ld.IsOnline {
			return ld
		}
	}
	if online {
		return &model.LocationDetails{IsOnline: true}
	}
	return nil
}

var platforms = []struct{ host, name string }{
	{"zoom.us", "Zoom"},
	{"meet.google", "Google Meet"},
	{"teams.microsoft", "Microsoft Teams"},
	{"youtube.", "YouTube"},
	{"twitch.tv", "Twitch"},
	{"facebook.com", "Facebook Live"},
}

func platform(u string) string {
	u = strings.ToLower(u)
	for _, p := range platforms {
		if strings.Contains(u, p.host) {
			return p.name
		}
	}
	return ""
}
