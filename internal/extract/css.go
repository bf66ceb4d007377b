package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/galois26/event-feed/internal/model"
	"github.com/galois26/event-feed/internal/price"
	"github.com/galois26/event-feed/internal/sanitize"
)

// Selectors lists candidate CSS selectors per field; the first non-empty
// match wins. Meta tags are read from their content attribute.
type Selectors struct {
	Description []string
	Image       []string
	Start       []string
	End         []string
	Price       []string
	Venue       []string
	Address     []string
}

var DefaultSelectors = Selectors{
	Description: []string{
		`[data-testid="description"]`,
		`.event-description`,
		`.structured-content-rich-text`,
		`meta[property="og:description"]`,
		`meta[name="description"]`,
	},
	Image: []string{`meta[property="og:image"]`, `meta[name="twitter:image"]`, `.event-hero img`},
	Start: []string{`meta[property="event:start_time"]`, `time[itemprop="startDate"]`, `.event-details time`, `time[datetime]`},
	End:   []string{`meta[property="event:end_time"]`, `time[itemprop="endDate"]`},
	Price: []string{
		`meta[property="product:price:amount"]`,
		`[data-testid="price"]`,
		`.conversion-bar__panel-info`,
		`.ticket-price`,
		`.event-price`,
	},
	Venue:   []string{`[data-testid="venue-name"]`, `.location-info__address-text`, `.venue-name`},
	Address: []string{`[data-testid="venue-address"]`, `.location-info__address`, `.venue-address`},
}

// value reads attribute-bearing elements before falling back to text.
func value(s *goquery.Selection) string {
	for _, attr := range []string{"content", "datetime", "src"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if h, err := s.Html(); err == nil {
		return sanitize.PlainText(h)
	}
	return sanitize.PlainText(s.Text())
}

func first(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if v := value(doc.Find(sel).First()); v != "" {
			return v
		}
	}
	return ""
}

func (s Selectors) run(doc *goquery.Document) model.Enrichment {
	out := model.Enrichment{
		Description: first(doc, s.Description),
		Image:       first(doc, s.Image),
		StartTime:   first(doc, s.Start),
		EndTime:     first(doc, s.End),
	}
	if p := first(doc, s.Price); p != "" {
		r := price.Parse(p, nil)
		if r.Valid {
			out.Price = p
			out.PriceAmount = r.Amount
			if lo, hi := price.Range(p); lo != nil && *hi > *lo {
				out.MinPrice, out.MaxPrice = lo, hi
			}
		}
	}
	venue, addr := first(doc, s.Venue), first(doc, s.Address)
	if addr == venue {
		addr = ""
	}
	if venue != "" || addr != "" {
		out.LocationDetails = &model.LocationDetails{Venue: venue, Address: addr}
	}
	return out
}
