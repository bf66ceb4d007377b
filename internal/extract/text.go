package extract

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/galois26/event-feed/internal/model"
	"github.com/galois26/event-feed/internal/price"
	"github.com/galois26/event-feed/internal/sanitize"
	"github.com/galois26/event-feed/internal/soldout"
)

var (
	priceContext = regexp.MustCompile(`(?i)(?:price|tickets?|admission|entry|cover|from)\b[^.\n]{0,40}?(?:ca\$|c\$|cad|\$)\s*\d[\d,]*(?:\.\d+)?(?:\s*(?:-|–|to)\s*(?:ca\$|c\$|cad|\$)?\s*\d[\d,]*(?:\.\d+)?)?`)
	freeEntry    = regexp.MustCompile(`(?i)\bfree\s+(?:entry|admission|event|to attend)\b`)
	textDate     = regexp.MustCompile(`(?i)\b(?:(?:mon|tue|wed|thu|fri|sat|sun)[a-z]*,?\s+)?(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?(?:\s*(?:at|@|·|\|)?\s*\d{1,2}(?::\d{2})?\s*[ap]\.?m\.?)`)
	onlineEvent  = regexp.MustCompile(`(?i)\b(?:online event|virtual event|livestream(?:ed)? event)\b`)
)

// bodyText is the last resort: regular expressions over the visible text.
func bodyText(doc *goquery.Document) model.Enrichment {
	h, err := doc.Find("body").Html()
	if err != nil {
		return model.Enrichment{}
	}
	text := sanitize.PlainText(h)
	if text == "" {
		return model.Enrichment{}
	}

	var out model.Enrichment
	inf := soldout.Infer(text)
	if inf.IsSoldOut || inf.GenderSoldOut != model.GenderNone {
		out.IsSoldOut = model.Bool(inf.IsSoldOut)
		g := inf.GenderSoldOut
		out.GenderSoldOut = &g
	}

	if m := priceContext.FindString(text); m != "" {
		r := price.Parse(m, nil)
		if r.Valid {
			out.Price = r.Display
			out.PriceAmount = r.Amount
			if lo, hi := price.Range(m); lo != nil && *hi > *lo {
				out.MinPrice, out.MaxPrice = lo, hi
			}
		}
	} else if freeEntry.MatchString(text) {
		out.Price = model.PriceFree
		out.PriceAmount = model.Float(0)
	}

	if m := textDate.FindString(text); m != "" {
		out.StartGuess = m
	}
	if onlineEvent.MatchString(text) {
		out.LocationDetails = &model.LocationDetails{IsOnline: true}
	}
	return out
}
