// Package price turns the many ways listings spell a ticket price into a
// numeric amount plus a display string.
package price

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/galois26/event-feed/internal/model"
)

// Ceiling bounds plausible ticket prices; anything at or above it is noise
// (phone numbers, years, postal codes).
const Ceiling = 1_000_000

// Result is a parsed price. Valid is true exactly when Amount is set.
type Result struct {
	Display string
	Amount  *float64
	Valid   bool
}

func unavailable() Result {
	return Result{Display: model.PriceUnavailable}
}

func valid(v float64) Result {
	v = math.Round(v*100) / 100
	return Result{Display: Format(v), Amount: &v, Valid: true}
}

// Strategy is one rung of the text ladder. decided reports whether the
// strategy settled the outcome; later strategies are not consulted.
type Strategy struct {
	Name  string
	Parse func(text string) (r Result, decided bool)
}

// Strategies returns the text ladder in precedence order.
func Strategies() []Strategy {
	return []Strategy{
		{Name: "free", Parse: parseFree},
		{Name: "sentinel", Parse: parseSentinel},
		{Name: "currency-token", Parse: parseCurrencyToken},
		{Name: "bare-number", Parse: parseBareNumber},
	}
}

var ladder = Strategies()

// Parse resolves text. A usable known amount wins over any text.
func Parse(text string, known *float64) Result {
	if r, ok := fromKnown(known); ok {
		return r
	}
	text = strings.TrimSpace(text)
	for _, s := range ladder {
		if r, ok := s.Parse(text); ok {
			return r
		}
	}
	return unavailable()
}

// ParseValue accepts the loosely typed values scrapers produce.
func ParseValue(v any, known *float64) Result {
	if r, ok := fromKnown(known); ok {
		return r
	}
	switch x := v.(type) {
	case nil:
		return unavailable()
	case string:
		return Parse(x, nil)
	case float64:
		return fromNumber(x)
	case float32:
		return fromNumber(float64(x))
	case int:
		return fromNumber(float64(x))
	case int64:
		return fromNumber(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Parse(x.String(), nil)
		}
		return fromNumber(f)
	case *float64:
		if x == nil {
			return unavailable()
		}
		return fromNumber(*x)
	default:
		return Parse(fmt.Sprint(v), nil)
	}
}

func fromKnown(known *float64) (Result, bool) {
	if known == nil || *known < 0 || math.IsNaN(*known) || math.IsInf(*known, 0) {
		return Result{}, false
	}
	return valid(*known), true
}

func fromNumber(v float64) Result {
	if !inBand(v) {
		return unavailable()
	}
	return valid(v)
}

func inBand(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v < Ceiling
}

// Format renders an amount: 0 is "Free", whole amounts drop the cents.
func Format(v float64) string {
	if v == 0 {
		return model.PriceFree
	}
	if v == math.Trunc(v) {
		return "$" + strconv.FormatFloat(v, 'f', 0, 64)
	}
	return "$" + strconv.FormatFloat(v, 'f', 2, 64)
}

var (
	freeWord  = regexp.MustCompile(`(?i)\bfree\b`)
	sentinels = setOf("", "see tickets", "tba", "tbd", "n/a", "na", "-", "price tba", "price tbd",
		"check website", "see website", "to be announced")
	numberPattern = `(\d{1,3}(?:,\d{3})+|\d+)(?:\.(\d+))?`
	currencyToken = regexp.MustCompile(`(?i)(?:ca\$|c\$|cad\s*\$?|\$)\s*` + numberPattern + `|` + numberPattern + `\s*(?:\$|cad\b)`)
	bareNumber    = regexp.MustCompile(`-?` + numberPattern)
)

func setOf(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

func parseFree(text string) (Result, bool) {
	if freeWord.MatchString(text) {
		return valid(0), true
	}
	return Result{}, false
}

func parseSentinel(text string) (Result, bool) {
	if sentinels[strings.ToLower(strings.Trim(text, " .!"))] {
		return unavailable(), true
	}
	return Result{}, false
}

func parseCurrencyToken(text string) (Result, bool) {
	for _, m := range currencyToken.FindAllStringSubmatch(text, -1) {
		whole, frac := m[1], m[2]
		if whole == "" {
			whole, frac = m[3], m[4]
		}
		if v, ok := toFloat(whole, frac); ok {
			return valid(v), true
		}
	}
	return Result{}, false
}

func parseBareNumber(text string) (Result, bool) {
	m := bareNumber.FindStringSubmatch(text)
	if m == nil {
		return Result{}, false
	}
	if strings.HasPrefix(m[0], "-") {
		return unavailable(), true
	}
	if v, ok := toFloat(m[1], m[2]); ok {
		return valid(v), true
	}
	return unavailable(), true
}

func toFloat(whole, frac string) (float64, bool) {
	s := strings.ReplaceAll(whole, ",", "")
	if frac != "" {
		s += "." + frac
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !inBand(v) {
		return 0, false
	}
	return v, true
}

// Range collects every in-band currency token in text, for tier strings
// like "$20 – $45". Both results are nil when none are found.
func Range(text string) (lo, hi *float64) {
	for _, m := range currencyToken.FindAllStringSubmatch(text, -1) {
		whole, frac := m[1], m[2]
		if whole == "" {
			whole, frac = m[3], m[4]
		}
		v, ok := toFloat(whole, frac)
		if !ok {
			continue
		}
		if lo == nil || v < *lo {
			lo = model.Float(v)
		}
		if hi == nil || v > *hi {
			hi = model.Float(v)
		}
	}
	return lo, hi
}
