// Package soldout reads sold-out signals, including single-gender sell-outs,
// out of listing text.
package soldout

import (
	"regexp"

	"github.com/galois26/event-feed/internal/model"
)

// Inference is what the text says about availability. IsSoldOut covers the
// undifferentiated allocation; a single-gender sell-out leaves it false.
type Inference struct {
	IsSoldOut     bool
	GenderSoldOut model.Gender
}

// Complete reports a sell-out that leaves nobody able to buy a ticket.
func (i Inference) Complete() bool {
	return i.IsSoldOut || i.GenderSoldOut == model.GenderBoth
}

const (
	soldOutPattern = `sold[\s-]?out`
	malePattern    = `(?:males?|men'?s?|guys|gents|gentlemen)`
	femalePattern  = `(?:females?|women'?s?|ladies|girls)`
)

var (
	negated = regexp.MustCompile(`(?i)\b(?:not(?:\s+yet)?|almost|nearly|never)\s+` + soldOutPattern)
	soldOut = regexp.MustCompile(`(?i)\b` + soldOutPattern + `\b`)

	// "Men sold out", "Men's tickets sold out", "sold out for women"
	maleSoldOut   = regexp.MustCompile(`(?i)\b` + malePattern + `(?:\s+(?:tickets?|entry|admission))?\s*(?:are\s+|is\s+|:\s*|-\s*)?` + soldOutPattern + `|` + soldOutPattern + `\s+(?:for\s+)?` + malePattern + `\b`)
	femaleSoldOut = regexp.MustCompile(`(?i)\b` + femalePattern + `(?:\s+(?:tickets?|entry|admission))?\s*(?:are\s+|is\s+|:\s*|-\s*)?` + soldOutPattern + `|` + soldOutPattern + `\s+(?:for\s+)?` + femalePattern + `\b`)
)

// Infer is a pure function of text.
func Infer(text string) Inference {
	if text == "" {
		return Inference{GenderSoldOut: model.GenderNone}
	}
	cleaned := negated.ReplaceAllString(text, " ")

	male := maleSoldOut.MatchString(cleaned)
	female := femaleSoldOut.MatchString(cleaned)

	// gender-qualified phrases do not count as a general sell-out
	rest := maleSoldOut.ReplaceAllString(cleaned, " ")
	rest = femaleSoldOut.ReplaceAllString(rest, " ")
	general := soldOut.MatchString(rest)

	inf := Inference{IsSoldOut: general, GenderSoldOut: model.GenderNone}
	switch {
	case male && female:
		inf.GenderSoldOut = model.GenderBoth
		inf.IsSoldOut = true
	case male:
		inf.GenderSoldOut = model.GenderMale
	case female:
		inf.GenderSoldOut = model.GenderFemale
	}
	return inf
}
