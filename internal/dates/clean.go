package dates

import (
	"regexp"
	"strings"
)

var (
	bulletReplacer = strings.NewReplacer(
		"•", " | ", "·", " | ", "▪", " | ", "●", " | ", "‧", " | ",
		" ", " ", " ", " ", "\t", " ", "\n", " ", "\r", " ",
	)
	spaceRun      = regexp.MustCompile(`\s+`)
	leadingNoise  = regexp.MustCompile(`(?i)^(?:starts?(?:\s+on)?|from|date|when|begins?)\s*:?\s+`)
	trailingAt    = regexp.MustCompile(`(?i)(?:\s+at|\s*@)\s*$`)
	rangeDelim    = regexp.MustCompile(`\s*[–—]\s*|\s+-\s+|\s+to\s+`)
	yearToken     = regexp.MustCompile(`\b(20\d{2})\b`)
	endsWithDay   = regexp.MustCompile(`(?i)` + monthPattern + `\s+\d{1,2}(?:st|nd|rd|th)?$`)
	hasClock      = regexp.MustCompile(`(?i)\d(?::\d{2}|\s*[ap]\.?m\b)`)
	mentionsMonth = regexp.MustCompile(`(?i)\b` + monthPattern + `\b|\d{1,2}/\d{1,2}|\d{4}-\d{2}-\d{2}`)
)

// Clean strips delimiter noise and collapses ranges to their start.
//
//	"Sat, Jan 27 • 8:00 PM – 11:00 PM EST"  -> "Sat, Jan 27 | 8:00 PM"
//	"Jan 27 – Jan 29, 2025"                 -> "Jan 27, 2025"
func Clean(s string) string {
	s = bulletReplacer.Replace(s)
	s = spaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
	if s == "" {
		return ""
	}
	s = leadingNoise.ReplaceAllString(s, "")
	s = collapseRange(s)
	s = trailingAt.ReplaceAllString(s, "")
	s = strings.Trim(s, " ,;|")
	return spaceRun.ReplaceAllString(s, " ")
}

// collapseRange keeps the start of "A – B". A dash that only separates a date
// from its start time ("Jan 27 - 8 PM") is a separator, not a range.
func collapseRange(s string) string {
	loc := rangeDelim.FindStringIndex(s)
	if loc == nil {
		return s
	}
	left, right := strings.TrimSpace(s[:loc[0]]), strings.TrimSpace(s[loc[1]:])
	if left == "" {
		return right
	}
	if right == "" {
		return left
	}
	isRange := hasClock.MatchString(left) || mentionsMonth.MatchString(right)
	if !isRange {
		return left + " | " + right
	}
	if !yearToken.MatchString(left) && endsWithDay.MatchString(left) {
		if m := yearToken.FindString(right); m != "" {
			left += ", " + m
		}
	}
	return left
}
