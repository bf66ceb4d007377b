package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Context carries the reference instant and zone rules into a strategy.
type Context struct {
	Now  time.Time
	Loc  *time.Location
	Zone ZonePolicy
}

// Strategy is one named rung of the parse ladder. Parse receives cleaned
// input and reports whether it recognised it.
type Strategy struct {
	Name  string
	Parse func(s string, c Context) (time.Time, bool)
}

// DefaultStrategies returns the ladder in precedence order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "direct", Parse: parseDirect},
		{Name: "weekday-month-day", Parse: parseWeekdayMonthDay},
		{Name: "iso-local", Parse: parseISOLocal},
		{Name: "us-numeric", Parse: parseUSNumeric},
		{Name: "weekday-full-at", Parse: parseWeekdayFullAt},
		{Name: "textual-month", Parse: parseTextualMonth},
		{Name: "month-day-time", Parse: parseMonthDayTime},
		{Name: "relative", Parse: parseRelative},
	}
}

func firstSuccess(strategies []Strategy, s string, c Context) (time.Time, string, bool) {
	for _, st := range strategies {
		t, ok := st.Parse(s, c)
		if !ok {
			continue
		}
		t = t.In(c.Loc)
		if !inBand(t) {
			continue
		}
		return t, st.Name, true
	}
	return time.Time{}, "", false
}

const (
	monthPattern   = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sept?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?`
	weekdayPattern = `(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tues|tue|wed|thurs|thur|thu|fri|sat|sun)\.?`
	dayPattern     = `(\d{1,2})(?:st|nd|rd|th)?`
	sepPattern     = `(?:\s*(?:\||,|@|\bat\b|-)\s*|\s+)`
)

var (
	epochRe         = regexp.MustCompile(`^\d{10}$|^\d{13}$`)
	jsZoneNameRe    = regexp.MustCompile(`\s*\([^)]*\)$`)
	weekdayMonthDay = regexp.MustCompile(`(?i)^` + weekdayPattern + `,?\s+` + monthPattern + `\s+` + dayPattern + `(?:` + sepPattern + `(.+))?$`)
	isoLocalRe      = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})(?:[Tt ](\d{2}):(\d{2})(?::(\d{2})(?:\.\d+)?)?)?$`)
	usNumericRe     = regexp.MustCompile(`(?i)^(\d{1,2})/(\d{1,2})/(\d{4}|\d{2})(?:` + sepPattern + `(.+))?$`)
	weekdayFullAtRe = regexp.MustCompile(`(?i)^` + weekdayPattern + `,\s+` + monthPattern + `\s+` + dayPattern + `,\s+(\d{4})\s+at\s+(.+)$`)
	textualMonthRe  = regexp.MustCompile(`(?i)^(?:` + weekdayPattern + `,?\s+)?` + monthPattern + `\s+` + dayPattern + `,?\s+(\d{4})(?:` + sepPattern + `(.+))?$`)
	textualDayRe    = regexp.MustCompile(`(?i)^(?:` + weekdayPattern + `,?\s+)?` + dayPattern + `\s+` + monthPattern + `,?\s+(\d{4})(?:` + sepPattern + `(.+))?$`)
	monthDayTimeRe  = regexp.MustCompile(`(?i)^` + monthPattern + `\s+` + dayPattern + `(?:` + sepPattern + `(.+))?$`)
	dayMonthTimeRe  = regexp.MustCompile(`(?i)^` + dayPattern + `\s+` + monthPattern + `(?:` + sepPattern + `(.+))?$`)
	relativeRe      = regexp.MustCompile(`(?i)^(today|tonight|tomorrow)(?:` + sepPattern + `(.+))?$`)
)

var (
	clockRe           = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?(?::(\d{2}))?\s*(?:([ap])\.?m\.?)?(?:\s*\(?(et|est|edt|eastern|utc|gmt|z)\)?)?$`)
	clockLeadingNoise = regexp.MustCompile(`(?i)^(?:[|,@-]\s*|at\s+|starting\s+at\s+|doors\s+)+`)
)

type layout struct {
	value string
	zoned bool
}

var directLayouts = []layout{
	{time.RFC3339Nano, true},
	{time.RFC3339, true},
	{"2006-01-02T15:04Z07:00", true},
	{"2006-01-02T15:04:05Z0700", true},
	{"2006-01-02 15:04:05Z07:00", true},
	{"2006-01-02 15:04:05 -0700", true},
	{"2006-01-02 15:04:05 -0700 MST", true},
	{time.RFC1123Z, true},
	{time.RFC1123, true},
	{time.RFC822Z, true},
	{time.RFC822, true},
	{time.RFC850, true},
	{time.UnixDate, true},
	{time.RubyDate, true},
	{"Mon Jan 02 2006 15:04:05 GMT-0700", true},
	{time.ANSIC, false},
}

// parseDirect handles machine formats: RFC family, Date.toString output and
// epoch seconds or milliseconds.
func parseDirect(s string, c Context) (time.Time, bool) {
	if epochRe.MatchString(s) {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return epoch(v), true
	}
	s = jsZoneNameRe.ReplaceAllString(s, "")
	for _, l := range directLayouts {
		if l.zoned {
			if t, err := time.ParseInLocation(l.value, s, c.Loc); err == nil {
				return resolveAbbrev(t)
			}
			continue
		}
		if t, err := time.Parse(l.value, s); err == nil {
			return c.Zone(t, c.Loc), true
		}
	}
	return time.Time{}, false
}

// Offsets in hours for abbreviations listing sites emit.
var zoneAbbrevs = map[string]float64{
	"NST": -3.5, "NDT": -2.5,
	"AST": -4, "ADT": -3,
	"EST": -5, "EDT": -4,
	"CST": -6, "CDT": -5,
	"MST": -7, "MDT": -6,
	"PST": -8, "PDT": -7,
	"AKST": -9, "AKDT": -8,
	"HST": -10,
	"BST": 1, "CET": 1, "CEST": 2,
}

// resolveAbbrev fixes instants whose zone abbreviation the parse location
// does not define: time.Parse puts those in a zero-offset zone named after
// the abbreviation. Unknown abbreviations fail.
func resolveAbbrev(t time.Time) (time.Time, bool) {
	name, off := t.Zone()
	if off != 0 || t.Location().String() != name {
		return t, true
	}
	switch name {
	case "", "UTC", "GMT", "Z", "UT":
		return t, true
	}
	h, ok := zoneAbbrevs[strings.ToUpper(name)]
	if !ok {
		return time.Time{}, false
	}
	zone := time.FixedZone(name, int(h*3600))
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), zone), true
}

func parseWeekdayMonthDay(s string, c Context) (time.Time, bool) {
	m := weekdayMonthDay.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	return c.yearless(m[1], m[2], m[3])
}

func parseISOLocal(s string, c Context) (time.Time, bool) {
	m := isoLocalRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	var ct clockTime
	if m[4] != "" {
		ct.h, _ = strconv.Atoi(m[4])
		ct.m, _ = strconv.Atoi(m[5])
		if m[6] != "" {
			ct.s, _ = strconv.Atoi(m[6])
		}
		if ct.h > 23 || ct.m > 59 || ct.s > 59 {
			return time.Time{}, false
		}
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	return c.build(y, time.Month(mo), d, ct)
}

// parseUSNumeric reads M/D/Y. When the first field cannot be a month but the
// second can, the order is taken as D/M/Y.
func parseUSNumeric(s string, c Context) (time.Time, bool) {
	m := usNumericRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	ct, ok := parseClock(m[4])
	if !ok {
		return time.Time{}, false
	}
	mo, _ := strconv.Atoi(m[1])
	d, _ := strconv.Atoi(m[2])
	if mo > 12 && d <= 12 {
		mo, d = d, mo
	}
	y, _ := strconv.Atoi(m[3])
	if y < 100 {
		y += 2000
	}
	return c.build(y, time.Month(mo), d, ct)
}

func parseWeekdayFullAt(s string, c Context) (time.Time, bool) {
	m := weekdayFullAtRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	return c.dated(m[1], m[2], m[3], m[4])
}

func parseTextualMonth(s string, c Context) (time.Time, bool) {
	if m := textualMonthRe.FindStringSubmatch(s); m != nil {
		return c.dated(m[1], m[2], m[3], m[4])
	}
	if m := textualDayRe.FindStringSubmatch(s); m != nil {
		return c.dated(m[2], m[1], m[3], m[4])
	}
	return time.Time{}, false
}

// parseMonthDayTime handles year-less listings such as "Jan 27 | 11:00 PM".
func parseMonthDayTime(s string, c Context) (time.Time, bool) {
	if m := monthDayTimeRe.FindStringSubmatch(s); m != nil {
		return c.yearless(m[1], m[2], m[3])
	}
	if m := dayMonthTimeRe.FindStringSubmatch(s); m != nil {
		return c.yearless(m[2], m[1], m[3])
	}
	return time.Time{}, false
}

func parseRelative(s string, c Context) (time.Time, bool) {
	m := relativeRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	ct, ok := parseClock(m[2])
	if !ok {
		return time.Time{}, false
	}
	day := c.Now
	if strings.EqualFold(m[1], "tomorrow") {
		day = day.AddDate(0, 0, 1)
	}
	return c.build(day.Year(), day.Month(), day.Day(), ct)
}

func (c Context) dated(month, day, year, rest string) (time.Time, bool) {
	mo, ok := monthOf(month)
	if !ok {
		return time.Time{}, false
	}
	ct, ok := parseClock(rest)
	if !ok {
		return time.Time{}, false
	}
	d, _ := strconv.Atoi(day)
	y, _ := strconv.Atoi(year)
	return c.build(y, mo, d, ct)
}

// yearless assumes the current year unless that lands more than
// rollForwardAfter in the past, in which case the next year is used.
func (c Context) yearless(month, day, rest string) (time.Time, bool) {
	mo, ok := monthOf(month)
	if !ok {
		return time.Time{}, false
	}
	ct, ok := parseClock(rest)
	if !ok {
		return time.Time{}, false
	}
	d, _ := strconv.Atoi(day)
	y := c.Now.Year()
	t, ok := c.build(y, mo, d, ct)
	if !ok {
		// Feb 29 outside a leap year
		return c.build(y+1, mo, d, ct)
	}
	if c.Now.Sub(t) > rollForwardAfter {
		return c.build(y+1, mo, d, ct)
	}
	return t, true
}

// build assembles a calendar reading, rejecting days that time.Date would
// silently roll over (Feb 30 and friends).
func (c Context) build(y int, mo time.Month, d int, ct clockTime) (time.Time, bool) {
	if mo < time.January || mo > time.December || d < 1 || d > 31 {
		return time.Time{}, false
	}
	wall := time.Date(y, mo, d, ct.h, ct.m, ct.s, 0, time.UTC)
	if wall.Day() != d || wall.Month() != mo {
		return time.Time{}, false
	}
	if ct.utc {
		return wall.In(c.Loc), true
	}
	return c.Zone(wall, c.Loc), true
}

type clockTime struct {
	h, m, s int
	utc     bool
}

// parseClock reads the time-of-day tail of a date. Empty means midnight. A
// bare number with neither minutes nor am/pm is not a time.
func parseClock(rest string) (clockTime, bool) {
	rest = clockLeadingNoise.ReplaceAllString(strings.TrimSpace(rest), "")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return clockTime{}, true
	}
	switch strings.ToLower(rest) {
	case "noon", "12 noon":
		return clockTime{h: 12}, true
	case "midnight":
		return clockTime{}, true
	}
	m := clockRe.FindStringSubmatch(rest)
	if m == nil || (m[2] == "" && m[4] == "") {
		return clockTime{}, false
	}
	var ct clockTime
	ct.h, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		ct.m, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		ct.s, _ = strconv.Atoi(m[3])
	}
	if ct.m > 59 || ct.s > 59 {
		return clockTime{}, false
	}
	switch strings.ToLower(m[4]) {
	case "a":
		if ct.h < 1 || ct.h > 12 {
			return clockTime{}, false
		}
		if ct.h == 12 {
			ct.h = 0
		}
	case "p":
		if ct.h < 1 || ct.h > 12 {
			return clockTime{}, false
		}
		if ct.h != 12 {
			ct.h += 12
		}
	default:
		if ct.h > 23 {
			return clockTime{}, false
		}
	}
	switch strings.ToLower(m[5]) {
	case "utc", "gmt", "z":
		ct.utc = true
	}
	return ct, true
}

func monthOf(s string) (time.Month, bool) {
	s = strings.ToLower(strings.TrimSuffix(s, "."))
	if len(s) < 3 {
		return 0, false
	}
	switch s[:3] {
	case "jan":
		return time.January, true
	case "feb":
		return time.February, true
	case "mar":
		return time.March, true
	case "apr":
		return time.April, true
	case "may":
		return time.May, true
	case "jun":
		return time.June, true
	case "jul":
		return time.July, true
	case "aug":
		return time.August, true
	case "sep":
		return time.September, true
	case "oct":
		return time.October, true
	case "nov":
		return time.November, true
	case "dec":
		return time.December, true
	}
	return 0, false
}
