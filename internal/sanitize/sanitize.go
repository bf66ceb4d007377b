// Package sanitize validates optional text and media fields and supplies
// fallbacks, so downstream code never sees an empty or placeholder value.
package sanitize

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/galois26/event-feed/internal/config"
	"github.com/galois26/event-feed/internal/model"
)

const (
	DefaultFallbackDescription = "Details for this event are available on the event page."
	DefaultFallbackImage       = "https://static.eventfeed.local/img/event-default.jpg"
	UntitledTitle              = "Untitled Event"
	OnlineLocation             = "Online"
)

var defaultPlaceholders = []string{
	"tbd", "tba", "n/a", "na", "none", "null", "undefined", "-",
	"no description", "no description available", "description coming soon",
	"coming soon", "details to follow", "more details soon", "more info coming soon",
	"to be announced", "see website", "see event page",
}

var locationPlaceholders = map[string]bool{
	"": true, "tba": true, "tbd": true, "tba.": true, "location tba": true, "location tbd": true,
	"venue tba": true, "venue tbd": true, "to be announced": true, "see website": true,
	"n/a": true, "various locations": true, strings.ToLower(model.LocationUnknown): true,
}

var (
	blockTags        = regexp.MustCompile(`(?i)<(?:br|/p|/div|/li|/h[1-6]|/tr)[^>]*>`)
	placeholderImage = regexp.MustCompile(`(?i)(?:placeholder|spacer|blank|transparent|no[-_]?image|default[-_]?(?:image|event|cover)|1x1|pixel)[^/]*$`)
	siteSuffix       = regexp.MustCompile(`(?i)\s*[|–—-]\s*(?:eventbrite|allevents(?:\.in)?|meetup|ticketmaster|showclix|universe|facebook)\b.*$`)
)

// Sanitizer holds the configured thresholds and fallbacks.
type Sanitizer struct {
	minDescription      int
	placeholders        map[string]bool
	fallbackDescription string
	fallbackImage       string
	categoryImages      map[string]string
	maxTitle            int
}

func New(cfg config.SanitizeConfig) *Sanitizer {
	s := &Sanitizer{
		minDescription:      cfg.MinDescription,
		placeholders:        make(map[string]bool, len(defaultPlaceholders)+len(cfg.Placeholders)),
		fallbackDescription: cfg.FallbackDescription,
		fallbackImage:       cfg.FallbackImage,
		categoryImages:      make(map[string]string, len(cfg.CategoryImages)),
		maxTitle:            cfg.MaxTitle,
	}
	if s.minDescription <= 0 {
		s.minDescription = 20
	}
	if s.maxTitle <= 0 {
		s.maxTitle = 200
	}
	if s.fallbackDescription == "" {
		s.fallbackDescription = DefaultFallbackDescription
	}
	if s.fallbackImage == "" {
		s.fallbackImage = DefaultFallbackImage
	}
	for _, p := range append(defaultPlaceholders, cfg.Placeholders...) {
		s.placeholders[normalizeKey(p)] = true
	}
	for cat, img := range cfg.CategoryImages {
		s.categoryImages[strings.ToLower(cat)] = img
	}
	return s
}

// PlainText strips markup and collapses whitespace.
func PlainText(s string) string {
	if strings.ContainsAny(s, "<&") {
		s = blockTags.ReplaceAllString(s, " ")
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			doc.Find("script, style, noscript").Remove()
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

func normalizeKey(s string) string {
	return strings.Trim(strings.ToLower(strings.Join(strings.Fields(s), " ")), " .!…")
}

// Meaningful reports whether text carries real content: long enough, not a
// placeholder phrase and not the fallback itself.
func (s *Sanitizer) Meaningful(text string) bool {
	text = PlainText(text)
	if text == "" || text == s.fallbackDescription {
		return false
	}
	if s.placeholders[normalizeKey(text)] {
		return false
	}
	return utf8.RuneCountInString(text) >= s.minDescription
}

// Description returns cleaned text, or the fallback when it is not meaningful.
func (s *Sanitizer) Description(text string) string {
	if !s.Meaningful(text) {
		return s.fallbackDescription
	}
	return PlainText(text)
}

// FallbackDescription is the text used for non-meaningful descriptions.
func (s *Sanitizer) FallbackDescription() string { return s.fallbackDescription }

// IsPlaceholderLocation reports empty or "to be announced" style locations.
func IsPlaceholderLocation(loc string) bool {
	return locationPlaceholders[normalizeKey(loc)]
}

// OnlineLabel renders an online location, with the platform when known.
func OnlineLabel(platform string) string {
	platform = strings.TrimSpace(platform)
	if platform == "" || strings.EqualFold(platform, OnlineLocation) {
		return OnlineLocation
	}
	return OnlineLocation + " (" + platform + ")"
}

func isOnlineLabel(loc string) bool {
	return strings.HasPrefix(strings.ToLower(loc), "online")
}

// Location builds the display location. Structured details are appended to
// the display text unless already contained in it, so repeating the call with
// the same details changes nothing. Online events never show an address.
func Location(display string, details *model.LocationDetails) string {
	if details != nil && details.IsOnline {
		return OnlineLabel(details.Platform)
	}
	loc := PlainText(display)
	if IsPlaceholderLocation(loc) {
		loc = ""
	}
	if details != nil {
		if loc != "" && isOnlineLabel(loc) && strings.TrimSpace(details.Venue+details.Address) != "" {
			loc = ""
		}
		for _, part := range []string{details.Venue, details.Address, details.City} {
			part = PlainText(part)
			if part == "" || containsFold(loc, part) {
				continue
			}
			if loc == "" {
				loc = part
			} else {
				loc += ", " + part
			}
		}
	}
	if loc == "" {
		return model.LocationUnknown
	}
	return loc
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// Image keeps absolute http(s) URLs that are not known placeholders and
// otherwise returns the fallback for the first category that has one.
func (s *Sanitizer) Image(raw string, categories []string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	if raw != "" && !placeholderImage.MatchString(raw) {
		if u, err := url.Parse(raw); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
			return raw
		}
	}
	return s.FallbackImage(categories)
}

// FallbackImage picks the per-category fallback, else the default.
func (s *Sanitizer) FallbackImage(categories []string) string {
	for _, c := range categories {
		if img, ok := s.categoryImages[strings.ToLower(c)]; ok && img != "" {
			return img
		}
	}
	return s.fallbackImage
}

// IsFallbackImage reports images a real one may replace.
func (s *Sanitizer) IsFallbackImage(img string) bool {
	img = strings.TrimSpace(img)
	if img == "" || img == s.fallbackImage || placeholderImage.MatchString(img) {
		return true
	}
	for _, v := range s.categoryImages {
		if img == v {
			return true
		}
	}
	return false
}

// Title strips markup and listing-site suffixes and caps the length.
func (s *Sanitizer) Title(text string) string {
	t := PlainText(text)
	t = strings.TrimSpace(siteSuffix.ReplaceAllString(t, ""))
	if utf8.RuneCountInString(t) > s.maxTitle {
		r := []rune(t)
		t = strings.TrimSpace(string(r[:s.maxTitle-1])) + "…"
	}
	if t == "" {
		return UntitledTitle
	}
	return t
}
