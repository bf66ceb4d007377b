package model

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// CanonicalURL strips the query string, fragment and trailing slash and
// lowercases the result, so tracking-parameter noise never changes identity.
func CanonicalURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if u, err := url.Parse(s); err == nil && u.Host != "" {
		u.RawQuery = ""
		u.ForceQuery = false
		u.Fragment = ""
		u.RawFragment = ""
		s = u.String()
	} else {
		if i := strings.IndexAny(s, "?#"); i >= 0 {
			s = s[:i]
		}
	}
	s = strings.TrimRight(s, "/")
	return strings.ToLower(s)
}

// EventID derives the stable identifier for a source URL.
func EventID(rawURL string) string {
	c := CanonicalURL(rawURL)
	if c == "" {
		return ""
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(c)).String()
}
