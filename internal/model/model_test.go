package model

import "testing"

func TestEventID_StableAcrossQueryNoise(t *testing.T) {
	t.Parallel()

	base := EventID("https://www.eventbrite.ca/e/techno-night-tickets-123")
	if base == "" {
		t.Fatalf("expected id")
	}
	cases := []string{
		"https://www.eventbrite.ca/e/techno-night-tickets-123/",
		"https://www.eventbrite.ca/e/techno-night-tickets-123?aff=ebdssbdestsearch",
		"HTTPS://WWW.EVENTBRITE.CA/e/Techno-Night-Tickets-123?utm_source=x#top",
		"  https://www.eventbrite.ca/e/techno-night-tickets-123/?a=1  ",
	}
	for _, in := range cases {
		if got := EventID(in); got != base {
			t.Fatalf("EventID(%q) = %q, want %q", in, got, base)
		}
	}

	if other := EventID("https://www.eventbrite.ca/e/other-456"); other == base {
		t.Fatalf("different urls must not collide")
	}
}

func TestEventID_Empty(t *testing.T) {
	t.Parallel()

	if EventID("   ") != "" {
		t.Fatalf("expected empty id for empty url")
	}
}

func TestCanonicalURL(t *testing.T) {
	t.Parallel()

	got := CanonicalURL("https://allevents.in/toronto/Party/800?ref=home")
	if got != "https://allevents.in/toronto/party/800" {
		t.Fatalf("unexpected canonical url %q", got)
	}
	if got := CanonicalURL("not a url/?x=1"); got != "not a url" {
		t.Fatalf("unexpected canonical fallback %q", got)
	}
}

func TestEvent_CategoriesAreASet(t *testing.T) {
	t.Parallel()

	var ev Event
	if !ev.AddCategory("Music") {
		t.Fatalf("expected first insert to succeed")
	}
	if ev.AddCategory("Music") {
		t.Fatalf("expected duplicate insert to be ignored")
	}
	if ev.AddCategory("") {
		t.Fatalf("expected empty category to be ignored")
	}
	if len(ev.Categories) != 1 {
		t.Fatalf("expected one category, got %v", ev.Categories)
	}
}

func TestEvent_CloneIsDeep(t *testing.T) {
	t.Parallel()

	ev := Event{
		PriceAmount:     Float(10),
		Categories:      []string{"Music"},
		TicketTypes:     []TicketType{{Name: "GA", Price: "$10"}},
		LocationDetails: &LocationDetails{Venue: "Rex"},
	}
	cp := ev.Clone()
	*cp.PriceAmount = 20
	cp.Categories[0] = "Tech"
	cp.TicketTypes[0].Name = "VIP"
	cp.LocationDetails.Venue = "Horseshoe"

	if *ev.PriceAmount != 10 || ev.Categories[0] != "Music" || ev.TicketTypes[0].Name != "GA" || ev.LocationDetails.Venue != "Rex" {
		t.Fatalf("clone aliased the original: %+v", ev)
	}
}

func TestEnrichment_Empty(t *testing.T) {
	t.Parallel()

	if !(Enrichment{URL: "https://x"}).Empty() {
		t.Fatalf("url-only enrichment should be empty")
	}
	if (Enrichment{IsRecurring: true}).Empty() {
		t.Fatalf("recurring enrichment is not empty")
	}
}
