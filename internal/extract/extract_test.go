package extract

import (
	"reflect"
	"testing"

	"github.com/galois26/event-feed/internal/diag"
	"github.com/galois26/event-feed/internal/model"
)

const eventbritePage = `<html><head>
<meta property="og:image" content="https://img.test/og.jpg">
<script type="application/ld+json">{"@context":"https://schema.org","@type":"Organization","name":"Promoter"}</script>
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
  {"@type":"WebPage","name":"Listing"},
  {"@type":"MusicEvent","name":"Warehouse Night",
   "description":"An all-night warehouse party with three rooms.",
   "startDate":"2025-01-27T23:00:00-05:00","endDate":"2025-01-28T05:00:00-05:00",
   "image":["https://img.test/poster.jpg"],
   "eventStatus":"https://schema.org/EventScheduled",
   "location":{"@type":"Place","name":"The Warehouse",
     "address":{"@type":"PostalAddress","streetAddress":"1 Dock Rd","addressLocality":"Toronto","addressRegion":"ON","postalCode":"M5V 1A1"}},
   "offers":[
     {"@type":"Offer","name":"Early Bird","price":"15.00","priceCurrency":"CAD","availability":"https://schema.org/SoldOut"},
     {"@type":"Offer","name":"General","price":25,"priceCurrency":"CAD","availability":"https://schema.org/InStock"}
   ]}
]}
</script></head>
<body><h1>Warehouse Night</h1><p>Men's tickets sold out.</p></body></html>`

func TestJSONLDWins(t *testing.T) {
	res, err := New(nil).Extract("https://tickets.test/e/1", eventbritePage)
	if err != nil {
		t.Fatal(err)
	}
	en := res.Enrichment
	if en.URL != "https://tickets.test/e/1" {
		t.Fatalf("url = %q", en.URL)
	}
	if en.StartTime != "2025-01-27T23:00:00-05:00" || en.EndTime != "2025-01-28T05:00:00-05:00" {
		t.Fatalf("times = %q %q", en.StartTime, en.EndTime)
	}
	if en.Image != "https://img.test/poster.jpg" {
		t.Fatalf("image = %q", en.Image)
	}
	if en.PriceAmount == nil || *en.PriceAmount != 15 || *en.MinPrice != 15 || *en.MaxPrice != 25 {
		t.Fatalf("price = %v %v %v", en.PriceAmount, en.MinPrice, en.MaxPrice)
	}
	wantTiers := []model.TicketType{
		{Name: "Early Bird", Price: "$15", Availability: "SoldOut"},
		{Name: "General", Price: "$25", Availability: "InStock"},
	}
	if !reflect.DeepEqual(en.TicketTypes, wantTiers) {
		t.Fatalf("tiers = %+v", en.TicketTypes)
	}
	if en.IsSoldOut == nil || *en.IsSoldOut {
		t.Fatalf("one tier in stock, sold out = %v", en.IsSoldOut)
	}
	// gender signal only exists in the body text
	if en.GenderSoldOut == nil || *en.GenderSoldOut != model.GenderMale {
		t.Fatalf("gender = %v", en.GenderSoldOut)
	}
	want := &model.LocationDetails{Venue: "The Warehouse", Address: "1 Dock Rd", City: "Toronto", Region: "ON", PostalCode: "M5V 1A1"}
	if !reflect.DeepEqual(en.LocationDetails, want) {
		t.Fatalf("location = %+v", en.LocationDetails)
	}
	if en.Status != nil {
		t.Fatalf("scheduled event got status %v", *en.Status)
	}
	if !reflect.DeepEqual(res.Passes, []string{"json-ld", "text"}) {
		t.Fatalf("passes = %v", res.Passes)
	}
}

func TestJSONLDVariants(t *testing.T) {
	page := `<script type="application/ld+json">[{"@type":["Event","SocialEvent"],
	"eventAttendanceMode":"https://schema.org/OnlineEventAttendanceMode",
	"eventStatus":"https://schema.org/EventMovedOnline",
	"location":{"@type":"VirtualLocation","url":"https://zoom.us/j/123"},
	"offers":{"@type":"AggregateOffer","lowPrice":"10","highPrice":"40","availability":"SoldOut"},
	"eventSchedule":{"@type":"Schedule","repeatFrequency":"P1W"}}]</script>`

	res, err := New(nil).Extract("u", page)
	if err != nil {
		t.Fatal(err)
	}
	en := res.Enrichment
	if en.LocationDetails == nil || !en.LocationDetails.IsOnline || en.LocationDetails.Platform != "Zoom" {
		t.Fatalf("location = %+v", en.LocationDetails)
	}
	if en.Status == nil || *en.Status != model.StatusMoved {
		t.Fatalf("status = %v", en.Status)
	}
	if !en.IsRecurring {
		t.Fatal("schedule should mark recurrence")
	}
	if en.IsSoldOut == nil || !*en.IsSoldOut {
		t.Fatal("only offer sold out")
	}
	if *en.PriceAmount != 10 || *en.MaxPrice != 40 {
		t.Fatalf("aggregate = %v %v", *en.PriceAmount, *en.MaxPrice)
	}
}

func TestInvalidJSONLDIsRecorded(t *testing.T) {
	d := diag.New(10)
	res, err := New(d).Extract("u", `<script type="application/ld+json">{"@type": "Event",</script>
	<meta property="og:description" content="A friendly neighbourhood trivia night with prizes.">`)
	if err != nil {
		t.Fatal(err)
	}
	if d.Len() != 1 {
		t.Fatalf("diag len = %d", d.Len())
	}
	if res.Enrichment.Description != "A friendly neighbourhood trivia night with prizes." {
		t.Fatalf("css fallback = %q", res.Enrichment.Description)
	}
}

func TestCSSPass(t *testing.T) {
	page := `<html><head>
	<meta property="event:start_time" content="2025-02-01T20:00:00-05:00">
	<meta property="og:image" content="https://img.test/a.jpg"></head><body>
	<div class="event-description"><p>Stand-up showcase</p><p>with five comics.</p></div>
	<div class="ticket-price">CA$20 – CA$35</div>
	<div class="venue-name">Comedy Bar</div><div class="venue-address">945 Bloor St W</div>
	</body></html>`

	res, err := New(nil).Extract("u", page)
	if err != nil {
		t.Fatal(err)
	}
	en := res.Enrichment
	if en.Description != "Stand-up showcase with five comics." {
		t.Fatalf("description = %q", en.Description)
	}
	if en.StartTime != "2025-02-01T20:00:00-05:00" || en.Image != "https://img.test/a.jpg" {
		t.Fatalf("start/image = %q %q", en.StartTime, en.Image)
	}
	if *en.PriceAmount != 20 || *en.MinPrice != 20 || *en.MaxPrice != 35 {
		t.Fatalf("price = %v %v %v", *en.PriceAmount, *en.MinPrice, *en.MaxPrice)
	}
	if en.LocationDetails == nil || en.LocationDetails.Venue != "Comedy Bar" || en.LocationDetails.Address != "945 Bloor St W" {
		t.Fatalf("location = %+v", en.LocationDetails)
	}
}

func TestTextPass(t *testing.T) {
	page := `<body><script>var price = "$999";</script>
	<p>Join us Saturday, March 8 at 9:00 PM for a night of salsa.</p>
	<p>Tickets from $18 to $30 at the door. Ladies sold out!</p>
	<p>This is an online event.</p></body>`

	res, err := New(nil).Extract("u", page)
	if err != nil {
		t.Fatal(err)
	}
	en := res.Enrichment
	if en.StartTime != "" || en.StartGuess != "Saturday, March 8 at 9:00 PM" {
		t.Fatalf("start = %q guess = %q", en.StartTime, en.StartGuess)
	}
	if en.PriceAmount == nil || *en.PriceAmount != 18 || *en.MaxPrice != 30 {
		t.Fatalf("price = %v %v", en.PriceAmount, en.MaxPrice)
	}
	if en.GenderSoldOut == nil || *en.GenderSoldOut != model.GenderFemale || *en.IsSoldOut {
		t.Fatalf("sold out = %v %v", en.IsSoldOut, en.GenderSoldOut)
	}
	if en.LocationDetails == nil || !en.LocationDetails.IsOnline {
		t.Fatalf("location = %+v", en.LocationDetails)
	}
}

func TestTextPassFreeEntry(t *testing.T) {
	res, _ := New(nil).Extract("u", `<body><p>Free admission, all ages welcome.</p></body>`)
	if res.Enrichment.PriceAmount == nil || *res.Enrichment.PriceAmount != 0 || res.Enrichment.Price != model.PriceFree {
		t.Fatalf("free = %+v", res.Enrichment)
	}
}

func TestWithSelectors(t *testing.T) {
	e := New(nil, WithSelectors(Selectors{Description: []string{"#about"}}))
	res, _ := e.Extract("u", `<div class="event-description">ignored text here</div><div id="about">Custom selector text</div>`)
	if res.Enrichment.Description != "Custom selector text" {
		t.Fatalf("description = %q", res.Enrichment.Description)
	}
}

func TestEmptyPage(t *testing.T) {
	res, err := New(nil).Extract("u", "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Enrichment.Empty() || len(res.Passes) != 0 {
		t.Fatalf("empty page = %+v", res)
	}
}
