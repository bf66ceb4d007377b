package price

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/galois26/event-feed/internal/model"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		display string
		amount  float64
		valid   bool
	}{
		{"Free", "Free", 0, true},
		{"FREE", "Free", 0, true},
		{"It's totally free!", "Free", 0, true},
		{"CA$23.50", "$23.50", 23.5, true},
		{"CA$0", "Free", 0, true},
		{"C$ 40", "$40", 40, true},
		{"CAD 15.00", "$15", 15, true},
		{"25 CAD", "$25", 25, true},
		{"Tickets from $1,250.75 + fees", "$1250.75", 1250.75, true},
		{"General admission 30", "$30", 30, true},
		{"$20 - $45", "$20", 20, true},
		{"See tickets", model.PriceUnavailable, 0, false},
		{"tba", model.PriceUnavailable, 0, false},
		{"TBD.", model.PriceUnavailable, 0, false},
		{"N/A", model.PriceUnavailable, 0, false},
		{"", model.PriceUnavailable, 0, false},
		{"Sold out", model.PriceUnavailable, 0, false},
		{"$2,000,000", model.PriceUnavailable, 0, false},
		{"-5", model.PriceUnavailable, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			r := Parse(tc.in, nil)
			if r.Display != tc.display || r.Valid != tc.valid {
				t.Fatalf("Parse(%q) = %+v, want display %q valid %v", tc.in, r, tc.display, tc.valid)
			}
			if tc.valid && (r.Amount == nil || *r.Amount != tc.amount) {
				t.Fatalf("Parse(%q) amount = %v, want %v", tc.in, r.Amount, tc.amount)
			}
		})
	}
}

func TestParseKnownAmountWins(t *testing.T) {
	r := Parse("See tickets", model.Float(699))
	if !r.Valid || *r.Amount != 699 || r.Display != "$699" {
		t.Fatalf("known amount ignored: %+v", r)
	}
	// unusable known amounts fall back to the text
	for _, k := range []float64{-1, math.NaN(), math.Inf(1)} {
		r := Parse("$12", model.Float(k))
		if !r.Valid || *r.Amount != 12 {
			t.Fatalf("known %v: %+v", k, r)
		}
	}
}

func TestParseValue(t *testing.T) {
	cases := []struct {
		name  string
		in    any
		valid bool
		want  float64
	}{
		{"nil", nil, false, 0},
		{"float", 42.0, true, 42},
		{"int", 0, true, 0},
		{"json number", json.Number("19.99"), true, 19.99},
		{"out of band", 5_000_000.0, false, 0},
		{"negative", -3.0, false, 0},
		{"string", "free entry", true, 0},
		{"nil pointer", (*float64)(nil), false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := ParseValue(tc.in, nil)
			if r.Valid != tc.valid {
				t.Fatalf("ParseValue(%v) = %+v", tc.in, r)
			}
			if tc.valid && *r.Amount != tc.want {
				t.Fatalf("amount = %v, want %v", *r.Amount, tc.want)
			}
		})
	}
}

func TestValidIffAmount(t *testing.T) {
	inputs := []string{"", "free", "$5", "abc", "CA$", "$ 999999.99", "1000000", "n/a", "12.5 CAD", "Donation"}
	knowns := []*float64{nil, model.Float(0), model.Float(-2), model.Float(33.3)}
	for _, in := range inputs {
		for _, k := range knowns {
			r := Parse(in, k)
			if r.Valid != (r.Amount != nil) {
				t.Fatalf("Parse(%q, %v): valid=%v amount=%v", in, k, r.Valid, r.Amount)
			}
			if r.Amount != nil && *r.Amount == 0 && r.Display != model.PriceFree {
				t.Fatalf("Parse(%q): zero amount displayed as %q", in, r.Display)
			}
			if r.Amount == nil && r.Display == "" {
				t.Fatalf("Parse(%q): empty display", in)
			}
		}
	}
}

func TestFormat(t *testing.T) {
	cases := map[float64]string{0: "Free", 10: "$10", 23.5: "$23.50", 0.99: "$0.99", 1200: "$1200"}
	for in, want := range cases {
		if got := Format(in); got != want {
			t.Errorf("Format(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestRange(t *testing.T) {
	lo, hi := Range("General $20 – VIP $45 – Early bird $15.50")
	if lo == nil || hi == nil || *lo != 15.5 || *hi != 45 {
		t.Fatalf("Range = %v, %v", lo, hi)
	}
	lo, hi = Range("no prices here")
	if lo != nil || hi != nil {
		t.Fatalf("Range on plain text = %v, %v", lo, hi)
	}
}
