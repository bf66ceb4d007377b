package soldout

import (
	"testing"

	"github.com/galois26/event-feed/internal/model"
)

func TestInfer(t *testing.T) {
	cases := []struct {
		text     string
		soldOut  bool
		gender   model.Gender
		complete bool
	}{
		{"", false, model.GenderNone, false},
		{"Tickets on sale now", false, model.GenderNone, false},
		{"SOLD OUT", true, model.GenderNone, true},
		{"This show is sold-out, sorry!", true, model.GenderNone, true},
		{"#soldout", true, model.GenderNone, true},
		{"Event NOT SOLD OUT yet", false, model.GenderNone, false},
		{"Not yet sold out, grab yours", false, model.GenderNone, false},
		{"Almost sold out!", false, model.GenderNone, false},
		{"nearly sold-out", false, model.GenderNone, false},
		{"MALE TICKETS SOLD OUT", false, model.GenderMale, false},
		{"Men's sold out, ladies still available", false, model.GenderMale, false},
		{"Sold out for women", false, model.GenderFemale, false},
		{"Female tickets are sold out", false, model.GenderFemale, false},
		{"Guys sold out. Girls sold out.", true, model.GenderBoth, true},
		{"Women sold out - venue sold out at door", true, model.GenderFemale, true},
		{"Almost sold out for men", false, model.GenderNone, false},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got := Infer(tc.text)
			if got.IsSoldOut != tc.soldOut || got.GenderSoldOut != tc.gender {
				t.Fatalf("Infer(%q) = %+v, want soldOut=%v gender=%s", tc.text, got, tc.soldOut, tc.gender)
			}
			if got.Complete() != tc.complete {
				t.Fatalf("Infer(%q).Complete() = %v", tc.text, got.Complete())
			}
		})
	}
}

func TestInferIsPure(t *testing.T) {
	text := "Men sold out"
	a, b := Infer(text), Infer(text)
	if a != b {
		t.Fatalf("Infer not deterministic: %+v vs %+v", a, b)
	}
}
