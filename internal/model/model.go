package model

// Status is the lifecycle state of a canonical event.
type Status string

const (
	StatusUpcoming  Status = "UPCOMING"
	StatusCancelled Status = "CANCELLED"
	StatusMoved     Status = "MOVED"
)

// Gender describes which gender-segmented allocation is sold out.
type Gender string

const (
	GenderNone   Gender = "none"
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderBoth   Gender = "both"
)

const (
	// PriceUnavailable is the display sentinel used whenever no amount is known.
	PriceUnavailable = "See tickets"
	PriceFree        = "Free"

	LocationUnknown = "Location TBA"

	CategoryMultiDay = "Multi-Day"
	CategoryOther    = "Other"
)

// Reasons recorded in Event.StatusReason.
const (
	ReasonSoldOut             = "sold_out"
	ReasonPriceOverCeiling    = "price_over_ceiling"
	ReasonUnsupportedLanguage = "unsupported_language"
	ReasonDateUnresolvable    = "date_unresolvable"
	ReasonDateOutOfWindow     = "date_out_of_window"
	ReasonMoved               = "moved"
)

// TicketType is one ticket tier as listed by the source.
type TicketType struct {
	Name         string `json:"name"`
	Price        string `json:"price"`
	Availability string `json:"availability,omitempty"`
}

// LocationDetails is the structured venue breakdown behind Event.Location.
type LocationDetails struct {
	Venue      string `json:"venue,omitempty"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	IsOnline   bool   `json:"isOnline,omitempty"`
	Platform   string `json:"platform,omitempty"`
}

// Event is the canonical, persisted representation of a scraped listing.
type Event struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Source      string `json:"source,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`

	Date    string `json:"date"`              // canonical zoned timestamp, "" when unknown
	EndDate string `json:"endDate,omitempty"` // canonical zoned timestamp

	Price       string       `json:"price"`
	PriceAmount *float64     `json:"priceAmount,omitempty"`
	MinPrice    *float64     `json:"minPrice,omitempty"`
	MaxPrice    *float64     `json:"maxPrice,omitempty"`
	TicketTypes []TicketType `json:"ticketTypes,omitempty"`

	Location        string           `json:"location"`
	LocationDetails *LocationDetails `json:"locationDetails,omitempty"`

	Categories []string `json:"categories"`

	Status        Status `json:"status"`
	StatusReason  string `json:"statusReason,omitempty"`
	IsSoldOut     bool   `json:"isSoldOut"`
	GenderSoldOut Gender `json:"genderSoldOut"`

	LastUpdated string `json:"lastUpdated,omitempty"`
}

// Enrichment is a transient partial view of an event produced by a secondary
// extraction pass. Nil pointers and empty values mean "not supplied".
type Enrichment struct {
	URL string

	Description string
	StartTime   string
	EndTime     string
	// StartGuess is a date lifted from free page text. It only fills an
	// event that has no start date.
	StartGuess string
	Image      string

	Price       string
	PriceAmount *float64
	MinPrice    *float64
	MaxPrice    *float64
	TicketTypes []TicketType

	LocationDetails *LocationDetails

	IsSoldOut     *bool
	GenderSoldOut *Gender
	IsRecurring   bool
	Status        *Status
}

// Empty reports whether the enrichment carries no usable field.
func (e Enrichment) Empty() bool {
	return e.Description == "" && e.StartTime == "" && e.StartGuess == "" && e.EndTime == "" && e.Image == "" &&
		e.Price == "" && e.PriceAmount == nil && e.MinPrice == nil && e.MaxPrice == nil &&
		len(e.TicketTypes) == 0 && e.LocationDetails == nil && e.IsSoldOut == nil &&
		e.GenderSoldOut == nil && !e.IsRecurring && e.Status == nil
}

// HasCategory reports whether c is present in the event's category set.
func (e *Event) HasCategory(c string) bool {
	for _, have := range e.Categories {
		if have == c {
			return true
		}
	}
	return false
}

// AddCategory inserts c with set semantics.
func (e *Event) AddCategory(c string) bool {
	if c == "" || e.HasCategory(c) {
		return false
	}
	e.Categories = append(e.Categories, c)
	return true
}

// Clone returns a deep copy so merges never alias the caller's slices or pointers.
func (e Event) Clone() Event {
	out := e
	out.PriceAmount = cloneFloat(e.PriceAmount)
	out.MinPrice = cloneFloat(e.MinPrice)
	out.MaxPrice = cloneFloat(e.MaxPrice)
	if e.TicketTypes != nil {
		out.TicketTypes = append([]TicketType(nil), e.TicketTypes...)
	}
	if e.Categories != nil {
		out.Categories = append([]string(nil), e.Categories...)
	}
	if e.LocationDetails != nil {
		ld := *e.LocationDetails
		out.LocationDetails = &ld
	}
	return out
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
