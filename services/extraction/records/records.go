package records

import (
	"cruiseledger-backend/lib/textutil"
)

// Cruise is the normalized, field-unified form of a booking or
// courtesy hold, keyed by (ship, sail date). Unlike the per-step
// records these persist beyond the extraction run.
type Cruise struct {
	ShipName          string `json:"shipName"`
	SailDate          string `json:"sailDate"`
	ReturnDate        string `json:"returnDate,omitempty"`
	Nights            int    `json:"nights,omitempty"`
	ReservationNumber string `json:"reservationNumber,omitempty"`
	ItineraryName     string `json:"itineraryName,omitempty"`
	CabinType         string `json:"cabinType,omitempty"`
	// "booked" or "hold"
	Status     string `json:"status"`
	HoldExpiry string `json:"holdExpiry,omitempty"`

	OfferCode     string `json:"offerCode,omitempty"`
	OfferName     string `json:"offerName,omitempty"`
	OfferExpiry   string `json:"offerExpiry,omitempty"`
	InteriorPrice string `json:"interiorPrice,omitempty"`
	BalconyPrice  string `json:"balconyPrice,omitempty"`
	SuitePrice    string `json:"suitePrice,omitempty"`
}

func (c *Cruise) Key() string {
	return textutil.CruiseKey(c.ShipName, c.SailDate)
}

// Offer is the normalized casino offer, keyed by offer code.
type Offer struct {
	OfferCode   string `json:"offerCode"`
	OfferName   string `json:"offerName,omitempty"`
	OfferType   string `json:"offerType,omitempty"`
	ExpiryDate  string `json:"expiryDate,omitempty"`
	Description string `json:"description,omitempty"`
	// identity of the offer's primary sailing, used for
	// cross-reference lookups against cruises
	ShipName string `json:"shipName,omitempty"`
	SailDate string `json:"sailDate,omitempty"`
	Nights   int    `json:"nights,omitempty"`

	InteriorPrice string `json:"interiorPrice,omitempty"`
	BalconyPrice  string `json:"balconyPrice,omitempty"`
	SuitePrice    string `json:"suitePrice,omitempty"`
}

func (o *Offer) Key() string {
	return textutil.CruiseKey(o.ShipName, o.SailDate)
}

type LoyaltySnapshot struct {
	Points int    `json:"points"`
	Tier   string `json:"tier,omitempty"`
}

// Set is the aggregated output of one extraction run and the input
// to the healing pass.
type Set struct {
	Cruises []*Cruise
	Offers  []*Offer
	Loyalty LoyaltySnapshot
}

// FieldFix is one audit entry from healing: a formerly empty field
// and the value it was filled with.
type FieldFix struct {
	Entity string `json:"entity"`
	Id     string `json:"id"`
	Field  string `json:"field"`
	Old    string `json:"old"`
	New    string `json:"new"`
}

// HealingReport records every field changed by a healing pass plus
// the records that could not be matched to anything.
type HealingReport struct {
	FieldsFixed   []FieldFix `json:"fieldsFixed"`
	OrphanCruises int        `json:"orphanCruises"`
	OrphanOffers  int        `json:"orphanOffers"`
}
