package clubroyale

import (
	"encoding/json"
	"fmt"
	"strconv"

	"cruiseledger-backend/lib/textutil"
)

// upstream responses spell the same concept under several different
// keys depending on endpoint and storefront. each record type has one
// normalization function that maps every known spelling onto the
// canonical field, so nothing downstream ever sees a raw key.

type rawRecord map[string]json.RawMessage

func (r rawRecord) str(keys ...string) string {
	for _, k := range keys {
		raw, ok := r[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		// numbers occasionally arrive where strings are expected
		var n float64
		if err := json.Unmarshal(raw, &n); err == nil {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}
	}
	return ""
}

func (r rawRecord) intval(keys ...string) int {
	for _, k := range keys {
		raw, ok := r[k]
		if !ok {
			continue
		}
		var n float64
		if err := json.Unmarshal(raw, &n); err == nil {
			return int(n)
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			parsed, err := strconv.Atoi(s)
			if err == nil {
				return parsed
			}
		}
	}
	return 0
}

func (r rawRecord) list(keys ...string) []rawRecord {
	for _, k := range keys {
		raw, ok := r[k]
		if !ok {
			continue
		}
		var out []rawRecord
		if err := json.Unmarshal(raw, &out); err == nil {
			return out
		}
	}
	return nil
}

type SailingRecord struct {
	ShipCode      string
	ShipName      string
	SailDate      string
	ItineraryCode string
	ItineraryName string
	Nights        int
}

// Key is the composite identity used when merging re-fetched sailing
// detail into a first-pass offer.
func (s SailingRecord) Key() string {
	return fmt.Sprintf("%s|%s", s.ShipCode, textutil.NormalizeSailDate(s.SailDate))
}

func normalizeSailing(raw rawRecord) SailingRecord {
	return SailingRecord{
		ShipCode:      raw.str("shipCode", "ship_code", "vesselCode"),
		ShipName:      raw.str("shipName", "ship_name", "vesselName", "ship"),
		SailDate:      raw.str("sailDate", "sailingDate", "departureDate", "sail_date"),
		ItineraryCode: raw.str("itineraryCode", "packageCode", "itinerary_code"),
		ItineraryName: raw.str("itineraryName", "itineraryDescription", "packageName"),
		Nights:        raw.intval("nights", "numberOfNights", "duration"),
	}
}

// DecodeSailingPayload parses a captured voyage-enrichment body into
// sailing records. The endpoint returns either a wrapped list, a bare
// list, or a single object depending on how it was called.
func DecodeSailingPayload(body []byte) ([]SailingRecord, error) {
	var wrapper struct {
		Sailings []rawRecord `json:"sailings"`
		Voyages  []rawRecord `json:"voyages"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil {
		if wrapper.Sailings != nil {
			return normalizeSailings(wrapper.Sailings), nil
		}
		if wrapper.Voyages != nil {
			return normalizeSailings(wrapper.Voyages), nil
		}
	}

	var list []rawRecord
	if err := json.Unmarshal(body, &list); err == nil {
		return normalizeSailings(list), nil
	}

	var single rawRecord
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, err
	}
	return normalizeSailings([]rawRecord{single}), nil
}

func normalizeSailings(raw []rawRecord) []SailingRecord {
	sailings := make([]SailingRecord, len(raw))
	for i, r := range raw {
		sailings[i] = normalizeSailing(r)
	}
	return sailings
}

type OfferRecord struct {
	OfferCode   string
	OfferName   string
	OfferType   string
	ExpiryDate  string
	Description string
	Sailings    []SailingRecord
}

// Incomplete reports whether the first-pass response omitted the
// sailing detail upstream sometimes drops, which triggers a per-offer
// re-fetch.
func (o OfferRecord) Incomplete() bool {
	if len(o.Sailings) == 0 {
		return true
	}
	return o.Sailings[0].ItineraryCode == ""
}

func normalizeOffer(raw rawRecord) OfferRecord {
	rawSailings := raw.list("sailings", "sailingList", "offerSailings")
	sailings := make([]SailingRecord, len(rawSailings))
	for i, s := range rawSailings {
		sailings[i] = normalizeSailing(s)
	}
	return OfferRecord{
		OfferCode:   textutil.NormalizeOfferCode(raw.str("offerCode", "campaignOfferCode", "code")),
		OfferName:   raw.str("offerName", "campaignName", "name", "title"),
		OfferType:   raw.str("offerType", "category", "type"),
		ExpiryDate:  raw.str("expiryDate", "bookByDate", "expirationDate", "reserveByDate"),
		Description: raw.str("description", "offerDescription"),
		Sailings:    sailings,
	}
}

type BookingRecord struct {
	ShipName          string
	SailDate          string
	ReturnDate        string
	ReservationNumber string
	ItineraryName     string
	CabinType         string
	Nights            int
}

func normalizeBooking(raw rawRecord) BookingRecord {
	return BookingRecord{
		ShipName:          raw.str("shipName", "ship_name", "vesselName"),
		SailDate:          raw.str("sailDate", "sailingDate", "departureDate"),
		ReturnDate:        raw.str("returnDate", "arrivalDate", "debarkDate"),
		ReservationNumber: raw.str("reservationNumber", "bookingId", "reservationId"),
		ItineraryName:     raw.str("itineraryName", "itineraryDescription", "packageName"),
		CabinType:         raw.str("cabinType", "stateroomType", "roomType"),
		Nights:            raw.intval("nights", "numberOfNights", "duration"),
	}
}

type HoldRecord struct {
	ShipName          string
	SailDate          string
	ReservationNumber string
	ExpiryDate        string
	Nights            int
}

type LoyaltySnapshot struct {
	Points int
	Tier   string
}
