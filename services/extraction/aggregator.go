package extraction

import (
	"context"
	"log/slog"

	"cruiseledger-backend/lib/scrapers/clubroyale"
	"cruiseledger-backend/lib/textutil"
	"cruiseledger-backend/services/extraction/records"
)

// Aggregator is the host-side receiver: it folds streamed batches
// into canonical record sets. Accumulation is additive, a terminal
// error never retracts batches that already arrived, and late LOG
// messages after EXTRACTION_COMPLETE are tolerated.
type Aggregator struct {
	cruiseIndex map[string]*records.Cruise
	cruises     []*records.Cruise
	offerIndex  map[string]*records.Offer
	offers      []*records.Offer
	loyalty     records.LoyaltySnapshot

	completed bool
	errStep   Step
	errText   string
	warnings  []Step
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		cruiseIndex: map[string]*records.Cruise{},
		offerIndex:  map[string]*records.Offer{},
	}
}

// Drain consumes messages until the sink channel closes,
// acknowledging flush barriers along the way.
func (a *Aggregator) Drain(sink ChannelSink) {
	for msg := range sink {
		a.Consume(msg)
		if msg.ack != nil {
			close(msg.ack)
		}
	}
}

func (a *Aggregator) Consume(msg Message) {
	switch msg.Type {
	case MessageOfferBatch:
		if msg.Offer != nil {
			a.addOffer(*msg.Offer)
		}
	case MessageCruiseBatch:
		if msg.Booking != nil {
			a.addBooking(*msg.Booking)
		}
		if msg.Hold != nil {
			a.addHold(*msg.Hold)
		}
		if msg.Sailing != nil {
			a.addSailing(*msg.Sailing)
		}
	case MessageLoyalty:
		if msg.Loyalty != nil {
			a.loyalty = records.LoyaltySnapshot{
				Points: msg.Loyalty.Points,
				Tier:   msg.Loyalty.Tier,
			}
		}
	case MessageStepComplete:
		if msg.Warning {
			a.warnings = append(a.warnings, msg.Step)
		}
	case MessageComplete:
		a.completed = true
	case MessageError:
		a.errStep = msg.Step
		a.errText = msg.Error
	case MessageLog:
		// logs may legally trail the terminal message
		slog.Log(context.Background(), msg.Level, msg.Text)
	}
}

func (a *Aggregator) addOffer(offer clubroyale.OfferRecord) {
	code := textutil.NormalizeOfferCode(offer.OfferCode)
	existing, ok := a.offerIndex[code]
	if !ok || code == "" {
		canonical := &records.Offer{
			OfferCode:   code,
			OfferName:   offer.OfferName,
			OfferType:   offer.OfferType,
			ExpiryDate:  offer.ExpiryDate,
			Description: offer.Description,
		}
		if len(offer.Sailings) > 0 {
			first := offer.Sailings[0]
			canonical.ShipName = first.ShipName
			canonical.SailDate = textutil.NormalizeSailDate(first.SailDate)
			canonical.Nights = first.Nights
		}
		if code != "" {
			a.offerIndex[code] = canonical
		}
		a.offers = append(a.offers, canonical)
		return
	}

	// re-delivered offers fill gaps, they never clobber
	if existing.OfferName == "" {
		existing.OfferName = offer.OfferName
	}
	if existing.ExpiryDate == "" {
		existing.ExpiryDate = offer.ExpiryDate
	}
	if existing.ShipName == "" && len(offer.Sailings) > 0 {
		first := offer.Sailings[0]
		existing.ShipName = first.ShipName
		existing.SailDate = textutil.NormalizeSailDate(first.SailDate)
		existing.Nights = first.Nights
	}
}

func (a *Aggregator) addBooking(booking clubroyale.BookingRecord) {
	cruise := a.upsertCruise(booking.ShipName, booking.SailDate)
	cruise.Status = "booked"
	if cruise.ReservationNumber == "" {
		cruise.ReservationNumber = booking.ReservationNumber
	}
	if cruise.ReturnDate == "" {
		cruise.ReturnDate = booking.ReturnDate
	}
	if cruise.ItineraryName == "" {
		cruise.ItineraryName = booking.ItineraryName
	}
	if cruise.CabinType == "" {
		cruise.CabinType = booking.CabinType
	}
	if cruise.Nights == 0 {
		cruise.Nights = booking.Nights
	}
}

func (a *Aggregator) addHold(hold clubroyale.HoldRecord) {
	cruise := a.upsertCruise(hold.ShipName, hold.SailDate)
	if cruise.Status == "" {
		cruise.Status = "hold"
	}
	if cruise.ReservationNumber == "" {
		cruise.ReservationNumber = hold.ReservationNumber
	}
	if cruise.HoldExpiry == "" {
		cruise.HoldExpiry = hold.ExpiryDate
	}
	if cruise.Nights == 0 {
		cruise.Nights = hold.Nights
	}
}

// addSailing folds voyage-enrichment detail into a cruise that was
// already delivered. Enrichment never creates cruises on its own.
func (a *Aggregator) addSailing(sailing clubroyale.SailingRecord) {
	key := textutil.CruiseKey(sailing.ShipName, sailing.SailDate)
	cruise, ok := a.cruiseIndex[key]
	if !ok {
		return
	}
	if cruise.ItineraryName == "" {
		cruise.ItineraryName = sailing.ItineraryName
	}
	if cruise.Nights == 0 {
		cruise.Nights = sailing.Nights
	}
}

func (a *Aggregator) upsertCruise(shipName, sailDate string) *records.Cruise {
	key := textutil.CruiseKey(shipName, sailDate)
	cruise, ok := a.cruiseIndex[key]
	if ok {
		return cruise
	}
	cruise = &records.Cruise{
		ShipName: shipName,
		SailDate: textutil.NormalizeSailDate(sailDate),
	}
	a.cruiseIndex[key] = cruise
	a.cruises = append(a.cruises, cruise)
	return cruise
}

// Result snapshots the accumulated canonical record set.
func (a *Aggregator) Result() *records.Set {
	return &records.Set{
		Cruises: a.cruises,
		Offers:  a.offers,
		Loyalty: a.loyalty,
	}
}

func (a *Aggregator) Completed() bool {
	return a.completed
}

// Failure reports the terminal error, if any. Accumulated records
// remain available regardless.
func (a *Aggregator) Failure() (Step, string) {
	return a.errStep, a.errText
}

func (a *Aggregator) Warnings() []Step {
	return a.warnings
}
