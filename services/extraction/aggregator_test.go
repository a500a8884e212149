package extraction

import (
	"log/slog"
	"testing"

	"cruiseledger-backend/lib/scrapers/clubroyale"

	"github.com/stretchr/testify/require"
)

func TestAggregatorAccumulates(t *testing.T) {
	agg := NewAggregator()

	agg.Consume(Message{Type: MessageOfferBatch, Offer: &clubroyale.OfferRecord{
		OfferCode: "OC123A",
		OfferName: "Free Interior",
		Sailings: []clubroyale.SailingRecord{
			{ShipName: "Oasis of the Seas", SailDate: "03-10-2026", Nights: 7},
		},
	}})
	agg.Consume(Message{Type: MessageCruiseBatch, Booking: &clubroyale.BookingRecord{
		ShipName:          "Oasis of the Seas",
		SailDate:          "2026-03-10",
		ReservationNumber: "1234567",
		CabinType:         "Balcony",
	}})
	agg.Consume(Message{Type: MessageCruiseBatch, Hold: &clubroyale.HoldRecord{
		ShipName:          "Wonder of the Seas",
		SailDate:          "2026-04-01",
		ReservationNumber: "7654321",
		ExpiryDate:        "Mar 20, 2026",
	}})
	agg.Consume(Message{Type: MessageLoyalty, Loyalty: &clubroyale.LoyaltySnapshot{
		Points: 503, Tier: "Prime",
	}})
	agg.Consume(Message{Type: MessageComplete})

	require.True(t, agg.Completed())
	set := agg.Result()

	require.Len(t, set.Offers, 1)
	require.Equal(t, "OC123A", set.Offers[0].OfferCode)
	require.Equal(t, "2026-03-10", set.Offers[0].SailDate)

	require.Len(t, set.Cruises, 2)
	require.Equal(t, "booked", set.Cruises[0].Status)
	require.Equal(t, "Balcony", set.Cruises[0].CabinType)
	require.Equal(t, "hold", set.Cruises[1].Status)
	require.Equal(t, "Mar 20, 2026", set.Cruises[1].HoldExpiry)

	require.Equal(t, 503, set.Loyalty.Points)
	require.Equal(t, "Prime", set.Loyalty.Tier)
}

func TestAggregatorMergesBookingAndHold(t *testing.T) {
	agg := NewAggregator()

	// the same sailing seen as a hold first and a booking second
	// collapses into one cruise, booked wins
	agg.Consume(Message{Type: MessageCruiseBatch, Hold: &clubroyale.HoldRecord{
		ShipName:          "Oasis of the Seas",
		SailDate:          "03-10-2026",
		ReservationNumber: "1234567",
	}})
	agg.Consume(Message{Type: MessageCruiseBatch, Booking: &clubroyale.BookingRecord{
		ShipName:  "OASIS",
		SailDate:  "2026-03-10",
		CabinType: "Interior",
	}})

	set := agg.Result()
	require.Len(t, set.Cruises, 1)
	require.Equal(t, "booked", set.Cruises[0].Status)
	require.Equal(t, "1234567", set.Cruises[0].ReservationNumber)
	require.Equal(t, "Interior", set.Cruises[0].CabinType)
}

func TestAggregatorSailingEnrichesKnownCruises(t *testing.T) {
	agg := NewAggregator()

	agg.Consume(Message{Type: MessageCruiseBatch, Booking: &clubroyale.BookingRecord{
		ShipName: "Oasis of the Seas",
		SailDate: "2026-03-10",
	}})
	agg.Consume(Message{Type: MessageCruiseBatch, Sailing: &clubroyale.SailingRecord{
		ShipName:      "Oasis of the Seas",
		SailDate:      "2026-03-10",
		ItineraryName: "Western Caribbean",
		Nights:        7,
	}})
	// enrichment for a sailing nothing else delivered is dropped
	agg.Consume(Message{Type: MessageCruiseBatch, Sailing: &clubroyale.SailingRecord{
		ShipName: "Wonder of the Seas",
		SailDate: "2026-04-01",
	}})

	set := agg.Result()
	require.Len(t, set.Cruises, 1)
	require.Equal(t, "Western Caribbean", set.Cruises[0].ItineraryName)
	require.Equal(t, 7, set.Cruises[0].Nights)
}

func TestAggregatorRedeliveredOfferFillsGaps(t *testing.T) {
	agg := NewAggregator()

	agg.Consume(Message{Type: MessageOfferBatch, Offer: &clubroyale.OfferRecord{
		OfferCode: "OC123A",
		OfferName: "First Name",
	}})
	agg.Consume(Message{Type: MessageOfferBatch, Offer: &clubroyale.OfferRecord{
		OfferCode:  "OC123A",
		OfferName:  "Second Name",
		ExpiryDate: "2026-01-31",
	}})

	set := agg.Result()
	require.Len(t, set.Offers, 1)
	// populated fields never clobbered, gaps filled
	require.Equal(t, "First Name", set.Offers[0].OfferName)
	require.Equal(t, "2026-01-31", set.Offers[0].ExpiryDate)
}

func TestAggregatorErrorNeverRetracts(t *testing.T) {
	agg := NewAggregator()

	agg.Consume(Message{Type: MessageOfferBatch, Offer: &clubroyale.OfferRecord{OfferCode: "OC123A"}})
	agg.Consume(Message{Type: MessageError, Step: StepScrapingBookings, Error: "browser crashed"})

	require.False(t, agg.Completed())
	step, text := agg.Failure()
	require.Equal(t, StepScrapingBookings, step)
	require.Equal(t, "browser crashed", text)

	// everything delivered before the failure stays
	require.Len(t, agg.Result().Offers, 1)
}

func TestAggregatorToleratesTrailingLog(t *testing.T) {
	agg := NewAggregator()
	agg.Consume(Message{Type: MessageComplete})
	agg.Consume(Message{Type: MessageLog, Level: slog.LevelInfo, Text: "late log line"})
	require.True(t, agg.Completed())
}

func TestAggregatorCollectsWarnings(t *testing.T) {
	agg := NewAggregator()
	agg.Consume(Message{Type: MessageStepComplete, Step: StepScrapingHolds, Warning: true})
	agg.Consume(Message{Type: MessageStepComplete, Step: StepFetchingOffers})
	require.Equal(t, []Step{StepScrapingHolds}, agg.Warnings())
}

func TestAggregatorDrain(t *testing.T) {
	sink := NewChannelSink()
	agg := NewAggregator()

	done := make(chan struct{})
	go func() {
		agg.Drain(sink)
		close(done)
	}()

	sink.Send(Message{Type: MessageOfferBatch, Offer: &clubroyale.OfferRecord{OfferCode: "OC123A"}})
	sink.Send(Message{Type: MessageComplete})
	close(sink)
	<-done

	require.True(t, agg.Completed())
	require.Len(t, agg.Result().Offers, 1)
}

func TestChannelSinkFlush(t *testing.T) {
	sink := NewChannelSink()
	agg := NewAggregator()

	done := make(chan struct{})
	go func() {
		agg.Drain(sink)
		close(done)
	}()

	sink.Send(Message{Type: MessageOfferBatch, Offer: &clubroyale.OfferRecord{OfferCode: "OC123A"}})
	sink.Send(Message{Type: MessageOfferBatch, Offer: &clubroyale.OfferRecord{OfferCode: "WG88B"}})
	sink.Flush()

	// everything sent before the barrier is consumed once it returns
	require.Len(t, agg.Result().Offers, 2)

	close(sink)
	<-done
}
