package clubroyale

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

const bookingsFixture = `
<html><body>
<p>You have 2 upcoming cruises</p>
<div class="list">
	<div class="card">
		Oasis of the Seas
		7-Night Western Caribbean
		Departs Mar 10, 2026
		Reservation #1234567
		Balcony
	</div>
	<div class="card">
		Celebrity Edge
		4-Night Bahamas
		Sailing on Apr 5, 2026
		Booking #7654321
		Interior
	</div>
</div>
</body></html>`

func TestScrapeBookings(t *testing.T) {
	page := &fixturePage{
		content: map[string]string{bookingsPath: bookingsFixture},
		heights: []int{1200, 1200, 1200},
	}

	var progress int
	result, err := ScrapeBookings(context.Background(), page, DomStepOptions{
		OnProgress: func(current, total int) { progress = current },
	})
	require.NoError(t, err)

	require.Equal(t, bookingsPath, page.path)
	require.Equal(t, 2, result.ExpectedCount)
	require.False(t, result.CountMismatch)
	require.Equal(t, 2, progress)
	require.Len(t, result.Bookings, 2)

	// cards surface shortest-first, the celebrity card has less text
	first := result.Bookings[0]
	require.Equal(t, "Celebrity Edge", first.ShipName)
	require.Equal(t, "2026-04-05", first.SailDate)
	require.Equal(t, "7654321", first.ReservationNumber)
	require.Equal(t, "Interior", first.CabinType)
	require.Equal(t, 4, first.Nights)

	second := result.Bookings[1]
	require.Equal(t, "Oasis of the Seas", second.ShipName)
	require.Equal(t, "2026-03-10", second.SailDate)
	require.Equal(t, "1234567", second.ReservationNumber)
	require.Equal(t, "Balcony", second.CabinType)
	require.Equal(t, 7, second.Nights)
}

func TestScrapeBookingsCountMismatch(t *testing.T) {
	page := &fixturePage{
		content: map[string]string{bookingsPath: `
			<html><body>
			<p>You have 3 upcoming cruises</p>
			<div>Oasis of the Seas 7-Night Reservation #1234567</div>
			</body></html>`},
		heights: []int{800, 800, 800},
	}

	result, err := ScrapeBookings(context.Background(), page, DomStepOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, result.ExpectedCount)
	require.Len(t, result.Bookings, 1)
	require.True(t, result.CountMismatch)
}

func TestScrapeBookingsEmptyPage(t *testing.T) {
	page := &fixturePage{
		content: map[string]string{bookingsPath: `<html><body><p>No upcoming cruises</p></body></html>`},
		heights: []int{400, 400, 400},
	}

	result, err := ScrapeBookings(context.Background(), page, DomStepOptions{})
	require.NoError(t, err)
	require.Empty(t, result.Bookings)
	require.False(t, result.CountMismatch)
}
