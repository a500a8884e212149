package clubroyale

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"

	"cruiseledger-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

var (
	shipNameRegex = regexp.MustCompile(`\b([A-Z][A-Za-z]+(?:\s+[A-Za-z]+)?\s+of\s+the\s+Seas|Celebrity\s+[A-Z][a-z]+)\b`)
	nightsRegex   = regexp.MustCompile(`(?i)\b(\d{1,2})[\s-]*Night`)
	reservationRegexes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)reservation\s*(?:number|#|no\.?)?\s*:?\s*#?(\d{6,8})`),
		regexp.MustCompile(`(?i)booking\s*(?:number|#|id)?\s*:?\s*#?(\d{6,8})`),
		regexp.MustCompile(`#(\d{6,8})\b`),
	}
	sailDateRegexes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:sails?|sailing|departs?|departure)\s*(?:on|:)?\s*([A-Z][a-z]{2,8} \d{1,2}, \d{4})`),
		regexp.MustCompile(`\b(\d{2}[-/]\d{2}[-/]\d{4})\b`),
		regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`),
		regexp.MustCompile(`\b([A-Z][a-z]{2,8} \d{1,2}, \d{4})\b`),
	}
	cabinRegex = regexp.MustCompile(`(?i)\b(interior|ocean\s*view|oceanview|balcony|suite|junior suite)\b`)

	bookingsExpectedRegex = regexp.MustCompile(`(?i)(?:you have|showing)\s+(\d{1,3})\s+(?:of\s+\d{1,3}\s+)?(?:upcoming\s+)?(?:cruises|bookings|reservations)`)
)

type BookingsResult struct {
	Bookings      []BookingRecord
	ExpectedCount int
	Skipped       int
	// true when the processed count differs from the page-reported
	// expected count. a caution, never a failure.
	CountMismatch bool
}

type DomStepOptions struct {
	OnProgress func(current, total int)
}

const bookingsPath = "/account/upcoming-cruises"

// ScrapeBookings extracts every upcoming booking card from the
// scroll-loaded bookings list.
func ScrapeBookings(ctx context.Context, page Page, opts DomStepOptions) (BookingsResult, error) {
	ctx, span := tracer.Start(ctx, "ScrapeBookings")
	defer span.End()

	err := page.Navigate(ctx, bookingsPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open bookings page")
		return BookingsResult{}, networkErrorf("open bookings page: %s", err.Error())
	}
	err = scrollUntilSettled(ctx, page)
	if err != nil {
		return BookingsResult{}, err
	}
	doc, err := pageDocument(ctx, page)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse bookings page")
		return BookingsResult{}, networkErrorf("parse bookings page: %s", err.Error())
	}

	cards := findCards(doc, cardSearch{
		predicates: []*regexp.Regexp{shipNameRegex, nightsRegex},
		anyOf:      reservationRegexes,
		maxTextLen: 900,
	})

	result := BookingsResult{
		ExpectedCount: expectedCount(doc, bookingsExpectedRegex),
	}
	for i, card := range cards {
		if opts.OnProgress != nil {
			opts.OnProgress(i+1, len(cards))
		}
		booking, ok := extractBookingCard(ctx, card.text)
		if !ok {
			result.Skipped++
			continue
		}
		result.Bookings = append(result.Bookings, booking)
	}

	if result.ExpectedCount > 0 && len(result.Bookings) != result.ExpectedCount {
		result.CountMismatch = true
		slog.WarnContext(
			ctx, "booking count mismatch",
			"expected", result.ExpectedCount,
			"scraped", len(result.Bookings),
		)
	}
	return result, nil
}

func extractBookingCard(ctx context.Context, text string) (BookingRecord, bool) {
	booking := BookingRecord{
		ShipName:          firstMatch(text, []*regexp.Regexp{shipNameRegex}),
		SailDate:          textutil.NormalizeSailDate(firstMatch(text, sailDateRegexes)),
		ReservationNumber: firstMatch(text, reservationRegexes),
		CabinType:         firstMatch(text, []*regexp.Regexp{cabinRegex}),
	}
	if nights := nightsRegex.FindStringSubmatch(text); len(nights) >= 2 {
		booking.Nights, _ = strconv.Atoi(nights[1])
	}

	// a card without the identity fields is unusable, skip it and
	// keep the batch going
	if booking.ShipName == "" || booking.ReservationNumber == "" {
		slog.WarnContext(
			ctx, "skipping booking card with missing required fields",
			"ship", booking.ShipName,
			"reservation", booking.ReservationNumber,
			"err", ErrParse,
		)
		return BookingRecord{}, false
	}
	return booking, true
}

func expectedCount(doc *goquery.Document, pattern *regexp.Regexp) int {
	groups := pattern.FindStringSubmatch(textutil.CollapseWhitespace(doc.Text()))
	if len(groups) < 2 {
		return 0
	}
	n, err := strconv.Atoi(groups[1])
	if err != nil {
		return 0
	}
	return n
}
