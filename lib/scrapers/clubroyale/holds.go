package clubroyale

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"

	"cruiseledger-backend/lib/textutil"

	"go.opentelemetry.io/otel/codes"
)

var (
	holdWordRegex   = regexp.MustCompile(`(?i)\bhold\b`)
	holdExpiryRegexes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:expires?|hold until|held until)\s*(?:on|:)?\s*([A-Z][a-z]{2,8} \d{1,2}, \d{4})`),
		regexp.MustCompile(`(?i)(?:expires?|hold until|held until)\s*(?:on|:)?\s*(\d{2}[-/]\d{2}[-/]\d{4})`),
	}
	holdsExpectedRegex = regexp.MustCompile(`(?i)(?:you have|showing)\s+(\d{1,3})\s+(?:of\s+\d{1,3}\s+)?(?:courtesy\s+)?holds?`)
)

type HoldsResult struct {
	Holds         []HoldRecord
	ExpectedCount int
	Skipped       int
	CountMismatch bool
}

const holdsPath = "/account/courtesy-holds"

// ScrapeHolds extracts courtesy-hold cards. A hold card is identified
// by carrying a ship name, a night count, a reservation number and
// either an expiry or the word "hold"; it has no pricing.
func ScrapeHolds(ctx context.Context, page Page, opts DomStepOptions) (HoldsResult, error) {
	ctx, span := tracer.Start(ctx, "ScrapeHolds")
	defer span.End()

	err := page.Navigate(ctx, holdsPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open holds page")
		return HoldsResult{}, networkErrorf("open holds page: %s", err.Error())
	}
	err = scrollUntilSettled(ctx, page)
	if err != nil {
		return HoldsResult{}, err
	}
	doc, err := pageDocument(ctx, page)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse holds page")
		return HoldsResult{}, networkErrorf("parse holds page: %s", err.Error())
	}

	anyOf := append([]*regexp.Regexp{}, holdExpiryRegexes...)
	anyOf = append(anyOf, holdWordRegex)
	cards := findCards(doc, cardSearch{
		predicates: append(
			[]*regexp.Regexp{shipNameRegex, nightsRegex},
			combinedReservationRegex(),
		),
		anyOf:      anyOf,
		maxTextLen: 700,
	})

	result := HoldsResult{
		ExpectedCount: expectedCount(doc, holdsExpectedRegex),
	}
	for i, card := range cards {
		if opts.OnProgress != nil {
			opts.OnProgress(i+1, len(cards))
		}
		hold, ok := extractHoldCard(ctx, card.text)
		if !ok {
			result.Skipped++
			continue
		}
		result.Holds = append(result.Holds, hold)
	}

	if result.ExpectedCount > 0 && len(result.Holds) != result.ExpectedCount {
		result.CountMismatch = true
		slog.WarnContext(
			ctx, "hold count mismatch",
			"expected", result.ExpectedCount,
			"scraped", len(result.Holds),
		)
	}
	return result, nil
}

// any of the reservation spellings counts as the required
// reservation-number predicate
func combinedReservationRegex() *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:reservation|booking|#)\s*(?:number|no\.?|id)?\s*:?\s*#?\d{6,8}`)
}

func extractHoldCard(ctx context.Context, text string) (HoldRecord, bool) {
	hold := HoldRecord{
		ShipName:          firstMatch(text, []*regexp.Regexp{shipNameRegex}),
		SailDate:          textutil.NormalizeSailDate(firstMatch(text, sailDateRegexes)),
		ReservationNumber: firstMatch(text, reservationRegexes),
		ExpiryDate:        firstMatch(text, holdExpiryRegexes),
	}
	if nights := nightsRegex.FindStringSubmatch(text); len(nights) >= 2 {
		hold.Nights, _ = strconv.Atoi(nights[1])
	}

	if hold.ShipName == "" || hold.ReservationNumber == "" {
		slog.WarnContext(
			ctx, "skipping hold card with missing required fields",
			"ship", hold.ShipName,
			"reservation", hold.ReservationNumber,
			"err", ErrParse,
		)
		return HoldRecord{}, false
	}
	return hold, true
}
