package textutil

import (
	"regexp"
	"strings"
	"time"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func CollapseWhitespace(s string) string {
	s = strings.Trim(s, " \n\t")
	return whitespaceRegex.ReplaceAllString(s, " ")
}

var shipSuffixRegex = regexp.MustCompile(`(?i)\s+of\s+the\s+seas\s*$`)

// NormalizeShipName produces the canonical key form of a ship name:
// lower-cased, whitespace collapsed, with the fleet-wide "of the Seas"
// suffix stripped so "Oasis of the Seas" and "OASIS" compare equal.
func NormalizeShipName(name string) string {
	name = shipSuffixRegex.ReplaceAllString(name, "")
	name = strings.ToLower(name)
	return CollapseWhitespace(name)
}

// sail dates appear upstream as 03-10-2026, 03/10/2026, 2026-03-10 and
// "Mar 10, 2026" depending on which response or card rendered them
var sailDateLayouts = []string{
	"01-02-2006",
	"01/02/2006",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 02, 2006",
}

const CanonicalDateLayout = "2006-01-02"

// NormalizeSailDate converts any known upstream date spelling to
// YYYY-MM-DD. Unrecognized input is returned trimmed but otherwise
// untouched so it can still participate in exact-match lookups.
func NormalizeSailDate(date string) string {
	date = CollapseWhitespace(date)
	if date == "" {
		return ""
	}
	for _, layout := range sailDateLayouts {
		t, err := time.Parse(layout, date)
		if err == nil {
			return t.Format(CanonicalDateLayout)
		}
	}
	return date
}

// CruiseKey is the composite identity of a sailing used for
// cross-record lookups.
func CruiseKey(shipName, sailDate string) string {
	return NormalizeShipName(shipName) + "|" + NormalizeSailDate(sailDate)
}

func NormalizeOfferCode(code string) string {
	return strings.ToUpper(CollapseWhitespace(code))
}

var digitRegex = regexp.MustCompile(`[0-9]`)
var letterRegex = regexp.MustCompile(`[A-Za-z]`)

// IsOfferCodeToken reports whether a free-text token is plausibly an
// offer code: 4-15 characters containing at least one digit and one
// letter. Purely numeric tokens (years, prices) and purely alphabetic
// ones (ordinary words) are too likely to be false positives.
func IsOfferCodeToken(token string) bool {
	if len(token) < 4 || len(token) > 15 {
		return false
	}
	return digitRegex.MatchString(token) && letterRegex.MatchString(token)
}
