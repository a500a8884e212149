package healer

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"cruiseledger-backend/lib/textutil"
	"cruiseledger-backend/services/extraction/records"

	"github.com/antzucaro/matchr"
)

// minimum Jaro-Winkler similarity for the fuzzy ship-name fallback
// when an exact normalized key misses
const fuzzyShipSimilarity = 0.92

// Heal fills missing fields on cruises from matching offers and vice
// versa. Populated fields are never overwritten, so running the pass
// twice yields an empty fieldsFixed delta the second time. Records
// that match nothing are counted as orphans, not errors.
func Heal(ctx context.Context, set *records.Set) records.HealingReport {
	report := records.HealingReport{}

	offersByCode := map[string]*records.Offer{}
	offersByCruiseKey := map[string]*records.Offer{}
	for _, offer := range set.Offers {
		if offer.OfferCode != "" {
			offersByCode[textutil.NormalizeOfferCode(offer.OfferCode)] = offer
		}
		if offer.ShipName != "" && offer.SailDate != "" {
			offersByCruiseKey[offer.Key()] = offer
		}
	}

	for _, cruise := range set.Cruises {
		healed := healCruise(cruise, offersByCode, offersByCruiseKey, set.Offers, &report)
		if !healed && cruise.OfferCode == "" {
			report.OrphanCruises++
		}
	}

	cruisesByKey := map[string]*records.Cruise{}
	for _, cruise := range set.Cruises {
		cruisesByKey[cruise.Key()] = cruise
	}
	for _, offer := range set.Offers {
		healed := healOffer(offer, cruisesByKey, &report)
		if !healed && (offer.ShipName == "" || offer.SailDate == "") {
			report.OrphanOffers++
		}
	}

	slog.InfoContext(
		ctx, "healing pass finished",
		"fields_fixed", len(report.FieldsFixed),
		"orphan_cruises", report.OrphanCruises,
		"orphan_offers", report.OrphanOffers,
	)
	return report
}

func healCruise(
	cruise *records.Cruise,
	offersByCode map[string]*records.Offer,
	offersByCruiseKey map[string]*records.Offer,
	allOffers []*records.Offer,
	report *records.HealingReport,
) bool {
	if cruise.OfferCode != "" && cruise.OfferName != "" &&
		cruise.OfferExpiry != "" && cruise.InteriorPrice != "" {
		return true
	}

	id := cruise.ReservationNumber
	if id == "" {
		id = cruise.Key()
	}

	offer := offersByCruiseKey[cruise.Key()]
	if offer == nil {
		offer = fuzzyMatchOffer(cruise, allOffers)
	}
	if offer == nil && cruise.OfferCode != "" {
		offer = offersByCode[textutil.NormalizeOfferCode(cruise.OfferCode)]
	}
	if offer == nil && cruise.OfferName != "" {
		// last resort: dig an embedded code out of the free-text
		// offer name
		code := ExtractOfferCode(cruise.OfferName)
		if code != "" {
			fillField(report, "cruise", id, "offerCode", &cruise.OfferCode, code)
			offer = offersByCode[code]
		}
	}
	if offer == nil {
		return false
	}

	fillField(report, "cruise", id, "offerCode", &cruise.OfferCode, offer.OfferCode)
	fillField(report, "cruise", id, "offerName", &cruise.OfferName, offer.OfferName)
	fillField(report, "cruise", id, "offerExpiry", &cruise.OfferExpiry, offer.ExpiryDate)
	fillField(report, "cruise", id, "interiorPrice", &cruise.InteriorPrice, offer.InteriorPrice)
	fillField(report, "cruise", id, "balconyPrice", &cruise.BalconyPrice, offer.BalconyPrice)
	fillField(report, "cruise", id, "suitePrice", &cruise.SuitePrice, offer.SuitePrice)
	return true
}

func healOffer(
	offer *records.Offer,
	cruisesByKey map[string]*records.Cruise,
	report *records.HealingReport,
) bool {
	cruise := cruisesByKey[offer.Key()]
	if cruise == nil {
		return false
	}

	id := offer.OfferCode
	if id == "" {
		id = offer.Key()
	}
	fillField(report, "offer", id, "offerCode", &offer.OfferCode, cruise.OfferCode)
	fillField(report, "offer", id, "offerName", &offer.OfferName, cruise.OfferName)
	fillField(report, "offer", id, "expiryDate", &offer.ExpiryDate, cruise.OfferExpiry)
	fillField(report, "offer", id, "shipName", &offer.ShipName, cruise.ShipName)
	fillField(report, "offer", id, "sailDate", &offer.SailDate, cruise.SailDate)
	return true
}

// fillField sets the target only when it is empty, appending an audit
// entry for every change.
func fillField(report *records.HealingReport, entity, id, field string, target *string, value string) {
	if *target != "" || value == "" {
		return
	}
	report.FieldsFixed = append(report.FieldsFixed, records.FieldFix{
		Entity: entity,
		Id:     id,
		Field:  field,
		Old:    "",
		New:    value,
	})
	*target = value
}

// fuzzyMatchOffer falls back to Jaro-Winkler ship-name similarity on
// same-date offers, which absorbs upstream spelling drift like
// "Allure of The Seas" vs "Allure of the Seas ".
func fuzzyMatchOffer(cruise *records.Cruise, offers []*records.Offer) *records.Offer {
	date := textutil.NormalizeSailDate(cruise.SailDate)
	ship := textutil.NormalizeShipName(cruise.ShipName)
	if date == "" || ship == "" {
		return nil
	}

	var best *records.Offer
	var bestSimilarity float64
	for _, offer := range offers {
		if textutil.NormalizeSailDate(offer.SailDate) != date {
			continue
		}
		similarity := matchr.JaroWinkler(ship, textutil.NormalizeShipName(offer.ShipName), false)
		if similarity > bestSimilarity {
			bestSimilarity = similarity
			best = offer
		}
	}
	if bestSimilarity < fuzzyShipSimilarity {
		return nil
	}
	return best
}

// patterns tried in priority order against free-text offer names
var offerCodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)offer\s*(?:code)?\s*[:#]\s*([A-Za-z0-9-]+)`),
	regexp.MustCompile(`\(([A-Za-z0-9-]+)\)\s*$`),
	regexp.MustCompile(`[-–]\s*([A-Za-z0-9-]+)\s*$`),
	regexp.MustCompile(`\b([A-Z0-9][A-Z0-9-]*)\s*$`),
}

// ExtractOfferCode digs an embedded offer code out of a free-text
// offer name. A candidate is accepted only when it is 4-15 characters
// and mixes digits and letters, purely numeric or purely alphabetic
// tokens are too likely to be false positives.
func ExtractOfferCode(offerName string) string {
	name := strings.TrimSpace(offerName)
	for _, pattern := range offerCodePatterns {
		groups := pattern.FindStringSubmatch(name)
		if len(groups) < 2 {
			continue
		}
		candidate := strings.TrimSpace(groups[1])
		if textutil.IsOfferCodeToken(candidate) {
			return textutil.NormalizeOfferCode(candidate)
		}
	}
	return ""
}
