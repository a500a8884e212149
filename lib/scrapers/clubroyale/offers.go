package clubroyale

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/codes"
)

type OffersResult struct {
	Offers []OfferRecord
	// how many offers came back incomplete and were fetched again
	Refetched int
}

type OffersOptions struct {
	// optional, reports re-fetch progress
	OnProgress func(current, total int)
	// optional, invoked per normalized offer as it is finalized
	OnOffer func(offer OfferRecord)
}

func offersPath(brand Brand) string {
	if brand == BrandCelebrity {
		return "/v1/casino/offers"
	}
	return "/v1/casino-offers"
}

// FetchOffers pulls every casino offer for the authenticated loyalty
// id. First-pass responses sometimes omit sailing detail, those
// offers are re-fetched one at a time with a fixed delay and their
// sailings merged back in.
func (c *Client) FetchOffers(ctx context.Context, opts OffersOptions) (OffersResult, error) {
	ctx, span := tracer.Start(ctx, "FetchOffers")
	defer span.End()

	body, err := c.fetchOffersPayload(ctx, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch offer list")
		return OffersResult{}, err
	}

	offers, err := decodeOfferList(body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse offer list")
		return OffersResult{}, networkErrorf("malformed offer list: %s", err.Error())
	}

	var incomplete []int
	for i, offer := range offers {
		if offer.Incomplete() {
			incomplete = append(incomplete, i)
		}
	}
	slog.InfoContext(
		ctx, "fetched offer list",
		"total", len(offers),
		"incomplete", len(incomplete),
	)

	refetched := 0
	for n, i := range incomplete {
		if opts.OnProgress != nil {
			opts.OnProgress(n+1, len(incomplete))
		}
		// serialized on purpose, the upstream throttles bursts
		err := c.refetchRate.Wait(ctx)
		if err != nil {
			return OffersResult{}, err
		}

		detail, err := c.refetchOffer(ctx, offers[i].OfferCode)
		if err != nil {
			// a single failed re-fetch leaves the first-pass offer
			// as-is rather than aborting the step
			slog.WarnContext(
				ctx, "failed to re-fetch incomplete offer",
				"offer_code", offers[i].OfferCode,
				"err", err,
			)
			continue
		}
		offers[i].Sailings = mergeSailings(offers[i].Sailings, detail.Sailings)
		if offers[i].OfferName == "" {
			offers[i].OfferName = detail.OfferName
		}
		if offers[i].ExpiryDate == "" {
			offers[i].ExpiryDate = detail.ExpiryDate
		}
		refetched++
	}

	if opts.OnOffer != nil {
		for _, offer := range offers {
			opts.OnOffer(offer)
		}
	}

	return OffersResult{Offers: offers, Refetched: refetched}, nil
}

func (c *Client) fetchOffersPayload(ctx context.Context, offerCode string) ([]byte, error) {
	path := offersPath(c.Auth.Brand)
	if offerCode != "" {
		path = fmt.Sprintf("%s/%s", path, offerCode)
	}

	res, err := c.Http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(map[string]string{"loyaltyId": c.Auth.LoyaltyId}).
		Post(path)
	if err != nil {
		return nil, networkErrorf("fetch %s: %s", path, err.Error())
	}
	if res.StatusCode() == http.StatusForbidden {
		return nil, fmt.Errorf("fetch %s: %w", path, ErrRateLimit)
	}
	if !res.IsSuccess() {
		return nil, networkErrorf("fetch %s: status %d", path, res.StatusCode())
	}
	return res.Body(), nil
}

func (c *Client) refetchOffer(ctx context.Context, offerCode string) (OfferRecord, error) {
	body, err := c.fetchOffersPayload(ctx, offerCode)
	if err != nil {
		return OfferRecord{}, err
	}

	offers, err := decodeOfferList(body)
	if err != nil {
		return OfferRecord{}, networkErrorf("malformed offer detail: %s", err.Error())
	}
	if len(offers) == 0 {
		return OfferRecord{}, networkErrorf("offer detail response was empty")
	}
	return offers[0], nil
}

func decodeOfferList(body []byte) ([]OfferRecord, error) {
	// the list endpoint wraps the array, the detail endpoint returns
	// either a bare array or a single object
	var wrapper struct {
		Offers []rawRecord `json:"offers"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Offers != nil {
		return normalizeOffers(wrapper.Offers), nil
	}

	var list []rawRecord
	if err := json.Unmarshal(body, &list); err == nil {
		return normalizeOffers(list), nil
	}

	var single rawRecord
	err := json.Unmarshal(body, &single)
	if err != nil {
		return nil, err
	}
	return normalizeOffers([]rawRecord{single}), nil
}

func normalizeOffers(raw []rawRecord) []OfferRecord {
	offers := make([]OfferRecord, len(raw))
	for i, r := range raw {
		offers[i] = normalizeOffer(r)
	}
	return offers
}

// mergeSailings folds re-fetched sailing detail into the first-pass
// list. Keyed by (shipCode|sailDate): new keys append, colliding keys
// are superseded by the re-fetch. Merging the same detail twice is a
// no-op.
func mergeSailings(existing, fetched []SailingRecord) []SailingRecord {
	index := make(map[string]int, len(existing))
	merged := make([]SailingRecord, len(existing))
	copy(merged, existing)
	for i, s := range merged {
		index[s.Key()] = i
	}

	for _, s := range fetched {
		i, seen := index[s.Key()]
		if seen {
			merged[i] = s
			continue
		}
		index[s.Key()] = len(merged)
		merged = append(merged, s)
	}
	return merged
}
