package clubroyale

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Brand string

const (
	BrandRoyal     Brand = "royal"
	BrandCelebrity Brand = "celebrity"
)

const (
	royalBaseUrl     = "https://aws-prd.api.rccl.com"
	celebrityBaseUrl = "https://aws-prd.api.celebritycruises.com"
)

// AuthContext is everything needed to issue authenticated calls
// against the loyalty api on the member's behalf.
type AuthContext struct {
	// "Bearer <token>", ready to be used as an Authorization header
	Authorization string
	ApiKey        string
	AccountId     string
	LoyaltyId     string
	Brand         Brand
	BaseUrl       string
	ExpiresAt     time.Time
}

// the persisted session blob stores several of its fields as
// JSON-encoded strings inside the outer JSON object
type sessionBlob struct {
	Token           json.RawMessage `json:"token"`
	TokenExpiration json.RawMessage `json:"tokenExpiration"`
	User            json.RawMessage `json:"user"`
	ApiKey          json.RawMessage `json:"apiKey"`
}

type sessionUser struct {
	AccountId       string `json:"accountId"`
	CruiseLoyaltyId string `json:"cruiseLoyaltyId"`
}

// decodeField unwraps a blob field that may be stored either as a
// plain JSON value or as a JSON string containing more JSON.
func decodeField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// BrandFromHost derives the storefront from the page hostname the
// session was captured on.
func BrandFromHost(host string) Brand {
	if strings.Contains(strings.ToLower(host), "celebrity") {
		return BrandCelebrity
	}
	return BrandRoyal
}

func baseUrlForBrand(brand Brand) string {
	if brand == BrandCelebrity {
		return celebrityBaseUrl
	}
	return royalBaseUrl
}

// ExtractAuthContext parses the persisted session blob into a
// validated AuthContext. It is a pure parse, no network calls are
// made, and it fails with ErrAuth before a single request can be
// issued on an expired or incomplete session.
func ExtractAuthContext(blob, pageHost string, now time.Time) (AuthContext, error) {
	if strings.TrimSpace(blob) == "" {
		return AuthContext{}, authErrorf("no session blob found")
	}

	var session sessionBlob
	err := json.Unmarshal([]byte(blob), &session)
	if err != nil {
		return AuthContext{}, authErrorf("malformed session blob: %s", err.Error())
	}

	token := strings.TrimSpace(decodeField(session.Token))
	if token == "" {
		return AuthContext{}, authErrorf("session has no token")
	}

	userField := decodeField(session.User)
	var user sessionUser
	if userField != "" {
		// the user field may itself be a JSON-encoded string
		err = json.Unmarshal([]byte(userField), &user)
		if err != nil {
			return AuthContext{}, authErrorf("malformed session user: %s", err.Error())
		}
	}
	if user.AccountId == "" {
		return AuthContext{}, authErrorf("session has no account id")
	}

	expiresAt, err := parseExpiration(decodeField(session.TokenExpiration))
	if err != nil {
		return AuthContext{}, authErrorf("malformed token expiration: %s", err.Error())
	}
	if !expiresAt.After(now) {
		return AuthContext{}, authErrorf("token expired at %s", expiresAt.Format(time.RFC3339))
	}

	brand := BrandFromHost(pageHost)
	return AuthContext{
		Authorization: fmt.Sprintf("Bearer %s", token),
		ApiKey:        decodeField(session.ApiKey),
		AccountId:     user.AccountId,
		LoyaltyId:     user.CruiseLoyaltyId,
		Brand:         brand,
		BaseUrl:       baseUrlForBrand(brand),
		ExpiresAt:     expiresAt,
	}, nil
}

// expiration is stored in seconds since epoch, normalize to
// milliseconds before the comparison
func parseExpiration(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty expiration")
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(seconds * 1000)), nil
}
