package clubroyale

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
)

// Endpoint names the api surfaces the interceptor knows how to
// recognize on the wire.
type Endpoint string

const (
	EndpointOffers   Endpoint = "offers"
	EndpointBookings Endpoint = "bookings"
	EndpointVoyage   Endpoint = "voyage"
	EndpointLoyalty  Endpoint = "loyalty"
)

// url path fragments that identify each endpoint. both storefront
// path variants are covered.
var endpointPatterns = map[Endpoint][]string{
	EndpointOffers:   {"/casino-offers", "/casino/offers"},
	EndpointBookings: {"/enriched-bookings", "/profileBookings/enriched"},
	EndpointVoyage:   {"/voyages/", "/voyage-enrichment"},
	EndpointLoyalty:  {"/loyalty/info", "/loyaltyInfo"},
}

// CapturedPayload is the raw parsed body of one intercepted
// response. Ephemeral, last capture per endpoint wins.
type CapturedPayload struct {
	Endpoint Endpoint
	Body     json.RawMessage
	// a short observability summary, usually a record count
	RecordCount int
}

// CapturedHeaders are credentials recovered off outgoing requests to
// the authenticated api host, a fallback for when the persisted
// session blob is missing fields.
type CapturedHeaders struct {
	ApiKey        string
	Authorization string
	AccountId     string
}

func (h CapturedHeaders) Empty() bool {
	return h.ApiKey == "" && h.Authorization == "" && h.AccountId == ""
}

// Interceptor passively taps responses flowing through a resty
// client. It owns all of its state so it can be constructed fresh per
// extraction run and reset between tests, instead of hanging off a
// page-global flag.
type Interceptor struct {
	mu        sync.Mutex
	installed bool
	apiHost   string
	payloads  map[Endpoint]CapturedPayload
	headers   CapturedHeaders

	// optional, invoked after each successful capture
	OnCapture func(payload CapturedPayload)
	OnHeaders func(headers CapturedHeaders)
}

func NewInterceptor(apiHost string) *Interceptor {
	return &Interceptor{
		apiHost:  apiHost,
		payloads: map[Endpoint]CapturedPayload{},
	}
}

// Install hooks the interceptor into the client's response chain.
// Idempotent: installing twice (or installing after a Reset) never
// registers a second hook.
func (i *Interceptor) Install(client *resty.Client) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.installed {
		return
	}
	i.installed = true

	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		// a capture failure must never break the caller's request
		i.capture(res)
		return nil
	})
}

// Reset clears captured state between runs. The install guard is
// deliberately left set, the hook stays registered on the client.
func (i *Interceptor) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.payloads = map[Endpoint]CapturedPayload{}
	i.headers = CapturedHeaders{}
}

func (i *Interceptor) Payload(endpoint Endpoint) (CapturedPayload, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	p, ok := i.payloads[endpoint]
	return p, ok
}

func (i *Interceptor) Headers() CapturedHeaders {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.headers
}

func matchEndpoint(requestUrl string) (Endpoint, bool) {
	for endpoint, patterns := range endpointPatterns {
		for _, p := range patterns {
			if strings.Contains(requestUrl, p) {
				return endpoint, true
			}
		}
	}
	return "", false
}

func (i *Interceptor) capture(res *resty.Response) {
	i.captureRequestHeaders(res.Request)

	endpoint, ok := matchEndpoint(res.Request.URL)
	if !ok {
		return
	}

	body := res.Body()
	if !json.Valid(body) {
		// one malformed body never disables interception of
		// subsequent calls
		slog.WarnContext(
			res.Request.Context(), "intercepted response is not json",
			"endpoint", endpoint,
			"url", res.Request.URL,
		)
		return
	}

	payload := CapturedPayload{
		Endpoint:    endpoint,
		Body:        json.RawMessage(append([]byte(nil), body...)),
		RecordCount: countRecords(body),
	}

	i.mu.Lock()
	i.payloads[endpoint] = payload
	onCapture := i.OnCapture
	i.mu.Unlock()

	slog.DebugContext(
		res.Request.Context(), "captured payload",
		"endpoint", endpoint,
		"records", payload.RecordCount,
	)
	if onCapture != nil {
		onCapture(payload)
	}
}

func (i *Interceptor) captureRequestHeaders(req *resty.Request) {
	link, err := url.Parse(req.URL)
	if err != nil || !strings.EqualFold(link.Hostname(), i.apiHost) {
		return
	}

	header := req.Header
	captured := CapturedHeaders{
		ApiKey:        header.Get("AppKey"),
		Authorization: header.Get("Authorization"),
		AccountId:     header.Get("Account-Id"),
	}
	if captured.Empty() {
		return
	}

	i.mu.Lock()
	changed := captured != i.headers
	i.headers = captured
	onHeaders := i.OnHeaders
	i.mu.Unlock()

	if changed && onHeaders != nil {
		onHeaders(captured)
	}
}

// countRecords summarizes a captured body for observability: the
// length of the first top-level array found, or 1 for a lone object.
func countRecords(body []byte) int {
	var asList []json.RawMessage
	if err := json.Unmarshal(body, &asList); err == nil {
		return len(asList)
	}
	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(body, &asObject); err != nil {
		return 0
	}
	for _, v := range asObject {
		if err := json.Unmarshal(v, &asList); err == nil {
			return len(asList)
		}
	}
	return 1
}
