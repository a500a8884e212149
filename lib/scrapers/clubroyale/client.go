package clubroyale

import (
	"net/http/cookiejar"
	"time"

	"cruiseledger-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("scrapers/clubroyale")

// pacing for the per-offer re-fetch loop. this is backpressure
// against the upstream, not a correctness requirement.
const refetchInterval = time.Millisecond * 1500

type Client struct {
	Auth AuthContext
	Http *resty.Client

	interceptor *Interceptor
	refetchRate *rate.Limiter
}

type ClientOptions struct {
	Auth AuthContext
	// optional, receives passively captured payloads and headers
	Interceptor *Interceptor
}

func NewClient(opts ClientOptions) (*Client, error) {
	client := resty.New()
	client.SetBaseURL(opts.Auth.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetHeader("Authorization", opts.Auth.Authorization)
	client.SetHeader("AppKey", opts.Auth.ApiKey)
	client.SetHeader("Account-Id", opts.Auth.AccountId)
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/clubroyale/http")

	if opts.Interceptor != nil {
		opts.Interceptor.Install(client)
	}

	return &Client{
		Auth:        opts.Auth,
		Http:        client,
		interceptor: opts.Interceptor,
		refetchRate: rate.NewLimiter(rate.Every(refetchInterval), 1),
	}, nil
}
