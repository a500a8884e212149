package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cruiseledger-backend/lib/scrapers/clubroyale"

	"github.com/stretchr/testify/require"
)

func sessionBlobFixture(t *testing.T, expiresAt time.Time) string {
	user, err := json.Marshal(map[string]string{
		"accountId":       "acct-123",
		"cruiseLoyaltyId": "CR-456",
	})
	require.NoError(t, err)

	blob, err := json.Marshal(map[string]string{
		"token":           "eyJtoken",
		"tokenExpiration": fmt.Sprintf("%d", expiresAt.Unix()),
		"user":            string(user),
	})
	require.NoError(t, err)
	return string(blob)
}

// recordSink captures every message in order for assertions.
type recordSink struct {
	msgs []Message
}

func (s *recordSink) Send(msg Message) {
	s.msgs = append(s.msgs, msg)
}

func (s *recordSink) byType(mt MessageType) []Message {
	var out []Message
	for _, m := range s.msgs {
		if m.Type == mt {
			out = append(out, m)
		}
	}
	return out
}

// stepTraceSink additionally records the session step observed as
// each message lands.
type stepTraceSink struct {
	recordSink
	session *Session
	steps   []Step
}

func (s *stepTraceSink) Send(msg Message) {
	s.steps = append(s.steps, s.session.Step())
	s.recordSink.Send(msg)
}

// fakePage serves canned html per member-site path.
type fakePage struct {
	content map[string]string
	path    string
}

func (p *fakePage) Navigate(_ context.Context, path string) error { p.path = path; return nil }
func (p *fakePage) ScrollToBottom(context.Context) error          { return nil }
func (p *fakePage) Height(context.Context) (int, error)           { return 1000, nil }
func (p *fakePage) Content(context.Context) (string, error)       { return p.content[p.path], nil }

func TestRunExpiredSessionNeverTouchesNetwork(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sink := &recordSink{}
	service := &Service{
		Sink:        sink,
		Session:     NewSession(),
		SessionBlob: sessionBlobFixture(t, now.Add(-time.Minute)),
		PageHost:    "www.royalcaribbean.com",
		NewClient: func(opts clubroyale.ClientOptions) (*clubroyale.Client, error) {
			opts.Auth.BaseUrl = server.URL
			return clubroyale.NewClient(opts)
		},
		Now: func() time.Time { return now },
	}

	err := service.Run(context.Background())
	require.ErrorIs(t, err, clubroyale.ErrAuth)
	require.EqualValues(t, 0, requests.Load())

	require.Equal(t, StepFailed, service.Session.Step())
	failedStep, sessionErr := service.Session.Err()
	require.Equal(t, StepAuthenticating, failedStep)
	require.ErrorIs(t, sessionErr, clubroyale.ErrAuth)

	errs := sink.byType(MessageError)
	require.Len(t, errs, 1)
	require.Equal(t, StepAuthenticating, errs[0].Step)
	require.NotEmpty(t, errs[0].Error)
	require.Empty(t, sink.byType(MessageComplete))
}

func TestRunApiOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/casino-offers" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"offers": []map[string]any{
				{
					"offerCode": "OC123A",
					"offerName": "Free Interior",
					"sailings": []map[string]any{
						{"shipCode": "OA", "shipName": "Oasis of the Seas", "sailDate": "2026-03-10", "itineraryCode": "OA7"},
					},
				},
			},
		})
	}))
	defer server.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sink := &recordSink{}
	service := &Service{
		Sink:        sink,
		Session:     NewSession(),
		SessionBlob: sessionBlobFixture(t, now.Add(time.Hour)),
		PageHost:    "www.royalcaribbean.com",
		NewClient: func(opts clubroyale.ClientOptions) (*clubroyale.Client, error) {
			opts.Auth.BaseUrl = server.URL
			return clubroyale.NewClient(opts)
		},
		Now: func() time.Time { return now },
	}

	err := service.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, StepCompleted, service.Session.Step())
	require.Equal(t, 1, service.Session.Offers)

	offers := sink.byType(MessageOfferBatch)
	require.Len(t, offers, 1)
	require.Equal(t, "OC123A", offers[0].Offer.OfferCode)

	steps := sink.byType(MessageStepComplete)
	require.Len(t, steps, 1)
	require.Equal(t, StepFetchingOffers, steps[0].Step)
	require.Equal(t, 1, steps[0].TotalCount)

	require.Len(t, sink.byType(MessageComplete), 1)
	// without a page driver the dom steps never run
	require.Empty(t, sink.byType(MessageCruiseBatch))
}

func TestRunHealsBeforeCompleting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"offers": []any{}})
	}))
	defer server.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	session := NewSession()
	sink := &stepTraceSink{session: session}
	var healedAt Step
	service := &Service{
		Sink:        sink,
		Session:     session,
		SessionBlob: sessionBlobFixture(t, now.Add(time.Hour)),
		PageHost:    "www.royalcaribbean.com",
		NewClient: func(opts clubroyale.ClientOptions) (*clubroyale.Client, error) {
			opts.Auth.BaseUrl = server.URL
			return clubroyale.NewClient(opts)
		},
		Now:  func() time.Time { return now },
		Heal: func(ctx context.Context) error { healedAt = session.Step(); return nil },
	}

	err := service.Run(context.Background())
	require.NoError(t, err)

	// the session passes through healing on its way to completed
	require.Equal(t, StepHealing, healedAt)
	require.Contains(t, sink.steps, StepHealing)
	require.Equal(t, StepCompleted, session.Step())

	for i, msg := range sink.msgs {
		if msg.Type != MessageComplete {
			continue
		}
		require.Contains(t, sink.steps[:i], StepHealing,
			"healing must be observable before the terminal message")
	}
}

func TestRunHealFailureFailsSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"offers": []any{}})
	}))
	defer server.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sink := &recordSink{}
	service := &Service{
		Sink:        sink,
		Session:     NewSession(),
		SessionBlob: sessionBlobFixture(t, now.Add(time.Hour)),
		PageHost:    "www.royalcaribbean.com",
		NewClient: func(opts clubroyale.ClientOptions) (*clubroyale.Client, error) {
			opts.Auth.BaseUrl = server.URL
			return clubroyale.NewClient(opts)
		},
		Now:  func() time.Time { return now },
		Heal: func(ctx context.Context) error { return fmt.Errorf("cross-reference index corrupt") },
	}

	err := service.Run(context.Background())
	require.Error(t, err)

	require.Equal(t, StepFailed, service.Session.Step())
	failedStep, sessionErr := service.Session.Err()
	require.Equal(t, StepHealing, failedStep)
	require.ErrorContains(t, sessionErr, "cross-reference index corrupt")

	errs := sink.byType(MessageError)
	require.Len(t, errs, 1)
	require.Equal(t, StepHealing, errs[0].Step)
	require.Empty(t, sink.byType(MessageComplete))
}

func TestRunStopsBetweenSteps(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"offers": []any{}})
	}))
	defer server.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sink := &recordSink{}
	session := NewSession()
	service := &Service{
		Sink:        sink,
		Session:     session,
		SessionBlob: sessionBlobFixture(t, now.Add(time.Hour)),
		PageHost:    "www.royalcaribbean.com",
		Page:        &fakePage{},
		NewClient: func(opts clubroyale.ClientOptions) (*clubroyale.Client, error) {
			opts.Auth.BaseUrl = server.URL
			return clubroyale.NewClient(opts)
		},
		Now: func() time.Time { return now },
	}

	// stop lands before the run starts, authentication still
	// completes, the first post-step checkpoint exits
	session.Stop()
	err := service.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, StepStopped, session.Step())
	terminal := sink.byType(MessageComplete)
	require.Len(t, terminal, 1)
	require.Equal(t, StepStopped, terminal[0].Step)
	// the offers step was never reached
	require.Empty(t, sink.byType(MessageStepComplete))
}

func TestRunAbortKeepsDeliveredBatches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"offers": []map[string]any{
				{
					"offerCode": "OC123A",
					"sailings": []map[string]any{
						{"shipCode": "OA", "sailDate": "2026-03-10", "itineraryCode": "OA7"},
					},
				},
			},
		})
	}))
	defer server.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sink := &recordSink{}
	service := &Service{
		Sink:        sink,
		Session:     NewSession(),
		SessionBlob: sessionBlobFixture(t, now.Add(time.Hour)),
		PageHost:    "www.royalcaribbean.com",
		Page:        &failingPage{},
		NewClient: func(opts clubroyale.ClientOptions) (*clubroyale.Client, error) {
			opts.Auth.BaseUrl = server.URL
			return clubroyale.NewClient(opts)
		},
		Now: func() time.Time { return now },
	}

	err := service.Run(context.Background())
	require.Error(t, err)

	failedStep, _ := service.Session.Err()
	require.Equal(t, StepScrapingBookings, failedStep)

	// offers streamed before the failure stay delivered
	require.Len(t, sink.byType(MessageOfferBatch), 1)
	require.Len(t, sink.byType(MessageError), 1)
	require.Empty(t, sink.byType(MessageComplete))
}

// failingPage refuses to navigate, simulating a crashed browser.
type failingPage struct{}

func (failingPage) Navigate(context.Context, string) error  { return fmt.Errorf("browser gone") }
func (failingPage) ScrollToBottom(context.Context) error    { return fmt.Errorf("browser gone") }
func (failingPage) Height(context.Context) (int, error)     { return 0, fmt.Errorf("browser gone") }
func (failingPage) Content(context.Context) (string, error) { return "", fmt.Errorf("browser gone") }
