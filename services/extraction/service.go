package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"cruiseledger-backend/lib/scrapers/clubroyale"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("services/extraction")

type Step string

const (
	StepIdle              Step = "idle"
	StepAuthenticating    Step = "authenticating"
	StepFetchingOffers    Step = "fetching_offers"
	StepScrapingBookings  Step = "scraping_bookings"
	StepScrapingHolds     Step = "scraping_holds"
	StepExtractingLoyalty Step = "extracting_loyalty"
	StepHealing           Step = "healing"
	StepCompleted         Step = "completed"
	StepFailed            Step = "failed"
	StepStopped           Step = "stopped"
)

// Session tracks one extraction run through the step state machine.
type Session struct {
	mu         sync.Mutex
	step       Step
	failedStep Step
	err        error

	Offers   int
	Bookings int
	Holds    int

	stopped atomic.Bool
}

func NewSession() *Session {
	return &Session{step: StepIdle}
}

func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

func (s *Session) Err() (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failedStep, s.err
}

func (s *Session) setStep(step Step) {
	s.mu.Lock()
	s.step = step
	s.mu.Unlock()
}

func (s *Session) fail(step Step, err error) {
	s.mu.Lock()
	s.step = StepFailed
	s.failedStep = step
	s.err = err
	s.mu.Unlock()
}

// Stop requests cooperative cancellation. The in-flight step finishes
// (an in-flight network call is allowed to complete), only the next
// step is skipped.
func (s *Session) Stop() {
	s.stopped.Store(true)
}

type Service struct {
	Sink    Sink
	Session *Session

	// raw material for the run
	SessionBlob string
	PageHost    string

	// Page is the rendered member page for the DOM steps. nil skips
	// those steps with a warning, api extraction still runs.
	Page clubroyale.Page

	// NewClient is swappable for tests
	NewClient func(opts clubroyale.ClientOptions) (*clubroyale.Client, error)

	// Now is swappable for tests
	Now func() time.Time

	// Heal, when set, runs the healing phase between the last
	// extraction step and completion. A heal error fails the run at
	// the healing step, everything already streamed stays delivered.
	Heal func(ctx context.Context) error

	interceptor *clubroyale.Interceptor
}

// Run drives the full extraction state machine, streaming batches,
// progress and logs through the sink. A fatal step error
// short-circuits the remaining steps but everything already streamed
// stays delivered.
func (s *Service) Run(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	if s.Session == nil {
		s.Session = NewSession()
	}

	client, err := s.authenticate(ctx)
	if err != nil {
		return s.abort(StepAuthenticating, err)
	}

	if s.stopRequested(StepAuthenticating) {
		return nil
	}

	err = s.fetchOffers(ctx, client)
	if err != nil {
		return s.abort(StepFetchingOffers, err)
	}

	if s.stopRequested(StepFetchingOffers) {
		return nil
	}

	if s.Page == nil {
		s.log(slog.LevelWarn, "no page driver configured, skipping dom steps")
	} else {
		err = s.scrapeBookings(ctx)
		if err != nil {
			return s.abort(StepScrapingBookings, err)
		}
		if s.stopRequested(StepScrapingBookings) {
			return nil
		}

		err = s.scrapeHolds(ctx)
		if err != nil {
			return s.abort(StepScrapingHolds, err)
		}
		if s.stopRequested(StepScrapingHolds) {
			return nil
		}

		err = s.extractLoyalty(ctx)
		if err != nil {
			return s.abort(StepExtractingLoyalty, err)
		}
	}

	s.emitVoyageEnrichment(ctx)

	if s.Heal != nil {
		s.Session.setStep(StepHealing)
		s.log(slog.LevelInfo, "healing extracted records")
		err = s.Heal(ctx)
		if err != nil {
			return s.abort(StepHealing, err)
		}
	}

	s.Session.setStep(StepCompleted)
	s.Sink.Send(Message{Type: MessageComplete})
	slog.InfoContext(
		ctx, "extraction completed",
		"offers", s.Session.Offers,
		"bookings", s.Session.Bookings,
		"holds", s.Session.Holds,
	)
	return nil
}

func (s *Service) authenticate(ctx context.Context) (*clubroyale.Client, error) {
	s.Session.setStep(StepAuthenticating)
	s.log(slog.LevelInfo, "validating session")

	auth, err := clubroyale.ExtractAuthContext(s.SessionBlob, s.PageHost, s.now())
	if err != nil {
		return nil, err
	}

	interceptor := clubroyale.NewInterceptor(apiHostOf(auth.BaseUrl))
	interceptor.OnCapture = func(payload clubroyale.CapturedPayload) {
		s.Sink.Send(Message{
			Type:        MessageNetworkCapture,
			Endpoint:    string(payload.Endpoint),
			RecordCount: payload.RecordCount,
		})
	}
	interceptor.OnHeaders = func(headers clubroyale.CapturedHeaders) {
		s.Sink.Send(Message{
			Type:    MessageNetworkCaptureHeaders,
			Headers: &headers,
		})
	}

	newClient := s.NewClient
	if newClient == nil {
		newClient = clubroyale.NewClient
	}
	client, err := newClient(clubroyale.ClientOptions{
		Auth:        auth,
		Interceptor: interceptor,
	})
	if err != nil {
		return nil, err
	}
	s.interceptor = interceptor
	return client, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func apiHostOf(baseUrl string) string {
	link, err := url.Parse(baseUrl)
	if err != nil {
		return ""
	}
	return link.Hostname()
}

func (s *Service) fetchOffers(ctx context.Context, client *clubroyale.Client) error {
	s.Session.setStep(StepFetchingOffers)
	s.log(slog.LevelInfo, "fetching casino offers")

	result, err := client.FetchOffers(ctx, clubroyale.OffersOptions{
		OnProgress: s.progress(StepFetchingOffers),
		OnOffer: func(offer clubroyale.OfferRecord) {
			o := offer
			s.Sink.Send(Message{Type: MessageOfferBatch, Step: StepFetchingOffers, Offer: &o})
		},
	})
	if err != nil {
		return err
	}

	s.Session.Offers = len(result.Offers)
	s.Sink.Send(Message{
		Type:       MessageStepComplete,
		Step:       StepFetchingOffers,
		TotalCount: len(result.Offers),
	})
	return nil
}

func (s *Service) scrapeBookings(ctx context.Context) error {
	s.Session.setStep(StepScrapingBookings)
	s.log(slog.LevelInfo, "scraping bookings")

	result, err := clubroyale.ScrapeBookings(ctx, s.Page, clubroyale.DomStepOptions{
		OnProgress: s.progress(StepScrapingBookings),
	})
	if err != nil {
		return err
	}

	for i := range result.Bookings {
		s.Sink.Send(Message{
			Type:    MessageCruiseBatch,
			Step:    StepScrapingBookings,
			Booking: &result.Bookings[i],
		})
	}
	s.Session.Bookings = len(result.Bookings)
	s.Sink.Send(Message{
		Type:       MessageStepComplete,
		Step:       StepScrapingBookings,
		TotalCount: len(result.Bookings),
		Warning:    result.CountMismatch,
	})
	return nil
}

func (s *Service) scrapeHolds(ctx context.Context) error {
	s.Session.setStep(StepScrapingHolds)
	s.log(slog.LevelInfo, "scraping courtesy holds")

	result, err := clubroyale.ScrapeHolds(ctx, s.Page, clubroyale.DomStepOptions{
		OnProgress: s.progress(StepScrapingHolds),
	})
	if err != nil {
		return err
	}

	for i := range result.Holds {
		s.Sink.Send(Message{
			Type: MessageCruiseBatch,
			Step: StepScrapingHolds,
			Hold: &result.Holds[i],
		})
	}
	s.Session.Holds = len(result.Holds)
	s.Sink.Send(Message{
		Type:       MessageStepComplete,
		Step:       StepScrapingHolds,
		TotalCount: len(result.Holds),
		Warning:    result.CountMismatch,
	})
	return nil
}

func (s *Service) extractLoyalty(ctx context.Context) error {
	s.Session.setStep(StepExtractingLoyalty)
	s.log(slog.LevelInfo, "extracting loyalty points")

	snapshot, err := clubroyale.ExtractLoyalty(ctx, s.Page)
	if err != nil {
		return err
	}

	s.Sink.Send(Message{
		Type:    MessageLoyalty,
		Step:    StepExtractingLoyalty,
		Loyalty: &snapshot,
	})
	s.Sink.Send(Message{
		Type:       MessageStepComplete,
		Step:       StepExtractingLoyalty,
		TotalCount: 1,
	})
	return nil
}

// emitVoyageEnrichment forwards any passively captured voyage detail
// as cruise batches, so itinerary names and night counts the steps
// never saw still land on the canonical records.
func (s *Service) emitVoyageEnrichment(ctx context.Context) {
	if s.interceptor == nil {
		return
	}
	payload, ok := s.interceptor.Payload(clubroyale.EndpointVoyage)
	if !ok {
		return
	}

	sailings, err := clubroyale.DecodeSailingPayload(payload.Body)
	if err != nil {
		slog.WarnContext(ctx, "malformed voyage enrichment payload", "err", err)
		return
	}
	for i := range sailings {
		s.Sink.Send(Message{
			Type:    MessageCruiseBatch,
			Step:    StepFetchingOffers,
			Sailing: &sailings[i],
		})
	}
}

// abort marks the session failed and emits the terminal error.
// Everything streamed before the failure stays delivered.
func (s *Service) abort(step Step, err error) error {
	s.Session.fail(step, err)
	s.Sink.Send(Message{
		Type:  MessageError,
		Step:  step,
		Error: err.Error(),
	})
	slog.Error("extraction failed", "step", step, "err", err)
	return fmt.Errorf("step %s: %w", step, err)
}

func (s *Service) stopRequested(after Step) bool {
	if !s.Session.stopped.Load() {
		return false
	}
	s.Session.setStep(StepStopped)
	s.log(slog.LevelInfo, fmt.Sprintf("extraction stopped after %s", after))
	s.Sink.Send(Message{Type: MessageComplete, Step: StepStopped})
	return true
}

func (s *Service) log(level slog.Level, text string) {
	slog.Log(context.Background(), level, text)
	s.Sink.Send(Message{Type: MessageLog, Level: level, Text: text})
}

func (s *Service) progress(step Step) func(current, total int) {
	return func(current, total int) {
		s.Sink.Send(Message{
			Type:    MessageProgress,
			Step:    step,
			Current: current,
			Total:   total,
		})
	}
}
