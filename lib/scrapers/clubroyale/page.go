package clubroyale

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Page abstracts the rendered member page the DOM steps scrape.
// The production implementation drives a real browser, tests use a
// fixture-backed page.
type Page interface {
	// Navigate loads the given member-site path
	Navigate(ctx context.Context, path string) error
	// ScrollToBottom scrolls the window to the document end,
	// triggering any lazy list loading
	ScrollToBottom(ctx context.Context) error
	// Height returns the current document scroll height
	Height(ctx context.Context) (int, error)
	// Content returns the current page html
	Content(ctx context.Context) (string, error)
}

const (
	scrollStableChecks = 3
	scrollMaxAttempts  = 12
)

// var so tests against fixture pages don't wait on real poll delays
var scrollPollDelay = time.Millisecond * 700

// scrollUntilSettled repeatedly scrolls the page and waits for the
// document height to hold steady across three consecutive checks (or
// a max attempt count), which is the only reliable signal that the
// open-ended scroll-loaded list has finished growing.
func scrollUntilSettled(ctx context.Context, page Page) error {
	lastHeight := -1
	stable := 0

	for attempt := 0; attempt < scrollMaxAttempts; attempt++ {
		err := page.ScrollToBottom(ctx)
		if err != nil {
			return err
		}

		select {
		case <-time.After(scrollPollDelay):
		case <-ctx.Done():
			return ctx.Err()
		}

		height, err := page.Height(ctx)
		if err != nil {
			return err
		}
		if height == lastHeight {
			stable++
			if stable >= scrollStableChecks {
				return nil
			}
			continue
		}
		stable = 0
		lastHeight = height
	}

	slog.WarnContext(ctx, "list never settled, scraping what loaded", "attempts", scrollMaxAttempts)
	return nil
}

func pageDocument(ctx context.Context, page Page) (*goquery.Document, error) {
	content, err := page.Content(ctx)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewBufferString(content))
}
