package clubroyale

import (
	"context"
	"net/url"

	"github.com/chromedp/chromedp"
)

// ChromePage drives a live browser tab over the member site. The tab
// is expected to already carry the member's authenticated session.
type ChromePage struct {
	BaseUrl string
	Ctx     context.Context
}

func NewChromePage(browserCtx context.Context, baseUrl string) *ChromePage {
	return &ChromePage{BaseUrl: baseUrl, Ctx: browserCtx}
}

func (p *ChromePage) Navigate(ctx context.Context, path string) error {
	link, err := url.JoinPath(p.BaseUrl, path)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.Navigate(link), chromedp.WaitReady("body"))
}

func (p *ChromePage) ScrollToBottom(ctx context.Context) error {
	return p.run(ctx, chromedp.Evaluate(
		`window.scrollTo(0, document.body.scrollHeight)`, nil,
	))
}

func (p *ChromePage) Height(ctx context.Context) (int, error) {
	var height int
	err := p.run(ctx, chromedp.Evaluate(`document.body.scrollHeight`, &height))
	return height, err
}

func (p *ChromePage) Content(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html))
	return html, err
}

func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	tabCtx, cancel := context.WithCancel(p.Ctx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-tabCtx.Done():
		}
	}()
	return chromedp.Run(tabCtx, actions...)
}
