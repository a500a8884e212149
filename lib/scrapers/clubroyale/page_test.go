package clubroyale

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func init() {
	// fixture pages settle instantly
	scrollPollDelay = time.Millisecond
}

// fixturePage serves canned html per path and replays a scripted
// sequence of document heights, emulating a scroll-loaded list.
type fixturePage struct {
	content map[string]string
	heights []int

	path        string
	scrolls     int
	heightCalls int
}

func (p *fixturePage) Navigate(_ context.Context, path string) error {
	p.path = path
	return nil
}

func (p *fixturePage) ScrollToBottom(_ context.Context) error {
	p.scrolls++
	return nil
}

func (p *fixturePage) Height(_ context.Context) (int, error) {
	i := p.heightCalls
	p.heightCalls++
	if len(p.heights) == 0 {
		return 0, nil
	}
	if i >= len(p.heights) {
		i = len(p.heights) - 1
	}
	return p.heights[i], nil
}

func (p *fixturePage) Content(_ context.Context) (string, error) {
	return p.content[p.path], nil
}

func TestScrollUntilSettled(t *testing.T) {
	page := &fixturePage{heights: []int{1000, 2000, 3000, 3000, 3000}}
	err := scrollUntilSettled(context.Background(), page)
	require.NoError(t, err)
	// 3 growth checks, then 3 consecutive stable ones
	require.Equal(t, 6, page.scrolls)
}

func TestScrollUntilSettledNeverSettles(t *testing.T) {
	heights := make([]int, scrollMaxAttempts)
	for i := range heights {
		heights[i] = (i + 1) * 500
	}
	page := &fixturePage{heights: heights}
	// an endlessly growing list is capped, not fatal
	err := scrollUntilSettled(context.Background(), page)
	require.NoError(t, err)
	require.Equal(t, scrollMaxAttempts, page.scrolls)
}
