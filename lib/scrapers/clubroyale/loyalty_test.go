package clubroyale

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// the page renders the current balance as a styled headline and the
// points-to-next-tier counter as plain text. the counter must never
// win, even when it appears first in the document.
const loyaltyFixture = `
<html><body>
<div class="progress">
	<p>Only <span>140</span> points to your next tier</p>
</div>
<div class="balance">
	<div><span style="font-size: 32px; font-weight: bold">503</span></div>
</div>
<div class="tier">
	<p>Your tier</p>
	<div><span>Prime</span></div>
</div>
<footer><span>2026</span></footer>
</body></html>`

func TestExtractLoyalty(t *testing.T) {
	page := &fixturePage{
		content: map[string]string{loyaltyPath: loyaltyFixture},
	}

	snapshot, err := ExtractLoyalty(context.Background(), page)
	require.NoError(t, err)
	require.Equal(t, loyaltyPath, page.path)
	require.Equal(t, 503, snapshot.Points)
	require.Equal(t, "Prime", snapshot.Tier)
}

func TestExtractLoyaltyEmptyPage(t *testing.T) {
	page := &fixturePage{
		content: map[string]string{loyaltyPath: `<html><body><p>Loading</p></body></html>`},
	}

	snapshot, err := ExtractLoyalty(context.Background(), page)
	require.NoError(t, err)
	require.Equal(t, 0, snapshot.Points)
	require.Equal(t, "", snapshot.Tier)
}

func TestResolvePointsOverridesSmallHeadline(t *testing.T) {
	// a landmark-adjacent small number loses to a large styled
	// candidate elsewhere on the page
	doc := docFromString(t, `
		<div class="summary">
			<p>Nights earned</p>
			<div><span>48</span></div>
		</div>
		<div class="balance">
			<div><span style="font-size: 30px">1250</span></div>
		</div>`)

	require.Equal(t, 1250, resolvePoints(context.Background(), doc))
}

func TestResolvePointsFloor(t *testing.T) {
	// a sub-floor winner yields to any candidate at or above the floor
	doc := docFromString(t, `
		<div class="summary">
			<p>Nights earned</p>
			<div><span>45</span></div>
		</div>
		<div class="other">
			<div><span>120</span></div>
		</div>`)

	require.Equal(t, 120, resolvePoints(context.Background(), doc))
}

func TestResolvePointsIgnoresYears(t *testing.T) {
	doc := docFromString(t, `
		<div><div><span>2026</span></div></div>
		<div><div><span style="font-size: 32px">503</span></div></div>`)

	require.Equal(t, 503, resolvePoints(context.Background(), doc))
}

func TestResolvePointsIgnoresExcludedSections(t *testing.T) {
	doc := docFromString(t, `
		<div class="progress">
			<p>You are <span>950</span> points away from Signature</p>
		</div>
		<div class="balance">
			<div><span style="font-size: 32px">503</span></div>
		</div>`)

	require.Equal(t, 503, resolvePoints(context.Background(), doc))
}
