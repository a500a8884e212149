package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemoveNonPrintable(t *testing.T) {
	require.Equal(t, "Oasis of\nthe Seas", RemoveNonPrintable("Oasis​ of\n‍the Seas"))
	require.Equal(t, "503", RemoveNonPrintable("50\x003"))
}

func TestParseFontSize(t *testing.T) {
	require.Equal(t, float64(32), ParseFontSize("font-size: 32px; color: red"))
	require.Equal(t, float64(32), ParseFontSize("font-size: 24pt"))
	require.Equal(t, float64(24), ParseFontSize("font-size: 1.5rem"))
	require.Equal(t, float64(0), ParseFontSize("color: red"))
}

func TestIsBold(t *testing.T) {
	require.True(t, IsBold("font-weight: bold"))
	require.True(t, IsBold("font-weight: 700"))
	require.False(t, IsBold("font-weight: 400"))
	require.False(t, IsBold("color: red"))
}
