package htmlutil

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// RemoveNonPrintable strips the zero-width and control characters
// scraped pages carry, which break the text regexes downstream.
// Ordinary whitespace is preserved for later collapsing.
func RemoveNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

var fontSizeRegex = regexp.MustCompile(`font-size:\s*([0-9.]+)(px|pt|rem|em)`)

// ParseFontSize extracts a font size in pixels from an inline style
// string. pt/rem/em units are converted with the usual browser
// defaults. Returns 0 when the style declares no size.
func ParseFontSize(style string) float64 {
	groups := fontSizeRegex.FindStringSubmatch(style)
	if len(groups) < 3 {
		return 0
	}
	value, err := strconv.ParseFloat(groups[1], 64)
	if err != nil {
		return 0
	}
	switch groups[2] {
	case "pt":
		return value * 96 / 72
	case "rem", "em":
		return value * 16
	}
	return value
}

var fontWeightRegex = regexp.MustCompile(`font-weight:\s*([a-z0-9]+)`)

// IsBold reports whether an inline style declares a bold font weight
// (the keyword or a numeric weight of 600 and up).
func IsBold(style string) bool {
	groups := fontWeightRegex.FindStringSubmatch(style)
	if len(groups) < 2 {
		return false
	}
	if groups[1] == "bold" || groups[1] == "bolder" {
		return true
	}
	weight, err := strconv.Atoi(groups[1])
	if err != nil {
		return false
	}
	return weight >= 600
}
