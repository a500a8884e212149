package clubroyale

import (
	"regexp"
	"sort"

	"cruiseledger-backend/lib/htmlutil"
	"cruiseledger-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// the member site renders cards with no stable classes or ids, so
// candidates are found by what their text contains rather than by
// selector.

type cardSearch struct {
	// every predicate must match the card's text
	predicates []*regexp.Regexp
	// at least one of these must match, when non-empty
	anyOf []*regexp.Regexp
	// candidates with more text than this are containers, not cards
	maxTextLen int
}

type cardCandidate struct {
	sel  *goquery.Selection
	text string
}

func findCards(doc *goquery.Document, search cardSearch) []cardCandidate {
	var candidates []cardCandidate
	doc.Find("div, li, article, section").Each(func(_ int, sel *goquery.Selection) {
		text := textutil.CollapseWhitespace(htmlutil.RemoveNonPrintable(sel.Text()))
		if text == "" || len(text) > search.maxTextLen {
			return
		}
		for _, p := range search.predicates {
			if !p.MatchString(text) {
				return
			}
		}
		if len(search.anyOf) > 0 {
			matched := false
			for _, p := range search.anyOf {
				if p.MatchString(text) {
					matched = true
					break
				}
			}
			if !matched {
				return
			}
		}
		candidates = append(candidates, cardCandidate{sel: sel, text: text})
	})

	candidates = dropContainers(candidates)

	// smaller matches are the more specific ones, prefer them first
	sort.SliceStable(candidates, func(a, b int) bool {
		return len(candidates[a].text) < len(candidates[b].text)
	})
	return candidates
}

// dropContainers removes any candidate that contains another
// candidate in the document tree, keeping only the innermost matches.
func dropContainers(candidates []cardCandidate) []cardCandidate {
	var out []cardCandidate
	for i, outer := range candidates {
		containsAnother := false
		for j, inner := range candidates {
			if i == j {
				continue
			}
			if containsNode(outer.sel, inner.sel) {
				containsAnother = true
				break
			}
		}
		if !containsAnother {
			out = append(out, outer)
		}
	}
	return out
}

func containsNode(outer, inner *goquery.Selection) bool {
	if len(outer.Nodes) == 0 || len(inner.Nodes) == 0 {
		return false
	}
	var target *html.Node = inner.Nodes[0]
	for parent := target.Parent; parent != nil; parent = parent.Parent {
		if parent == outer.Nodes[0] {
			return true
		}
	}
	return false
}

// firstMatch runs each pattern in order against the text and returns
// the first capture group of the first pattern that hits.
func firstMatch(text string, patterns []*regexp.Regexp) string {
	for _, p := range patterns {
		groups := p.FindStringSubmatch(text)
		if len(groups) >= 2 {
			return textutil.CollapseWhitespace(groups[1])
		}
	}
	return ""
}
