/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"strings"
	"unicode"
)

// titleMatches reports whether a free-text guess is close enough to the
// canonical song title.
func titleMatches(guess, title string) bool {
	return fuzzyEqual(normalizeGuess(guess), normalizeGuess(title))
}

// artistMatches reports whether a guess is close enough to any of the
// song's artists.
func artistMatches(guess string, artists []string) bool {
	g := normalizeGuess(guess)
	for _, a := range artists {
		if fuzzyEqual(g, normalizeGuess(a)) {
			return true
		}
	}
	return false
}

// normalizeGuess lowercases, strips parentheticals and feat. clauses,
// drops punctuation, and collapses whitespace.
func normalizeGuess(s string) string {
	s = strings.ToLower(s)

	if idx := strings.IndexAny(s, "(["); idx > 0 {
		s = s[:idx]
	}
	for _, sep := range []string{" feat. ", " feat ", " ft. ", " ft ", " featuring "} {
		if idx := strings.Index(s, sep); idx > 0 {
			s = s[:idx]
		}
	}

	var b strings.Builder
	lastSpace := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}

	return strings.TrimSpace(b.String())
}

// fuzzyEqual accepts exact matches and small typos, scaling the allowed
// edit distance with the canonical length.
func fuzzyEqual(guess, canonical string) bool {
	if guess == "" || canonical == "" {
		return false
	}
	if guess == canonical {
		return true
	}

	allowed := len(canonical) / 5
	if allowed < 1 {
		allowed = 1
	}
	if allowed > 3 {
		allowed = 3
	}

	return levenshtein(guess, canonical) <= allowed
}

// levenshtein computes edit distance over runes with two rolling rows.
func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}
