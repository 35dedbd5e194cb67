// Package textsim scores how alike two place or commodity names are.
package textsim

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Normalize lowercases s, turns punctuation into spaces and collapses runs
// of whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Similarity is 1 - editDistance/maxLen over the normalized forms, in
// [0, 1]. Distances are counted in runes.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" && nb == "" {
		return 1
	}
	maxLen := max(len([]rune(na)), len([]rune(nb)))
	if maxLen == 0 {
		return 0
	}
	return 1 - float64(levenshtein.ComputeDistance(na, nb))/float64(maxLen)
}

// Trigrams returns the pg_trgm style trigram set of s: each word is padded
// with two leading spaces and one trailing space.
func Trigrams(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(Normalize(s)) {
		padded := []rune("  " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			set[string(padded[i:i+3])] = struct{}{}
		}
	}
	return set
}

// TrigramSimilarity mirrors pg_trgm's similarity(): shared trigrams over the
// union of both sets.
func TrigramSimilarity(a, b string) float64 {
	ta, tb := Trigrams(a), Trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

// SharesTrigram reports whether a and b have at least one trigram in common.
func SharesTrigram(a, b string) bool {
	ta := Trigrams(a)
	for t := range Trigrams(b) {
		if _, ok := ta[t]; ok {
			return true
		}
	}
	return false
}

// TitleCase upper-cases the first letter of every word and lowercases the
// rest, keeping parentheses and slashes as word breaks.
func TitleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	start := true
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsLetter(r):
			if start {
				b.WriteRune(unicode.ToUpper(r))
			} else {
				b.WriteRune(unicode.ToLower(r))
			}
			start = false
		default:
			b.WriteRune(r)
			start = !unicode.IsDigit(r)
		}
	}
	return b.String()
}
