// Package textnorm folds free text into the canonical form used for every
// alias and surface comparison.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases text, strips diacritics and collapses every run of
// characters outside [a-z0-9] into a single space.
func Normalize(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	folded := stripMarks(strings.ToLower(strings.TrimSpace(text)))

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		if isASCIIAlnum(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// Tokenize returns the alphanumeric runs of the normalized text.
func Tokenize(text string) []string {
	normalized := Normalize(text)
	if normalized == "" {
		return []string{}
	}
	return strings.Fields(normalized)
}

// NFC returns the canonical composition of text. Matching runs on NFC text so
// that decomposed input and composed aliases agree.
func NFC(text string) string {
	return norm.NFC.String(text)
}

// LeadWords returns the first n tokens of the normalized text joined by spaces.
func LeadWords(text string, n int) string {
	if n <= 0 {
		return ""
	}
	tokens := Tokenize(text)
	if len(tokens) > n {
		tokens = tokens[:n]
	}
	return strings.Join(tokens, " ")
}

// ClipWords keeps at most n whitespace separated words of the raw text.
func ClipWords(text string, n int) string {
	words := strings.Fields(text)
	if n <= 0 || len(words) == 0 {
		return ""
	}
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// ContainsPhrase reports whether the normalized phrase occurs in the
// normalized text on token boundaries.
func ContainsPhrase(normalizedText, normalizedPhrase string) bool {
	if normalizedPhrase == "" || normalizedText == "" {
		return false
	}
	return strings.Contains(" "+normalizedText+" ", " "+normalizedPhrase+" ")
}

func stripMarks(text string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return out
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
