// Package mentions finds candidate entity mentions in article text and grades
// how prominent each mention is.
package mentions

import (
	"strings"
	"unicode/utf8"

	"horse.fit/atlas/internal/catalog"
	"horse.fit/atlas/internal/domain"
	"horse.fit/atlas/internal/textnorm"
)

// DefaultContextWindow is the number of characters kept around a span.
const DefaultContextWindow = 200

// Span is an accepted alias occurrence. Start and End are character offsets
// into the NFC form of the scanned text.
type Span struct {
	Surface    string
	Normalized string
	Start      int
	End        int
	Context    string
}

// Extract scans text with the matcher and returns the spans that pass the
// surface filter, in text order.
func Extract(text string, matcher *catalog.Matcher) []Span {
	return ExtractWithWindow(text, matcher, DefaultContextWindow)
}

// ExtractWithWindow is Extract with an explicit context window size.
func ExtractWithWindow(text string, matcher *catalog.Matcher, window int) []Span {
	if strings.TrimSpace(text) == "" || matcher == nil {
		return nil
	}
	if window < 0 {
		window = 0
	}

	composed := textnorm.NFC(text)
	matches := matcher.FindAll(composed)
	if len(matches) == 0 {
		return nil
	}

	runes := []rune(composed)
	spans := make([]Span, 0, len(matches))
	byteCursor, runeCursor := 0, 0
	for _, match := range matches {
		if ShouldSkipSurface(match.Surface) {
			continue
		}
		runeCursor += utf8.RuneCountInString(composed[byteCursor:match.Start])
		byteCursor = match.Start
		start := runeCursor
		end := start + utf8.RuneCountInString(match.Surface)

		spans = append(spans, Span{
			Surface:    match.Surface,
			Normalized: textnorm.Normalize(match.Surface),
			Start:      start,
			End:        end,
			Context:    contextWindow(runes, start, end, window),
		})
	}
	return spans
}

// ShouldSkipSurface rejects surfaces that are too short, purely numeric or
// generic stoplist words.
func ShouldSkipSurface(surface string) bool {
	trimmed := strings.TrimSpace(surface)
	if utf8.RuneCountInString(trimmed) <= 2 {
		return true
	}
	normalized := textnorm.Normalize(trimmed)
	if normalized == "" {
		return true
	}
	if isNumeric(normalized) {
		return true
	}
	_, stop := stoplist[strings.ToUpper(normalized)]
	return stop
}

// FromSpans turns spans into mention rows for an article, one per distinct
// entity kind among the span's candidates. Spans without candidates are
// returned separately so callers can count them.
func FromSpans(articleID int64, spans []Span, c *catalog.Catalog) (mentions []domain.Mention, unmatched []Span) {
	for _, span := range spans {
		candidates := c.Lookup(span.Normalized)
		if len(candidates) == 0 {
			unmatched = append(unmatched, span)
			continue
		}
		seen := make(map[domain.EntityType]struct{}, 2)
		for _, candidate := range candidates {
			if _, ok := seen[candidate.EntityType]; ok {
				continue
			}
			seen[candidate.EntityType] = struct{}{}
			mentions = append(mentions, domain.Mention{
				ArticleID:         articleID,
				EntityKind:        candidate.EntityType,
				Surface:           span.Surface,
				NormalizedSurface: span.Normalized,
				SpanStart:         span.Start,
				SpanEnd:           span.End,
				ContextWindow:     span.Context,
			})
		}
	}
	return mentions, unmatched
}

func contextWindow(runes []rune, start, end, window int) string {
	half := window / 2
	from := max(start-half, 0)
	to := min(end+half, len(runes))
	if from >= to {
		return ""
	}
	return string(runes[from:to])
}

func isNumeric(normalized string) bool {
	digits := 0
	for _, r := range normalized {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ':
		default:
			return false
		}
	}
	return digits > 0
}
