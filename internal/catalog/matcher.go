package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"horse.fit/atlas/internal/textnorm"
)

// Match is one alias occurrence. Start and End are byte offsets into the text
// passed to FindAll.
type Match struct {
	Start   int
	End     int
	Surface string
}

// Matcher finds whole-word alias occurrences with a single compiled
// alternation, longest aliases first. The anchored per-alias expressions
// resolve starts where the longest candidate is glued to a word.
type Matcher struct {
	re       *regexp.Regexp
	anchored []*regexp.Regexp
	patterns int
}

// NewMatcher compiles the alternation. Aliases shorter than MinAliasLength are
// skipped and duplicates are folded case-insensitively.
func NewMatcher(rawAliases []string) (*Matcher, error) {
	seen := make(map[string]struct{}, len(rawAliases))
	unique := make([]string, 0, len(rawAliases))
	for _, raw := range rawAliases {
		alias := textnorm.NFC(strings.TrimSpace(raw))
		if aliasLength(alias) < MinAliasLength {
			continue
		}
		folded := strings.ToLower(alias)
		if _, ok := seen[folded]; ok {
			continue
		}
		seen[folded] = struct{}{}
		unique = append(unique, alias)
	}
	if len(unique) == 0 {
		return &Matcher{}, nil
	}

	sort.Slice(unique, func(i, j int) bool {
		li, lj := aliasLength(unique[i]), aliasLength(unique[j])
		if li != lj {
			return li > lj
		}
		return unique[i] < unique[j]
	})

	quoted := make([]string, len(unique))
	anchored := make([]*regexp.Regexp, len(unique))
	for i, alias := range unique {
		quoted[i] = regexp.QuoteMeta(alias)
		one, err := regexp.Compile(`^(?i:` + quoted[i] + `)`)
		if err != nil {
			return nil, fmt.Errorf("compile alias %q: %w", alias, err)
		}
		anchored[i] = one
	}
	re, err := regexp.Compile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
	if err != nil {
		return nil, fmt.Errorf("compile alias matcher: %w", err)
	}
	return &Matcher{re: re, anchored: anchored, patterns: len(unique)}, nil
}

// Patterns is the number of aliases in the alternation.
func (m *Matcher) Patterns() int {
	if m == nil {
		return 0
	}
	return m.patterns
}

// FindAll scans left to right for non-overlapping whole-word matches. When the
// longest alias at a start is glued to a neighbouring letter or digit, shorter
// aliases at the same start are tried before the scan resumes one character
// later.
func (m *Matcher) FindAll(text string) []Match {
	if m == nil || m.re == nil || text == "" {
		return nil
	}

	var matches []Match
	pos := 0
	for pos < len(text) {
		loc := m.re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if end <= start {
			pos = start + 1
			continue
		}
		if !isWordBoundary(text, start, end) {
			end = m.shorterAt(text, start, end)
		}
		if end > start {
			matches = append(matches, Match{Start: start, End: end, Surface: text[start:end]})
			pos = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + size
	}
	return matches
}

// shorterAt returns the end of the longest whole-word alias at start that is
// shorter than rejected, or start when none fits.
func (m *Matcher) shorterAt(text string, start, rejected int) int {
	rest := text[start:]
	for _, re := range m.anchored {
		loc := re.FindStringIndex(rest)
		if loc == nil || loc[1] == 0 || start+loc[1] >= rejected {
			continue
		}
		if end := start + loc[1]; isWordBoundary(text, start, end) {
			return end
		}
	}
	return start
}

func isWordBoundary(text string, start, end int) bool {
	if start > 0 {
		before, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(before) {
			return false
		}
	}
	if end < len(text) {
		after, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(after) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}
