package mentions

import (
	"strings"

	"horse.fit/atlas/internal/textnorm"
)

const (
	// LeadWordCount is the number of body words treated as the lead.
	LeadWordCount = 50
	// ActionVerbWindow is the distance, in characters of normalized text, within
	// which an action verb makes a mention strong.
	ActionVerbWindow = 50
)

var actionVerbs = normalizedList(
	"anunció", "aseguró", "declaró", "dijo", "explicó", "informó", "investigó", "lanzó",
	"ordenó", "presentó", "prometió", "publicó", "reveló", "solicitó", "suspendió",
)

// StrengthResult grades how prominently an entity appears in one article.
type StrengthResult struct {
	Strong      bool `json:"strong"`
	InTitle     bool `json:"title"`
	InLead      bool `json:"lead"`
	Occurrences int  `json:"occurrences"`
	NearAction  bool `json:"near_action"`
}

// Strength grades the surfaces of one entity against an article title and
// body. The entity is strong when any surface appears in the title or lead,
// appears at least twice in the body, or sits near an action verb.
func Strength(title, body string, surfaces []string) StrengthResult {
	titleText := textnorm.Normalize(title)
	bodyText := textnorm.Normalize(body)
	leadText := textnorm.LeadWords(bodyText, LeadWordCount)

	var result StrengthResult
	seen := make(map[string]struct{}, len(surfaces))
	for _, surface := range surfaces {
		normalized := textnorm.Normalize(surface)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}

		if textnorm.ContainsPhrase(titleText, normalized) {
			result.InTitle = true
		}
		if textnorm.ContainsPhrase(leadText, normalized) {
			result.InLead = true
		}
		result.Occurrences = max(result.Occurrences, countPhrase(bodyText, normalized))
		if nearActionVerb(bodyText, normalized) {
			result.NearAction = true
		}
	}

	result.Strong = result.InTitle || result.InLead || result.Occurrences >= 2 || result.NearAction
	return result
}

func countPhrase(text, phrase string) int {
	tokens := strings.Fields(text)
	needle := strings.Fields(phrase)
	if len(needle) == 0 || len(tokens) < len(needle) {
		return 0
	}
	count := 0
	for i := 0; i+len(needle) <= len(tokens); i++ {
		matched := true
		for j := range needle {
			if tokens[i+j] != needle[j] {
				matched = false
				break
			}
		}
		if matched {
			count++
		}
	}
	return count
}

func nearActionVerb(text, phrase string) bool {
	padded := " " + text + " "
	index := strings.Index(padded, " "+phrase+" ")
	if index < 0 {
		return false
	}
	start := max(index-ActionVerbWindow, 0)
	end := min(index+len(phrase)+2+ActionVerbWindow, len(padded))
	snippet := strings.TrimSpace(padded[start:end])
	for _, verb := range actionVerbs {
		if textnorm.ContainsPhrase(snippet, verb) {
			return true
		}
	}
	return false
}

func normalizedList(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if normalized := textnorm.Normalize(value); normalized != "" {
			out = append(out, normalized)
		}
	}
	return out
}
