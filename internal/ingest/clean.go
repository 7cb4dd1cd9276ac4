package ingest

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxBodyRunes    = 50000
	MaxLeadRunes    = 2000
	reliableLeadLen = 40
)

var disclaimerPattern = regexp.MustCompile(`(?i)suscr[íi]bete|newsletter|s[íi]guenos|seguir en|compartir|publicidad|pol[íi]tica de privacidad|t[ée]rminos y condiciones|contenido patrocinado|cookies`)

// StripDisclaimers drops sentences carrying subscription, sharing or legal
// boilerplate, and repeated sentences. Paragraph breaks are kept.
func StripDisclaimers(text string) string {
	seen := make(map[string]struct{})
	paragraphs := strings.Split(text, "\n\n")
	kept := make([]string, 0, len(paragraphs))
	for _, paragraph := range paragraphs {
		sentences := splitSentences(paragraph)
		clean := sentences[:0]
		for _, sentence := range sentences {
			if disclaimerPattern.MatchString(sentence) {
				continue
			}
			key := strings.ToLower(sentence)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			clean = append(clean, sentence)
		}
		if len(clean) > 0 {
			kept = append(kept, strings.Join(clean, " "))
		}
	}
	return strings.Join(kept, "\n\n")
}

// PickLead keeps a listing lead that is long enough to be trusted and
// otherwise falls back to the first sentence of the body.
func PickLead(listingLead, body string) string {
	lead := strings.Join(strings.Fields(listingLead), " ")
	if utf8.RuneCountInString(lead) < reliableLeadLen {
		lead = ""
		if sentences := splitSentences(body); len(sentences) > 0 {
			lead = sentences[0]
		}
	}
	return clipRunes(StripDisclaimers(lead), MaxLeadRunes)
}

// splitSentences splits after '.', '!' or '?' when followed by whitespace.
func splitSentences(text string) []string {
	var (
		sentences []string
		start     int
		prevEnd   bool
	)
	for i, r := range text {
		if prevEnd && unicode.IsSpace(r) {
			if s := strings.TrimSpace(text[start:i]); s != "" {
				sentences = append(sentences, strings.Join(strings.Fields(s), " "))
			}
			start = i
		}
		prevEnd = r == '.' || r == '!' || r == '?'
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, strings.Join(strings.Fields(s), " "))
	}
	return sentences
}

func clipRunes(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}
