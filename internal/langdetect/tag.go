package langdetect

import (
	"strings"

	"golang.org/x/text/language"
)

// NormalizeCode returns the primary ISO 639-1 subtag of a declared language
// tag ("es" from "es_MX"), or "" when the tag cannot be parsed.
func NormalizeCode(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return ""
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return ""
	}
	code := base.String()
	if len(code) != 2 {
		return ""
	}
	return code
}

// Detect prefers the language a feed declared for an item and falls back to
// detecting it from text.
func Detect(text, declared string) string {
	if code := NormalizeCode(declared); code != "" {
		return code
	}
	return DetectISO6391(text)
}
