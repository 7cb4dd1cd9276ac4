package ingest

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/crypto/blake2b"

	"horse.fit/atlas/internal/textnorm"
)

var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ocid":    {},
	"ref":     {},
	"ref_src": {},
	"smid":    {},
}

// CanonicalURL lowercases scheme and host, drops the fragment and tracking
// parameters, and trims a trailing slash from the path.
func CanonicalURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("url %q is not http(s)", raw)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.RawFragment = ""
	if len(parsed.Path) > 1 {
		parsed.Path = strings.TrimRight(parsed.Path, "/")
		parsed.RawPath = ""
	}

	query := parsed.Query()
	for key := range query {
		lower := strings.ToLower(key)
		if _, drop := trackingParams[lower]; drop || strings.HasPrefix(lower, "utm_") {
			query.Del(key)
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// ContentHash is the dedupe key of an article: BLAKE2b-256 over the
// normalized title and the canonical URL.
func ContentHash(title, canonicalURL string) []byte {
	sum := blake2b.Sum256([]byte(textnorm.Normalize(title) + "\n" + canonicalURL))
	return sum[:]
}
