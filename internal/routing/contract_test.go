package routing

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseContracts(t *testing.T) {
	t.Parallel()

	doc := `
sections:
  - key: seguridad
    title: Seguridad
    order: 2
    watchlist:
      institutions: [20]
    positive_keywords: [Policía, policia]
    min_score: 0.2
    min_mentions: 0
  - key: gobierno
    title: Gobierno
    order: 1
    watchlist:
      persons: [1]
    include_children: true
    negative_keywords: [Esquela]
`
	contracts, err := ParseContracts([]byte(doc))
	if err != nil {
		t.Fatalf("ParseContracts: %v", err)
	}
	if len(contracts) != 2 || contracts[0].Key != "gobierno" || contracts[1].Key != "seguridad" {
		t.Fatalf("contracts = %+v", contracts)
	}
	gobierno, seguridad := contracts[0], contracts[1]
	if gobierno.MinMentions != defaultMinMentions {
		t.Fatalf("default min_mentions = %d", gobierno.MinMentions)
	}
	if !gobierno.IncludeChildren || len(gobierno.negative) != 1 || gobierno.negative[0] != "esquela" {
		t.Fatalf("gobierno = %+v", gobierno)
	}
	if seguridad.MinMentions != 0 {
		t.Fatalf("explicit min_mentions 0 lost")
	}
	if len(seguridad.positive) != 1 || seguridad.positive[0] != "policia" {
		t.Fatalf("positive = %v", seguridad.positive)
	}
}

func TestParseContractsRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{name: "empty", doc: "sections: []", want: "no sections"},
		{name: "unknown field", doc: "sections:\n  - key: a\n    watchlist: {persons: [1]}\n    colour: red\n", want: "colour"},
		{name: "missing key", doc: "sections:\n  - title: A\n    watchlist: {persons: [1]}\n", want: "key is required"},
		{name: "bad key", doc: "sections:\n  - key: Mi Sección\n    watchlist: {persons: [1]}\n", want: "must be lowercase"},
		{name: "score range", doc: "sections:\n  - key: a\n    watchlist: {persons: [1]}\n    min_score: 1.5\n", want: "min_score"},
		{name: "negative mentions", doc: "sections:\n  - key: a\n    watchlist: {persons: [1]}\n    min_mentions: -1\n", want: "min_mentions"},
		{name: "nothing to match", doc: "sections:\n  - key: a\n    negative_keywords: [x]\n", want: "needs a watchlist"},
		{name: "bad id", doc: "sections:\n  - key: a\n    watchlist: {persons: [0]}\n", want: "must be positive"},
		{name: "blank keyword", doc: "sections:\n  - key: a\n    positive_keywords: [\"!!\"]\n", want: "empty after normalization"},
		{name: "duplicate", doc: "sections:\n  - key: a\n    watchlist: {persons: [1]}\n  - key: a\n    watchlist: {persons: [2]}\n", want: "defined twice"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseContracts([]byte(tc.doc))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestLoadContractsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sections.yaml")
	if err := os.WriteFile(path, []byte("sections:\n  - key: a\n    watchlist: {persons: [1]}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	contracts, err := LoadContracts(path)
	if err != nil || len(contracts) != 1 {
		t.Fatalf("LoadContracts = %v, %v", contracts, err)
	}
	if _, err := LoadContracts(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing file should fail")
	}
}

func TestShippedSectionsFileIsValid(t *testing.T) {
	t.Parallel()

	if _, err := LoadContracts(filepath.Join("..", "..", "config", "sections.yaml")); err != nil {
		t.Fatalf("config/sections.yaml: %v", err)
	}
}
