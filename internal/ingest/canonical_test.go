package ingest

import (
	"bytes"
	"testing"
)

func TestCanonicalURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
	}{
		{"https://Diario.Example/Nota/", "https://diario.example/Nota"},
		{"https://diario.example/nota?utm_source=x&id=3#comentarios", "https://diario.example/nota?id=3"},
		{"http://diario.example/?fbclid=abc", "http://diario.example/"},
		{"https://diario.example/nota?b=2&a=1", "https://diario.example/nota?a=1&b=2"},
	}
	for _, tt := range tests {
		got, err := CanonicalURL(tt.raw)
		if err != nil {
			t.Fatalf("CanonicalURL(%q): %v", tt.raw, err)
		}
		if got != tt.want {
			t.Errorf("CanonicalURL(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}

	for _, bad := range []string{"", "mailto:a@b.example", "https:///sin-host", "/relativa"} {
		if _, err := CanonicalURL(bad); err == nil {
			t.Errorf("CanonicalURL(%q) should fail", bad)
		}
	}
}

func TestContentHash(t *testing.T) {
	t.Parallel()

	a := ContentHash("Kuri encabeza REUNIÓN", "https://diario.example/nota")
	b := ContentHash("kuri  encabeza reunion", "https://diario.example/nota")
	if !bytes.Equal(a, b) {
		t.Fatalf("normalized titles should hash equal")
	}
	if len(a) != 32 {
		t.Fatalf("hash length = %d, want 32", len(a))
	}
	if bytes.Equal(a, ContentHash("Kuri encabeza reunión", "https://diario.example/otra")) {
		t.Fatalf("different URLs should hash differently")
	}
}
