package ingest

import (
	"strings"
	"testing"
)

func TestStripDisclaimers(t *testing.T) {
	t.Parallel()

	text := "El gobernador encabezó la reunión. Suscríbete a nuestro newsletter! El gobernador encabezó la reunión.\n\nSíguenos en redes.\n\nSegundo párrafo útil."
	got := StripDisclaimers(text)
	want := "El gobernador encabezó la reunión.\n\nSegundo párrafo útil."
	if got != want {
		t.Fatalf("StripDisclaimers:\nwant %q\ngot  %q", want, got)
	}
}

func TestPickLead(t *testing.T) {
	t.Parallel()

	long := "El gobernador Mauricio Kuri encabezó la reunión de seguridad."
	if got := PickLead("  "+long+"  ", "Otro cuerpo."); got != long {
		t.Fatalf("reliable lead = %q", got)
	}
	if got := PickLead("Corto", "Primera oración del cuerpo. Segunda oración."); got != "Primera oración del cuerpo." {
		t.Fatalf("fallback lead = %q", got)
	}
	if got := PickLead("", ""); got != "" {
		t.Fatalf("empty lead = %q", got)
	}
	if got := PickLead(strings.Repeat("a", MaxLeadRunes+10), ""); len([]rune(got)) != MaxLeadRunes {
		t.Fatalf("lead not clipped: %d", len([]rune(got)))
	}
}

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	got := splitSentences("Uno. Dos!  Tres? cuatro 3.5 cinco")
	want := []string{"Uno.", "Dos!", "Tres?", "cuatro 3.5 cinco"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("splitSentences = %q, want %q", got, want)
	}
}
