package mentions

import (
	"strings"
	"testing"
)

func TestStrength(t *testing.T) {
	t.Parallel()

	filler := strings.Repeat("palabra ", 80)

	tests := []struct {
		name     string
		title    string
		body     string
		surfaces []string
		want     StrengthResult
	}{
		{
			name:     "title hit",
			title:    "Kuri inaugura hospital",
			body:     filler,
			surfaces: []string{"Kuri"},
			want:     StrengthResult{Strong: true, InTitle: true},
		},
		{
			name:     "lead hit",
			title:    "Inauguran hospital",
			body:     "El gobernador Kuri encabezó la ceremonia. " + filler,
			surfaces: []string{"Kuri"},
			want:     StrengthResult{Strong: true, InLead: true, Occurrences: 1},
		},
		{
			name:     "repeated in body",
			title:    "Inauguran hospital",
			body:     filler + " Kuri llegó tarde. " + filler + " Kuri se fue temprano.",
			surfaces: []string{"Kuri"},
			want:     StrengthResult{Strong: true, Occurrences: 2},
		},
		{
			name:     "near action verb",
			title:    "Inauguran hospital",
			body:     filler + " según Kuri, quien declaró ante medios.",
			surfaces: []string{"Kuri"},
			want:     StrengthResult{Strong: true, Occurrences: 1, NearAction: true},
		},
		{
			name:     "incidental",
			title:    "Inauguran hospital",
			body:     filler + " asistió también Kuri. " + filler,
			surfaces: []string{"Kuri"},
			want:     StrengthResult{Occurrences: 1},
		},
		{
			name:     "surfaces merged",
			title:    "Inauguran hospital",
			body:     filler + " Mauricio Kuri llegó. " + filler + " El mandatario Kuri saludó.",
			surfaces: []string{"Mauricio Kuri", "Kuri"},
			want:     StrengthResult{Strong: true, Occurrences: 2},
		},
		{
			name:     "no surfaces",
			title:    "Kuri",
			body:     "Kuri Kuri",
			surfaces: nil,
			want:     StrengthResult{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Strength(tt.title, tt.body, tt.surfaces); got != tt.want {
				t.Fatalf("Strength = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCountPhraseAdjacent(t *testing.T) {
	t.Parallel()

	if got := countPhrase("kuri kuri y kuri", "kuri"); got != 3 {
		t.Fatalf("countPhrase = %d, want 3", got)
	}
	if got := countPhrase("mauricio kuri", "kuri gonzalez"); got != 0 {
		t.Fatalf("countPhrase = %d, want 0", got)
	}
}
