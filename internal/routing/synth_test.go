package routing

import (
	"strings"
	"testing"
)

func TestSynthesizeGroupsByCluster(t *testing.T) {
	t.Parallel()

	included := []Article{
		{ID: 3, ClusterID: 7, Title: "Reunión de seguridad en Querétaro", Summary: "El gobernador encabezó la reunión."},
		{ID: 5, Title: "Nota suelta", Lead: "Texto de la entrada."},
		{ID: 1, ClusterID: 7, Title: "Seguridad en la capital"},
		{ID: 9, ClusterID: 8, Title: "Otra historia"},
	}
	stories := Synthesize("seguridad", included)

	if len(stories) != 3 {
		t.Fatalf("stories = %d, want 3", len(stories))
	}
	first := stories[0]
	if first.ClusterID != 7 || first.SortOrder != 0 || len(first.ArticleIDs) != 2 {
		t.Fatalf("first story = %+v", first)
	}
	if first.Title != "Reunión de seguridad en Querétaro" || first.Summary != "El gobernador encabezó la reunión." {
		t.Fatalf("first story text = %q / %q", first.Title, first.Summary)
	}
	if stories[1].ArticleIDs[0] != 5 || stories[1].ClusterID != 0 || stories[1].Summary != "Texto de la entrada." {
		t.Fatalf("second story = %+v", stories[1])
	}
	if stories[2].ClusterID != 8 || stories[2].SectionKey != "seguridad" {
		t.Fatalf("third story = %+v", stories[2])
	}
}

func TestSynthesizeClipsFallbacks(t *testing.T) {
	t.Parallel()

	title := strings.TrimSpace(strings.Repeat("palabra ", 20))
	body := strings.TrimSpace(strings.Repeat("texto ", 60))
	stories := Synthesize("s", []Article{{ID: 1, Title: title, Body: body}})

	if got := len(strings.Fields(stories[0].Title)); got != StoryTitleWords {
		t.Fatalf("title words = %d", got)
	}
	if got := len(strings.Fields(stories[0].Summary)); got != StorySummaryWords {
		t.Fatalf("summary words = %d", got)
	}
}

func TestFingerprintStable(t *testing.T) {
	t.Parallel()

	a := Fingerprint("El Gobernador habló", []int64{3, 1, 2})
	b := Fingerprint("el gobernador hablo", []int64{1, 2, 3})
	if a != b {
		t.Fatalf("fingerprint should ignore case, accents and id order")
	}
	if len(a) != 64 {
		t.Fatalf("fingerprint length = %d", len(a))
	}
	if a == Fingerprint("el gobernador hablo", []int64{1, 2}) {
		t.Fatalf("different article sets must differ")
	}
}
