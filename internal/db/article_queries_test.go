package db

import (
	"strings"
	"testing"
	"time"
)

func TestBuildArticleQuery(t *testing.T) {
	t.Parallel()

	since := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	q, args, err := BuildArticleQuery(ArticleFilter{
		Since:            since,
		Limit:            50,
		IDs:              []int64{3, 4},
		MissingEmbedding: true,
	})
	if err != nil {
		t.Fatalf("BuildArticleQuery error: %v", err)
	}

	for _, want := range []string{
		"FROM atlas.articles a",
		"COALESCE(a.published_at, a.fetched_at) >= $1",
		"a.article_id IN ($2,$3)",
		"a.embedding IS NULL",
		"ORDER BY COALESCE(a.published_at, a.fetched_at) DESC, a.article_id DESC",
		"LIMIT 50",
	} {
		if !strings.Contains(q, want) {
			t.Fatalf("query missing %q:\n%s", want, q)
		}
	}
	if len(args) != 3 {
		t.Fatalf("args = %v", args)
	}
	if got, ok := args[0].(time.Time); !ok || !got.Equal(since) {
		t.Fatalf("args = %v", args)
	}
}

func TestBuildArticleQueryUnfiltered(t *testing.T) {
	t.Parallel()

	q, args, err := BuildArticleQuery(ArticleFilter{})
	if err != nil {
		t.Fatalf("BuildArticleQuery error: %v", err)
	}
	if strings.Contains(q, "WHERE") || strings.Contains(q, "LIMIT") {
		t.Fatalf("unexpected clauses in %s", q)
	}
	if len(args) != 0 {
		t.Fatalf("args = %v", args)
	}
}
