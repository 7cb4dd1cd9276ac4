package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Diario</title>
<language>es-mx</language>
<item>
<title>Kuri encabeza reunión de seguridad</title>
<link>https://diario.example/nota/kuri-seguridad</link>
<description>&lt;p&gt;El gobernador  encabezó la reunión&lt;/p&gt;</description>
<pubDate>Mon, 02 Jun 2025 10:00:00 GMT</pubDate>
</item>
<item>
<title>Sin enlace</title>
</item>
<item>
<title>Segunda nota</title>
<link>https://diario.example/nota/segunda</link>
</item>
</channel>
</rss>`

const sampleListing = `<html><body>
<article class="card">
  <h2><a href="/nota/uno">Primera   nota</a></h2>
  <p class="bajada">Resumen de la primera nota</p>
  <time datetime="2025-06-02T09:30:00-06:00">hace 1 hora</time>
</article>
<article class="card">
  <h2><a href="https://otro.example/nota/dos">Segunda nota</a></h2>
</article>
<article class="card"><h2>Sin enlace</h2></article>
</body></html>`

const sampleSitemap = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9" xmlns:news="http://www.google.com/schemas/sitemap-news/0.9">
<url>
  <loc>https://diario.example/2025/06/02/kuri-inaugura-hospital</loc>
  <lastmod>2025-06-02T08:00:00Z</lastmod>
</url>
<url>
  <loc>https://diario.example/2025/06/02/nota-con-titulo</loc>
  <news:news>
    <news:publication><news:language>es</news:language></news:publication>
    <news:publication_date>2025-06-02T07:00:00Z</news:publication_date>
    <news:title>Título desde news</news:title>
  </news:news>
</url>
</urlset>`

func serve(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != userAgent {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func build(t *testing.T, cfg SourceConfig) Source {
	t.Helper()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg.Build(&http.Client{Timeout: 5 * time.Second})
}

func TestFeedSource(t *testing.T) {
	t.Parallel()

	server := serve(t, "application/rss+xml", sampleRSS)
	source := build(t, SourceConfig{Name: "diario", Kind: KindFeed, URL: server.URL})

	articles, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("got %d articles, want 2: %+v", len(articles), articles)
	}
	first := articles[0]
	if first.Title != "Kuri encabeza reunión de seguridad" || first.URL != "https://diario.example/nota/kuri-seguridad" {
		t.Fatalf("first = %+v", first)
	}
	if first.Lead != "El gobernador encabezó la reunión" {
		t.Fatalf("lead = %q", first.Lead)
	}
	if first.Language != "es-mx" {
		t.Fatalf("language = %q", first.Language)
	}
	if first.PublishedAt == nil || !first.PublishedAt.Equal(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("published = %v", first.PublishedAt)
	}
	if articles[1].PublishedAt != nil {
		t.Fatalf("second item has no date, got %v", articles[1].PublishedAt)
	}
}

func TestFeedSourceMaxItems(t *testing.T) {
	t.Parallel()

	server := serve(t, "application/rss+xml", sampleRSS)
	source := build(t, SourceConfig{Name: "diario", Kind: KindFeed, URL: server.URL, MaxItems: 1})

	articles, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(articles))
	}
}

func TestHTMLSource(t *testing.T) {
	t.Parallel()

	server := serve(t, "text/html", sampleListing)
	source := build(t, SourceConfig{
		Name:     "portal",
		Kind:     KindHTML,
		URL:      server.URL + "/portada",
		Language: "es",
		Selectors: Selectors{
			Item:      "article.card",
			Link:      "h2 a",
			Lead:      "p.bajada",
			Published: "time",
		},
	})

	articles, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("got %d articles, want 2: %+v", len(articles), articles)
	}
	if articles[0].URL != server.URL+"/nota/uno" || articles[0].Title != "Primera nota" {
		t.Fatalf("first = %+v", articles[0])
	}
	if articles[0].Lead != "Resumen de la primera nota" || articles[0].Language != "es" {
		t.Fatalf("first = %+v", articles[0])
	}
	want := time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC)
	if articles[0].PublishedAt == nil || !articles[0].PublishedAt.Equal(want) {
		t.Fatalf("published = %v, want %v", articles[0].PublishedAt, want)
	}
	if articles[1].URL != "https://otro.example/nota/dos" {
		t.Fatalf("second url = %q", articles[1].URL)
	}
}

func TestSitemapSource(t *testing.T) {
	t.Parallel()

	server := serve(t, "application/xml", sampleSitemap)
	source := build(t, SourceConfig{Name: "mapa", Kind: KindSitemap, URL: server.URL})

	articles, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("got %d articles, want 2", len(articles))
	}
	if articles[0].Title != "kuri inaugura hospital" {
		t.Fatalf("slug title = %q", articles[0].Title)
	}
	if articles[0].PublishedAt == nil || !articles[0].PublishedAt.Equal(time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("lastmod = %v", articles[0].PublishedAt)
	}
	if articles[1].Title != "Título desde news" || articles[1].Language != "es" {
		t.Fatalf("news entry = %+v", articles[1])
	}
}

func TestSourceStatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	source := build(t, SourceConfig{Name: "caido", Kind: KindSitemap, URL: server.URL})
	if _, err := source.Fetch(context.Background()); err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("err = %v, want 503", err)
	}
}

func TestParseSources(t *testing.T) {
	t.Parallel()

	data := []byte(`
sources:
  - name: diario
    kind: rss
    url: https://diario.example/rss
  - name: portal
    kind: html
    url: https://portal.example/
    selectors:
      item: article
  - name: apagado
    kind: sitemap
    url: https://apagado.example/sitemap.xml
    disabled: true
`)
	sources, err := ParseSources(data, nil)
	if err != nil {
		t.Fatalf("ParseSources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(sources))
	}
	if sources[0].Kind() != KindFeed || sources[1].Kind() != KindHTML || sources[1].Name() != "portal" {
		t.Fatalf("sources = %s/%s", sources[0].Kind(), sources[1].Kind())
	}
}

func TestParseSourcesRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", "sources:\n  - kind: rss\n    url: https://a.example\n", "name is required"},
		{"bad url", "sources:\n  - name: a\n    kind: rss\n    url: ftp://a.example\n", "must be http(s)"},
		{"unknown kind", "sources:\n  - name: a\n    kind: atom\n    url: https://a.example\n", "unknown kind"},
		{"html without item", "sources:\n  - name: a\n    kind: html\n    url: https://a.example\n", "selectors.item"},
		{"duplicate", "sources:\n  - name: a\n    kind: rss\n    url: https://a.example\n  - name: a\n    kind: rss\n    url: https://b.example\n", "defined twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseSources([]byte(tt.yaml), nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestShippedSourcesFileIsValid(t *testing.T) {
	t.Parallel()

	if _, err := LoadSources("../../config/sources.yaml", nil); err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
}

func TestSitemapSourceFollowsIndex(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<sitemap><loc>` + server.URL + `/roto.xml</loc></sitemap>
<sitemap><loc>` + server.URL + `/noticias.xml</loc></sitemap>
</sitemapindex>`))
	})
	mux.HandleFunc("/roto.xml", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/noticias.xml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleSitemap))
	})

	source := SourceConfig{Name: "indice", Kind: KindSitemap, URL: server.URL + "/sitemap.xml"}.Build(server.Client())
	articles, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("got %d articles, want 2", len(articles))
	}
}
