package ingest

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// HTMLSource scrapes a listing page with CSS selectors.
type HTMLSource struct {
	baseSource
	selectors Selectors
}

func (s *HTMLSource) Kind() string { return KindHTML }

func (s *HTMLSource) Fetch(ctx context.Context) ([]RawArticle, error) {
	doc, err := s.document(ctx)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(s.url)
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}

	sel := s.selectors
	var articles []RawArticle
	doc.Find(sel.Item).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if s.full(len(articles)) {
			return false
		}

		link := item
		if sel.Link != "" {
			link = item.Find(sel.Link).First()
		} else if goquery.NodeName(item) != "a" {
			link = item.Find("a[href]").First()
		}
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		resolved, err := base.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}

		title := link.Text()
		if sel.Title != "" {
			title = item.Find(sel.Title).First().Text()
		}

		article := RawArticle{
			URL:      resolved.String(),
			Title:    strings.Join(strings.Fields(title), " "),
			Language: s.language,
		}
		if sel.Lead != "" {
			article.Lead = strings.Join(strings.Fields(item.Find(sel.Lead).First().Text()), " ")
		}
		if sel.Published != "" {
			article.PublishedAt = parsePublished(item.Find(sel.Published).First(), sel.TimeLayout)
		}
		articles = append(articles, article)
		return true
	})
	return articles, nil
}

func (s *HTMLSource) document(ctx context.Context) (*goquery.Document, error) {
	resp, err := s.get(ctx)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// parsePublished reads a datetime attribute first and the element text
// second.
func parsePublished(sel *goquery.Selection, layout string) *time.Time {
	raw, ok := sel.Attr("datetime")
	if !ok {
		raw = sel.Text()
	}
	return parseTime(raw, layout)
}

func parseTime(raw, layout string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	layouts := []string{time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02"}
	if layout != "" {
		layouts = append([]string{layout}, layouts...)
	}
	for _, candidate := range layouts {
		if parsed, err := time.Parse(candidate, raw); err == nil {
			utc := parsed.UTC()
			return &utc
		}
	}
	return nil
}

// SitemapSource reads an XML sitemap, including Google News extensions.
type SitemapSource struct {
	baseSource
}

func (s *SitemapSource) Kind() string { return KindSitemap }

func (s *SitemapSource) Fetch(ctx context.Context) ([]RawArticle, error) {
	doc, err := s.document(ctx, s.url)
	if err != nil {
		return nil, err
	}

	index := doc.Find("sitemapindex")
	if index.Length() == 0 {
		return s.entries(doc, nil), nil
	}

	// A sitemap index lists nested sitemaps; read them in order until full.
	var (
		articles []RawArticle
		lastErr  error
	)
	index.Find("loc").EachWithBreak(func(_ int, loc *goquery.Selection) bool {
		nested, err := s.document(ctx, strings.TrimSpace(loc.Text()))
		if err != nil {
			lastErr = err
			return ctx.Err() == nil
		}
		articles = s.entries(nested, articles)
		return !s.full(len(articles))
	})
	if len(articles) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return articles, nil
}

func (s *SitemapSource) document(ctx context.Context, target string) (*goquery.Document, error) {
	fetch := s.baseSource
	fetch.url = target
	resp, err := fetch.get(ctx)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse sitemap %s: %w", target, err)
	}
	return doc, nil
}

func (s *SitemapSource) entries(doc *goquery.Document, articles []RawArticle) []RawArticle {
	doc.Find("url").EachWithBreak(func(_ int, entry *goquery.Selection) bool {
		if s.full(len(articles)) {
			return false
		}
		loc := strings.TrimSpace(entry.Find("loc").First().Text())
		if loc == "" {
			return true
		}

		var title, published, language string
		entry.Find("*").Each(func(_ int, child *goquery.Selection) {
			switch goquery.NodeName(child) {
			case "news:title":
				title = child.Text()
			case "news:publication_date":
				published = child.Text()
			case "news:language":
				language = child.Text()
			case "lastmod":
				if published == "" {
					published = child.Text()
				}
			}
		})
		if strings.TrimSpace(title) == "" {
			title = slugTitle(loc)
		}
		if s.language != "" {
			language = s.language
		}

		articles = append(articles, RawArticle{
			URL:         loc,
			Title:       strings.Join(strings.Fields(title), " "),
			Language:    strings.TrimSpace(language),
			PublishedAt: parseTime(published, ""),
		})
		return true
	})
	return articles
}

// slugTitle derives a title from the last path segment of a URL.
func slugTitle(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	slug := path.Base(strings.TrimSuffix(parsed.Path, "/"))
	if slug == "." || slug == "/" {
		return ""
	}
	slug = strings.TrimSuffix(slug, path.Ext(slug))
	return strings.Join(strings.FieldsFunc(slug, func(r rune) bool {
		return r == '-' || r == '_'
	}), " ")
}
