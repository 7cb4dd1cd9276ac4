package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// FeedSource reads RSS and Atom feeds.
type FeedSource struct {
	baseSource
	parser *gofeed.Parser
}

func newFeedSource(base baseSource) *FeedSource {
	parser := gofeed.NewParser()
	parser.Client = base.client
	parser.UserAgent = userAgent
	return &FeedSource{baseSource: base, parser: parser}
}

func (s *FeedSource) Kind() string { return KindFeed }

func (s *FeedSource) Fetch(ctx context.Context) ([]RawArticle, error) {
	feed, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", s.url, err)
	}

	language := s.language
	if language == "" {
		language = feed.Language
	}

	articles := make([]RawArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		if s.full(len(articles)) {
			break
		}
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}

		published := item.PublishedParsed
		if published == nil {
			published = item.UpdatedParsed
		}
		if published != nil {
			utc := published.UTC()
			published = &utc
		}

		lead := item.Description
		if strings.TrimSpace(lead) == "" {
			lead = item.Content
		}

		articles = append(articles, RawArticle{
			URL:         link,
			Title:       strings.TrimSpace(item.Title),
			Lead:        htmlText(lead),
			Language:    language,
			PublishedAt: published,
		})
	}
	return articles, nil
}

// htmlText flattens an HTML fragment into single-spaced text.
func htmlText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
