// Package ingest pulls article listings from configured news sources, stores
// them deduplicated and fills in their readable bodies.
package ingest

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	KindFeed    = "rss"
	KindHTML    = "html"
	KindSitemap = "sitemap"

	DefaultSourceTimeout = 20 * time.Second
	defaultMaxItems      = 200
	userAgent            = "atlas-monitor/1.0"
)

// RawArticle is one listing entry as a source reports it.
type RawArticle struct {
	URL         string
	Title       string
	Lead        string
	Language    string
	PublishedAt *time.Time
}

// Source lists the current articles of one outlet.
type Source interface {
	Name() string
	Kind() string
	Fetch(ctx context.Context) ([]RawArticle, error)
}

// Selectors locate listing entries on an HTML page. Item is required; the
// other selectors are evaluated inside each item.
type Selectors struct {
	Item       string `yaml:"item"`
	Title      string `yaml:"title"`
	Link       string `yaml:"link"`
	Lead       string `yaml:"lead"`
	Published  string `yaml:"published"`
	TimeLayout string `yaml:"time_layout"`
}

// SourceConfig is one entry of the sources file.
type SourceConfig struct {
	Name      string    `yaml:"name"`
	Kind      string    `yaml:"kind"`
	URL       string    `yaml:"url"`
	Language  string    `yaml:"language"`
	MaxItems  int       `yaml:"max_items"`
	Disabled  bool      `yaml:"disabled"`
	Selectors Selectors `yaml:"selectors"`
}

type sourcesFile struct {
	Sources []SourceConfig `yaml:"sources"`
}

// LoadSources reads a sources YAML file and builds the enabled sources.
func LoadSources(path string, client *http.Client) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file %s: %w", path, err)
	}
	sources, err := ParseSources(data, client)
	if err != nil {
		return nil, fmt.Errorf("sources file %s: %w", path, err)
	}
	return sources, nil
}

// ParseSources builds the enabled sources described by data.
func ParseSources(data []byte, client *http.Client) ([]Source, error) {
	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	if client == nil {
		client = &http.Client{Timeout: DefaultSourceTimeout}
	}

	seen := make(map[string]struct{}, len(file.Sources))
	sources := make([]Source, 0, len(file.Sources))
	for i, cfg := range file.Sources {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		if _, dup := seen[cfg.Name]; dup {
			return nil, fmt.Errorf("source %q defined twice", cfg.Name)
		}
		seen[cfg.Name] = struct{}{}
		if cfg.Disabled {
			continue
		}
		sources = append(sources, cfg.Build(client))
	}
	return sources, nil
}

// Validate checks the fields every source kind needs.
func (c SourceConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("source %q: url must be http(s), got %q", c.Name, c.URL)
	}
	if c.MaxItems < 0 {
		return fmt.Errorf("source %q: max_items must be >= 0", c.Name)
	}
	switch c.Kind {
	case KindFeed, KindSitemap:
	case KindHTML:
		if strings.TrimSpace(c.Selectors.Item) == "" {
			return fmt.Errorf("source %q: html sources need selectors.item", c.Name)
		}
	default:
		return fmt.Errorf("source %q: unknown kind %q", c.Name, c.Kind)
	}
	return nil
}

// Build returns the Source for a validated config.
func (c SourceConfig) Build(client *http.Client) Source {
	base := baseSource{
		name:     strings.TrimSpace(c.Name),
		url:      c.URL,
		language: c.Language,
		maxItems: c.MaxItems,
		client:   client,
	}
	if base.maxItems == 0 {
		base.maxItems = defaultMaxItems
	}
	switch c.Kind {
	case KindHTML:
		return &HTMLSource{baseSource: base, selectors: c.Selectors}
	case KindSitemap:
		return &SitemapSource{baseSource: base}
	default:
		return newFeedSource(base)
	}
}

type baseSource struct {
	name     string
	url      string
	language string
	maxItems int
	client   *http.Client
}

func (b baseSource) Name() string { return b.name }

func (b baseSource) get(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", b.url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%s returned %s", b.url, resp.Status)
	}
	return resp, nil
}

func (b baseSource) full(n int) bool {
	return n >= b.maxItems
}
