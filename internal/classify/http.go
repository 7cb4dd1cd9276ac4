package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/atlas/internal/resilience"
	payloadschema "horse.fit/atlas/schema"
)

const (
	DefaultRequestTimeout = 60 * time.Second
	maxRequestTextRunes   = 6000
	maxCatalogNames       = 200
)

type HTTPOptions struct {
	Endpoint       string
	RequestTimeout time.Duration
	Retries        int
	HTTPClient     *http.Client
}

type classifyRequest struct {
	Title   string   `json:"title"`
	Text    string   `json:"text"`
	Catalog []string `json:"catalog,omitempty"`
}

// HTTPClassifier posts articles to the classification service and
// validates its answer.
type HTTPClassifier struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
	guard    *resilience.Guard
	logger   zerolog.Logger
}

func NewHTTPClassifier(opts HTTPOptions, logger zerolog.Logger) *HTTPClassifier {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClassifier{
		endpoint: strings.TrimSpace(opts.Endpoint),
		timeout:  opts.RequestTimeout,
		http:     httpClient,
		guard:    resilience.NewGuard(resilience.Policy{Name: "classify", Retries: opts.Retries}, logger),
		logger:   logger,
	}
}

// Classify returns Invalid when the service is unreachable after retries or
// keeps answering with payloads that fail validation.
func (c *HTTPClassifier) Classify(ctx context.Context, req Request) Result {
	if c == nil || c.endpoint == "" {
		return Invalid("classifier endpoint not configured")
	}
	payload, err := resilience.Call(ctx, c.guard, func(ctx context.Context) (*Payload, error) {
		raw, err := c.request(ctx, req)
		if err != nil {
			return nil, err
		}
		return payloadschema.ValidateClassificationPayload(raw)
	})
	if err != nil {
		return Invalid(err.Error())
	}
	return Valid(*payload)
}

func (c *HTTPClassifier) request(ctx context.Context, req Request) (json.RawMessage, error) {
	catalog := req.Catalog
	if len(catalog) > maxCatalogNames {
		catalog = catalog[:maxCatalogNames]
	}
	body, err := json.Marshal(classifyRequest{
		Title:   req.Title,
		Text:    clipRunes(req.Text, maxRequestTextRunes),
		Catalog: catalog,
	})
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("marshal classify request: %w", err))
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("build classify request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("classify request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read classify response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("classify service status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, resilience.Permanent(err)
		}
		return nil, err
	}
	return unwrapOutput(respBody)
}

// unwrapOutput accepts either the payload itself or an envelope whose
// "output" string holds it.
func unwrapOutput(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("classify response is empty")
	}
	var envelope struct {
		Output *string `json:"output"`
	}
	if trimmed[0] == '{' && json.Unmarshal(trimmed, &envelope) == nil && envelope.Output != nil {
		return json.RawMessage(*envelope.Output), nil
	}
	return json.RawMessage(trimmed), nil
}

func clipRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
