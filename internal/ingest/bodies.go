package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"horse.fit/atlas/internal/db"
	"horse.fit/atlas/internal/globaltime"
	"horse.fit/atlas/internal/langdetect"
	"horse.fit/atlas/internal/reader"
)

// BodyFetcher downloads the readable content of one article page.
type BodyFetcher interface {
	Fetch(ctx context.Context, url, title string) (reader.Page, error)
}

// ReaderFetcher fetches bodies with the readability extractor.
type ReaderFetcher struct {
	Options reader.FetchOptions
}

func (f ReaderFetcher) Fetch(ctx context.Context, url, title string) (reader.Page, error) {
	return reader.FetchTextWithOptions(ctx, url, title, f.Options)
}

// BodyOptions select the articles whose bodies are fetched.
type BodyOptions struct {
	Since  time.Time
	Limit  int
	DryRun bool
}

// BodyResult counts one body fetch pass. Canceled articles were not attempted
// or were interrupted by the caller and stay pending.
type BodyResult struct {
	Pending  int `json:"pending"`
	Fetched  int `json:"fetched"`
	Failed   int `json:"failed"`
	Canceled int `json:"canceled"`
}

type bodyOutcome int

const (
	bodyFetched bodyOutcome = iota
	bodyFailed
	bodyCanceled
)

// FetchBodies downloads pending article bodies with bounded concurrency. A
// failed or timed-out page is recorded on the article and never fails the
// pass.
func (s *Service) FetchBodies(ctx context.Context, opts BodyOptions) (BodyResult, error) {
	pending, err := s.store.PendingBodies(ctx, BodyQuery{Since: opts.Since, Limit: opts.Limit})
	if err != nil {
		return BodyResult{}, fmt.Errorf("list pending bodies: %w", err)
	}

	result := BodyResult{Pending: len(pending)}
	if len(pending) == 0 {
		s.logger.Info().Msg("no pending bodies")
		return result, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, item := range pending {
		g.Go(func() error {
			outcome := bodyCanceled
			if gctx.Err() == nil {
				outcome = s.fetchBody(gctx, item, opts.DryRun)
			}

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case bodyFetched:
				result.Fetched++
			case bodyFailed:
				result.Failed++
			default:
				result.Canceled++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info().
		Int("pending", result.Pending).
		Int("fetched", result.Fetched).
		Int("failed", result.Failed).
		Int("canceled", result.Canceled).
		Bool("dry_run", opts.DryRun).
		Msg("body fetch completed")

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (s *Service) fetchBody(ctx context.Context, item PendingBody, dryRun bool) bodyOutcome {
	logger := s.logger.With().Int64("article_id", item.ArticleID).Logger()

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	page, err := s.fetcher.Fetch(fetchCtx, item.URL, item.Title)
	cancel()
	if err != nil && ctx.Err() != nil {
		return bodyCanceled
	}

	update := BodyUpdate{
		ArticleID: item.ArticleID,
		FetchedAt: globaltime.UTC(),
	}
	if err == nil && StripDisclaimers(page.Text) == "" {
		err = fmt.Errorf("body empty after cleanup")
	}
	if err != nil {
		update.Status = BodyFailed
		update.Error = db.TruncateError(err.Error())
		logger.Warn().Err(err).Str("url", item.URL).Msg("body fetch failed")
	} else {
		body := clipRunes(StripDisclaimers(page.Text), MaxBodyRunes)
		lead := item.Lead
		if lead == "" {
			lead = page.Lead
		}
		update.Status = BodyOK
		update.Body = body
		update.Lead = PickLead(lead, body)
		update.Language = langdetect.Detect(body, item.Language)
	}

	if !dryRun {
		if saveErr := s.store.SaveBody(ctx, update); saveErr != nil {
			logger.Error().Err(saveErr).Msg("save body failed")
			return bodyFailed
		}
	}
	if err != nil {
		return bodyFailed
	}
	return bodyFetched
}
