package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"horse.fit/atlas/internal/classify"
	"horse.fit/atlas/internal/cli"
	"horse.fit/atlas/internal/clustering"
	"horse.fit/atlas/internal/config"
	"horse.fit/atlas/internal/embed"
	"horse.fit/atlas/internal/logging"
)

const (
	outputFormatTable = "table"
	outputFormatJSON  = "json"

	exitPartial = 3
)

// loadRuntime loads the .env file, the environment config and the logger.
func loadRuntime(envLoader *cli.EnvLoader) (*config.Config, zerolog.Logger, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

// commandContext is canceled on SIGINT/SIGTERM or after timeout. A
// non-positive timeout means no deadline.
func commandContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// parseSince accepts a relative age ("7d", "36h", "90m"), a date or an
// RFC3339 timestamp. An empty value means no lower bound.
func parseSince(raw string, now time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}

	if days, ok := strings.CutSuffix(trimmed, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return time.Time{}, fmt.Errorf("invalid day count %q", trimmed)
		}
		return now.UTC().Add(-time.Duration(n) * 24 * time.Hour), nil
	}
	if d, err := time.ParseDuration(trimmed); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("duration %q must not be negative", trimmed)
		}
		return now.UTC().Add(-d), nil
	}
	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return ts.UTC(), nil
	}
	if day, err := time.Parse("2006-01-02", trimmed); err == nil {
		return day.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid --since %q: use 7d, 36h, YYYY-MM-DD or RFC3339", trimmed)
}

// buildClassifier returns the remote classifier backed by the neutral
// fallback, or the neutral classifier alone when no endpoint is configured.
func buildClassifier(cfg *config.Config, logger zerolog.Logger) classify.Classifier {
	if strings.TrimSpace(cfg.ClassifierEndpoint) == "" {
		logger.Warn().Msg("CLASSIFIER_ENDPOINT not set; using neutral classifier")
		return classify.Neutral{}
	}
	remote := classify.NewHTTPClassifier(classify.HTTPOptions{
		Endpoint:       cfg.ClassifierEndpoint,
		RequestTimeout: cfg.ClassifierTimeout,
		Retries:        cfg.ClassifierRetries,
	}, logger)
	return classify.WithFallback{
		Primary:  remote,
		Fallback: classify.Neutral{},
		OnInvalid: func(req classify.Request, reason string) {
			logger.Warn().Int64("article_id", req.ArticleID).Str("reason", reason).Msg("classifier output rejected; using fallback")
		},
	}
}

// buildEmbedder returns nil when no embedding endpoint is configured.
func buildEmbedder(cfg *config.Config, logger zerolog.Logger) clustering.Embedder {
	client := embed.NewClient(embed.Options{
		Endpoint:       cfg.EmbeddingEndpoint,
		Model:          cfg.EmbeddingModel,
		RequestTimeout: cfg.EmbeddingTimeout,
	}, logger)
	if !client.Enabled() {
		return nil
	}
	return client
}

// buildLocker uses Redis when REDIS_URL is set. The returned close func is
// never nil.
func buildLocker(ctx context.Context, cfg *config.Config) (clustering.Locker, func(), error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return clustering.NewLocalLocker(), func() {}, nil
	}
	locker, err := clustering.NewRedisLockerFromURL(ctx, cfg.RedisURL, cfg.ClusterLockTTL)
	if err != nil {
		return nil, func() {}, err
	}
	return locker, func() { _ = locker.Close() }, nil
}

func parseOutputFormat(raw, defaultFormat string) (string, error) {
	format := strings.TrimSpace(strings.ToLower(raw))
	if format == "" {
		format = strings.TrimSpace(strings.ToLower(defaultFormat))
	}
	switch format {
	case outputFormatTable, outputFormatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("--format must be table or json")
	}
}

func truncateForTable(value string, maxLen int) string {
	trimmed := strings.TrimSpace(value)
	if maxLen <= 0 {
		return trimmed
	}
	if utf8.RuneCountInString(trimmed) <= maxLen {
		return trimmed
	}

	runes := []rune(trimmed)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

func formatUTCTimestampPtr(value *time.Time) string {
	if value == nil || value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func writeTable(headers []string, rows [][]string) error {
	writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(writer, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(writer, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return writer.Flush()
}
