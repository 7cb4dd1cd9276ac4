// Package httpapi serves the read-only operations API over pipeline runs and
// their routing output.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/atlas/internal/globaltime"
	"horse.fit/atlas/internal/pipeline"
	"horse.fit/atlas/internal/routing"
)

const (
	defaultPageSize = 25
	maxPageSize     = 200
)

// RunReader reads pipeline runs.
type RunReader interface {
	GetRun(ctx context.Context, uuid string) (pipeline.Run, error)
	ListRuns(ctx context.Context, limit int) ([]pipeline.Run, error)
}

// ReportReader reads what the router stored for a run.
type ReportReader interface {
	RunReport(ctx context.Context, runID int64) (routing.RunReport, error)
}

// Pinger checks a dependency for /healthz.
type Pinger func(ctx context.Context) error

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	runs    RunReader
	reports ReportReader
	ping    Pinger
	logger  zerolog.Logger
	opts    Options
}

type runSummary struct {
	UUID         string               `json:"uuid"`
	Trigger      string               `json:"trigger"`
	Status       pipeline.Status      `json:"status"`
	WindowStart  time.Time            `json:"window_start"`
	WindowEnd    time.Time            `json:"window_end"`
	StartedAt    *time.Time           `json:"started_at,omitempty"`
	FinishedAt   *time.Time           `json:"finished_at,omitempty"`
	Stages       int                  `json:"stages"`
	LastStage    *pipeline.StageEntry `json:"last_stage,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
}

func NewServer(runs RunReader, reports ReportReader, ping Pinger, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		runs:    runs,
		reports: reports,
		ping:    ping,
		logger:  logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

// Handler builds the echo instance with every route registered.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.GET("/healthz", s.handleHealth)

	api := e.Group("/api/v1")
	api.GET("/runs", s.handleRuns)
	api.GET("/runs/:run_uuid", s.handleRunDetail)
	api.GET("/runs/:run_uuid/routing", s.handleRunRouting)
	return e
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.runs == nil || s.reports == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.Handler()
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("atlas ops api started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("atlas ops api stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	status := map[string]any{
		"service": "atlas",
		"time":    globaltime.UTC(),
	}
	if s.ping == nil {
		return success(c, status)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()
	if err := s.ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("health ping failed")
		return serverError(c, http.StatusServiceUnavailable, "Database unavailable")
	}
	status["database"] = "ok"
	return success(c, status)
}

func (s *Server) handleRuns(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failField(c, "limit", err.Error())
	}

	runs, err := s.runs.ListRuns(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list pipeline runs failed")
		return internalError(c, "Failed to load runs")
	}

	items := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		items = append(items, summarizeRun(run))
	}
	return successList(c, items, limit)
}

func (s *Server) handleRunDetail(c echo.Context) error {
	run, ok, err := s.lookupRun(c)
	if !ok {
		return err
	}
	return success(c, run)
}

func (s *Server) handleRunRouting(c echo.Context) error {
	run, ok, err := s.lookupRun(c)
	if !ok {
		return err
	}

	report, err := s.reports.RunReport(c.Request().Context(), run.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("run_uuid", run.UUID).Msg("load routing report failed")
		return internalError(c, "Failed to load routing results")
	}
	return success(c, map[string]any{
		"run":     summarizeRun(run),
		"results": report.Results,
		"stories": report.Stories,
	})
}

// lookupRun resolves :run_uuid. When ok is false the response has already
// been written and err is what the handler returns.
func (s *Server) lookupRun(c echo.Context) (pipeline.Run, bool, error) {
	raw := strings.TrimSpace(c.Param("run_uuid"))
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return pipeline.Run{}, false, failField(c, "run_uuid", "must be a UUID")
	}

	run, err := s.runs.GetRun(c.Request().Context(), parsed.String())
	switch {
	case errors.Is(err, pipeline.ErrRunNotFound):
		return pipeline.Run{}, false, failNotFound(c, "Run not found")
	case err != nil:
		s.logger.Error().Err(err).Str("run_uuid", raw).Msg("load pipeline run failed")
		return pipeline.Run{}, false, internalError(c, "Failed to load run")
	}
	return run, true, nil
}

func summarizeRun(run pipeline.Run) runSummary {
	summary := runSummary{
		UUID:         run.UUID,
		Trigger:      run.Trigger,
		Status:       run.Status,
		WindowStart:  run.WindowStart,
		WindowEnd:    run.WindowEnd,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		Stages:       len(run.Log),
		ErrorMessage: run.ErrorMessage,
	}
	if n := len(run.Log); n > 0 {
		last := run.Log[n-1]
		summary.LastStage = &last
	}
	return summary
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}
