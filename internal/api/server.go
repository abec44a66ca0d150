// Package api serves the administrative HTTP API: job and file status,
// manual reindexing, keyword search and library index configuration.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/index"
	"github.com/Aman-CERP/amankb/internal/store"
	"github.com/Aman-CERP/amankb/internal/textindex"
	"github.com/Aman-CERP/amankb/internal/worker"
)

// Reindexer rebuilds index entries on request.
type Reindexer interface {
	ReindexFile(ctx context.Context, fileID int64) error
	ReindexLibrary(ctx context.Context, kbID int64) (*index.LibraryResult, error)
}

// Searcher runs keyword searches.
type Searcher interface {
	Search(ctx context.Context, req textindex.SearchRequest) (*textindex.SearchResult, error)
}

// LibraryConfigurer saves and resets library index configuration.
type LibraryConfigurer interface {
	SaveIndexConfig(ctx context.Context, kbID int64, mode, textConfig, vectorConfig string) (*store.Library, error)
	ResetIndexConfig(ctx context.Context, kbID int64) (*store.Library, error)
}

// Pinger reports whether the metadata store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds the collaborators of a Server.
type Dependencies struct {
	Jobs      store.JobStore
	Files     store.FileStore
	Reindexer Reindexer
	Searcher  Searcher
	Libraries LibraryConfigurer

	// Optional.
	DB     Pinger
	Worker func() worker.StatusSnapshot
}

// Server wraps an echo instance with the API routes registered.
type Server struct {
	echo *echo.Echo
	deps Dependencies
}

// New builds the router.
func New(deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				slog.Warn("http_request_failed", append(attrs, slog.String("error", v.Error.Error()))...)
				return nil
			}
			slog.Debug("http_request", attrs...)
			return nil
		},
	}))

	s := &Server{echo: e, deps: deps}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/healthz", s.health)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/jobs/:id", s.getJob)
	v1.GET("/files/:id", s.getFile)
	v1.POST("/reindex/files/:id", s.reindexFile)
	v1.POST("/reindex/libraries/:id", s.reindexLibrary)
	v1.GET("/search", s.search)
	v1.PUT("/libraries/:id/index-config", s.saveIndexConfig)
	v1.POST("/libraries/:id/index-config/reset", s.resetIndexConfig)
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("api_server_started", slog.String("addr", addr))
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("api_server_stopped")
	return nil
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code       string `json:"code"`
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
}

// statusFor maps an error code to an HTTP status.
func statusFor(err error) int {
	switch kberrors.GetCode(err) {
	case kberrors.ErrCodeValidation, kberrors.ErrCodeConfigInvalid:
		return http.StatusBadRequest
	case kberrors.ErrCodeNotFound, kberrors.ErrCodeFileNotFound:
		return http.StatusNotFound
	case kberrors.ErrCodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case kberrors.ErrCodeBackend, kberrors.ErrCodeBackendPartial:
		return http.StatusBadGateway
	case kberrors.ErrCodeBackendUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, _ := he.Message.(string)
		if msg == "" {
			msg = http.StatusText(he.Code)
		}
		_ = c.JSON(he.Code, errorBody{Code: "HTTP_" + http.StatusText(he.Code), Error: msg})
		return
	}

	body := errorBody{Code: kberrors.ErrCodeInternal, Error: kberrors.SafeMessage(err, 0)}
	if ke, ok := kberrors.As(err); ok {
		body.Code = ke.Code
		body.Suggestion = ke.Suggestion
	}
	_ = c.JSON(statusFor(err), body)
}
