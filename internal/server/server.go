// Package server exposes the analyzer and the identity proxy over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/codegraph/internal/analyze"
	"github.com/phobologic/codegraph/internal/archive"
	"github.com/phobologic/codegraph/internal/auth"
	"github.com/phobologic/codegraph/internal/config"
)

// serviceName names the otel instrumentation.
const serviceName = "codegraph"

// multipartSlack is room for multipart boundaries and headers on top of the
// archive itself.
const multipartSlack = 1 << 20

const shutdownTimeout = 10 * time.Second

// Server wires the HTTP routes to an Analyzer and an identity Proxy.
type Server struct {
	cfg      *config.Config
	analyzer *analyze.Analyzer
	proxy    *auth.Proxy
	logger   *slog.Logger
	engine   *gin.Engine
}

// New builds a Server from cfg. A nil logger means slog.Default().
func New(cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	analyzer := analyze.New(archive.Options{
		MaxArchiveBytes: cfg.Analyze.MaxUploadBytes,
		MaxFileBytes:    cfg.Analyze.MaxFileBytes,
		Extensions:      cfg.Analyze.Extensions,
		Exclude:         cfg.Analyze.Exclude,
	}, logger)

	s := &Server{
		cfg:      cfg,
		analyzer: analyzer,
		proxy:    auth.NewProxy(cfg.Identity, cfg.Production(), logger),
		logger:   logger,
	}
	s.engine = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(Recovery(s.logger))
	router.Use(otelgin.Middleware(serviceName))
	router.Use(RequestID())
	router.Use(AccessLog(s.logger))

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/upload", s.handleUpload)
	}
	auth.RegisterRoutes(api, s.proxy)

	return router
}

// Run serves on cfg.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("starting server", slog.String("address", s.cfg.Addr), slog.String("env", s.cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleUpload analyzes the zip archive in the multipart field "file".
func (s *Server) handleUpload(c *gin.Context) {
	limit := s.cfg.Analyze.MaxUploadBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartSlack)

	header, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.tooLarge(c)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	if header.Size > limit {
		s.tooLarge(c)
		return
	}

	f, err := header.Open()
	if err != nil {
		s.fail(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		s.fail(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.Analyze.Timeout)
	defer cancel()

	res, err := s.analyzer.AnalyzeArchive(ctx, data)
	var parseErr *archive.ParseError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case errors.Is(err, archive.ErrPayloadTooLarge):
		s.tooLarge(c)
	case errors.As(err, &parseErr):
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		s.fail(c, fmt.Errorf("analysis exceeded %s", s.cfg.Analyze.Timeout))
	default:
		s.fail(c, err)
	}
}

func (s *Server) tooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Zip too large (> " + formatSize(s.cfg.Analyze.MaxUploadBytes) + ")"})
}

func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func formatSize(n int64) string {
	if n >= 1<<20 && n%(1<<20) == 0 {
		return fmt.Sprintf("%dMB", n>>20)
	}
	return fmt.Sprintf("%d bytes", n)
}
