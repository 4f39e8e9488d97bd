package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/byte4ever/usulan/proposal"
)

// HeaderRequestID carries the request id on requests and
// responses.
const HeaderRequestID = "X-Request-ID"

const requestIDKey = "request_id"

// Submitter turns a validated request into a proposal.
type Submitter interface {
	Submit(
		ctx context.Context,
		req proposal.Request,
	) (*proposal.Result, error)
}

// Config holds the HTTP server settings.
type Config struct {
	// Listen is the TCP address to serve on.
	Listen string
	// Paths lists the submission routes.
	Paths []string
	// RequestTimeout bounds one submission. Zero means
	// no limit beyond the client connection.
	RequestTimeout time.Duration
	// ShutdownTimeout bounds the graceful shutdown.
	ShutdownTimeout time.Duration
	// MaxBodyBytes caps the request body size.
	MaxBodyBytes int64
	// LegacyErrors answers every remote failure with a
	// generic 500.
	LegacyErrors bool
	// ExposeErrorDetail puts raw failure messages in
	// the error field of responses.
	ExposeErrorDetail bool
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Server is the HTTP front end.
type Server struct {
	router    *gin.Engine
	cfg       Config
	submitter Submitter
	logger    *slog.Logger
}

// New builds a Server routing submissions to sub.
func New(sub Submitter, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		router:    gin.New(),
		cfg:       cfg,
		submitter: sub,
		logger:    cfg.Logger,
	}

	s.setupRoutes()

	return s
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(
		gin.Recovery(),
		s.requestID,
		s.accessLog,
	)

	s.router.GET("/healthz", func(c *gin.Context) {
		writeJSON(c, http.StatusOK, healthResponse{Status: "ok"})
	})

	if s.cfg.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.cfg.Metrics))
	}

	for _, p := range s.cfg.Paths {
		s.router.Any(p, s.submitWord)
	}

	// Any only registers the standard verbs. Extension
	// methods such as PROPFIND land here.
	s.router.NoRoute(s.noRoute)
}

func (s *Server) noRoute(c *gin.Context) {
	if slices.Contains(s.cfg.Paths, c.Request.URL.Path) {
		s.submitWord(c)

		return
	}

	writeJSON(c, http.StatusNotFound, errorResponse{
		Message: MsgNotFound,
	})
}

// requestID reuses the caller's request id or assigns a
// new one.
func (s *Server) requestID(c *gin.Context) {
	id := c.GetHeader(HeaderRequestID)
	if id == "" {
		id = uuid.NewString()
	}

	c.Set(requestIDKey, id)
	c.Header(HeaderRequestID, id)
	c.Next()
}

func (s *Server) accessLog(c *gin.Context) {
	start := time.Now()

	c.Next()

	s.logger.Info(
		"handled request",
		"request_id", c.GetString(requestIDKey),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start),
	)
}

func (s *Server) submitWord(c *gin.Context) {
	logger := s.logger.With(
		"request_id", c.GetString(requestIDKey),
	)

	var body []byte

	if c.Request.Method == http.MethodPost {
		var err error

		body, err = io.ReadAll(http.MaxBytesReader(
			c.Writer, c.Request.Body, s.cfg.MaxBodyBytes,
		))
		if err != nil {
			s.fail(c, logger, &proposal.ValidationError{
				Reason: proposal.ErrMalformedBody,
				Err:    err,
			})

			return
		}
	}

	req, err := proposal.DecodeRequest(c.Request.Method, body)
	if err != nil {
		s.fail(c, logger, err)

		return
	}

	ctx := c.Request.Context()

	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	res, err := s.submitter.Submit(ctx, req)
	if err != nil {
		s.fail(c, logger, err)

		return
	}

	logger.Info(
		"proposal submitted",
		"branch", res.Branch,
		"pr_url", res.PRURL,
	)

	writeJSON(c, http.StatusOK, successResponse{
		Message: res.Message,
		PRURL:   res.PRURL,
	})
}

func (s *Server) fail(
	c *gin.Context,
	logger *slog.Logger,
	err error,
) {
	f := s.describe(err)

	attrs := []any{
		"kind", proposal.KindOf(err),
		"status", f.status,
		"error", err,
	}

	var pe *proposal.Error
	if errors.As(err, &pe) {
		attrs = append(attrs, "step", pe.Step, "branch", pe.Branch)
	}

	if f.status >= http.StatusInternalServerError {
		logger.Error("submission failed", attrs...)
	} else {
		logger.Warn("submission rejected", attrs...)
	}

	writeJSON(c, f.status, f.body)
}

// writeJSON encodes v with go-json.
func writeJSON(c *gin.Context, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.Data(
			http.StatusInternalServerError,
			"application/json; charset=utf-8",
			[]byte(`{"message":"`+MsgInternal+`"}`),
		)

		return
	}

	c.Data(status, "application/json; charset=utf-8", raw)
}

// Run serves on cfg.Listen until ctx is done, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	const errCtx = "running http server"

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done. In-flight
// submissions are allowed to finish within
// ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	const errCtx = "serving http"

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("%s: %w", errCtx, err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(
		context.WithoutCancel(ctx), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s: shutdown: %w", errCtx, err)
	}

	return nil
}
