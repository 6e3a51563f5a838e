// Package httpapi exposes comparison, upload and report endpoints over gin.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"markercompare/internal/intake"
	"markercompare/internal/logging"
	"markercompare/pkg/domain"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// DefaultMaxUploadBytes caps multipart upload bodies.
const DefaultMaxUploadBytes = 10 << 20

// Comparer runs the comparison strategies.
type Comparer interface {
	CompareFamily(ctx context.Context, baseCode string) ([]domain.ComparisonResult, error)
	CompareSameDay(ctx context.Context, sampleCode string) ([]domain.ComparisonResult, error)
	CompareAllDatabase(ctx context.Context, sampleCode string) ([]domain.ComparisonResult, error)
	CompareSamples(ctx context.Context, code1, code2 string) ([]domain.ComparisonResult, error)
	Catalog() domain.Catalog
}

// Ingester stores uploaded report files.
type Ingester interface {
	Ingest(ctx context.Context, bucket string, files []intake.File) (intake.Batch, error)
}

// Cases answers case lookups.
type Cases interface {
	CheckCase(ctx context.Context, bucket, baseCode string) (bool, error)
	AllCases(ctx context.Context) ([]domain.Case, error)
	Tables(ctx context.Context) ([]string, error)
}

// Options wires the server collaborators.
type Options struct {
	Comparer Comparer
	Ingester Ingester
	Cases    Cases
	Logger   *zap.Logger
	// Metrics is served on /metrics when set.
	Metrics        http.Handler
	MaxUploadBytes int64
}

// Server holds the HTTP handlers.
type Server struct {
	comparer  Comparer
	ingester  Ingester
	cases     Cases
	log       *zap.Logger
	metrics   http.Handler
	maxUpload int64
}

// New constructs a Server.
func New(opts Options) *Server {
	s := &Server{
		comparer:  opts.Comparer,
		ingester:  opts.Ingester,
		cases:     opts.Cases,
		log:       logging.OrNop(opts.Logger),
		metrics:   opts.Metrics,
		maxUpload: opts.MaxUploadBytes,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUploadBytes
	}
	registerValidators()
	return s
}

// Router builds the gin engine serving every route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.accessLog())

	r.GET("/health", s.health)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}
	api := r.Group("/api")
	api.POST("/compare", s.compare)
	api.POST("/upload", s.upload)
	api.GET("/check-case", s.checkCase)
	api.GET("/cases", s.listCases)
	api.GET("/tables", s.listTables)
	api.POST("/report", s.report)
	api.POST("/export", s.export)
	return r
}

// ListenAndServe serves the router on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("http server listening", zap.String("addr", addr))
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
