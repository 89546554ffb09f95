// Package handlers exposes the import pipeline over HTTP.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/catalogsync/import-service/internal/export"
	"github.com/catalogsync/import-service/internal/ingestion/zip"
	"github.com/catalogsync/import-service/internal/middleware"
	"github.com/catalogsync/import-service/internal/parsers"
	"github.com/catalogsync/import-service/internal/pipeline"
	"github.com/catalogsync/import-service/internal/scraper"
)

// DefaultMaxUploadBytes caps multipart uploads
const DefaultMaxUploadBytes = 64 << 20

// Options configures a Handler
type Options struct {
	Parsers        parsers.Options
	Export         export.Options
	MaxUploadBytes int64
	// APIKey protects /internal; empty leaves it open
	APIKey    string
	RateLimit middleware.RateLimiterConfig
	// Probes are the dependencies reported by /health, keyed by component name
	Probes map[string]Probe
}

// Handler serves the import API
type Handler struct {
	service    *pipeline.Service
	parseOpts  parsers.Options
	exportOpts export.Options
	maxUpload  int64
	apiKey     string
	limiter    *middleware.IPRateLimiter
	probes     map[string]Probe
}

// New creates a Handler over an import service
func New(service *pipeline.Service, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{
		service:    service,
		parseOpts:  opts.Parsers,
		exportOpts: opts.Export,
		maxUpload:  opts.MaxUploadBytes,
		apiKey:     opts.APIKey,
		limiter:    middleware.NewIPRateLimiter(opts.RateLimit),
		probes:     opts.Probes,
	}
}

// Limiter exposes the per-IP limiter so the server can sweep it
func (h *Handler) Limiter() *middleware.IPRateLimiter {
	return h.limiter
}

// Register mounts every route on router
func (h *Handler) Register(router gin.IRouter) {
	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	internal := router.Group("/internal")
	if h.apiKey != "" {
		internal.Use(middleware.RequireAPIKey(h.apiKey))
	} else {
		log.Warn().Msg("Internal API key not set, /internal routes are unauthenticated")
	}
	internal.Use(h.limiter.Middleware())
	{
		internal.GET("/health", h.HealthCheck)

		imports := internal.Group("/imports")
		{
			imports.POST("/preview", h.PreviewImport)
			imports.POST("/parse", h.ParseImport)
		}

		internal.POST("/exports/csv", h.ExportProducts)
		internal.POST("/scrape", h.Scrape)
	}
}

// errorStatus maps pipeline errors to HTTP status codes
func errorStatus(err error) int {
	var parseErr *pipeline.ParseError
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes), errors.Is(err, pipeline.ErrTooManyRows), errors.Is(err, zip.ErrLimitExceeded):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &parseErr), errors.Is(err, zip.ErrInvalidArchive):
		return http.StatusUnprocessableEntity
	case errors.Is(err, scraper.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, pipeline.ErrFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
