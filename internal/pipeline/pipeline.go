// Package pipeline runs one import end to end: archive the upload, parse,
// build canonical products, reconcile against the catalog snapshot, and
// publish the resulting preview.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/catalogsync/import-service/internal/catalog"
	"github.com/catalogsync/import-service/internal/events"
	"github.com/catalogsync/import-service/internal/ingestion/zip"
	"github.com/catalogsync/import-service/internal/metrics"
	"github.com/catalogsync/import-service/internal/parsers"
	"github.com/catalogsync/import-service/internal/reconcile"
	"github.com/catalogsync/import-service/internal/scraper"
	"github.com/catalogsync/import-service/internal/storage"
	"github.com/catalogsync/import-service/internal/telemetry"
	"github.com/catalogsync/import-service/internal/types"
)

var (
	// ErrTooManyRows rejects an import whose row count exceeds the configured limit
	ErrTooManyRows = errors.New("pipeline: too many rows")
	// ErrBundle is returned by Analyze for ZIP uploads; use AnalyzeBundle
	ErrBundle = errors.New("pipeline: zip bundles must be analyzed with AnalyzeBundle")
	// ErrFetch wraps a product page that could not be downloaded
	ErrFetch = errors.New("pipeline: page fetch failed")
)

// ParseError is a batch-fatal failure to read an input file
type ParseError struct {
	Filename string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.Filename, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Options tunes an import service
type Options struct {
	Parsers parsers.Options
	// MaxRows rejects larger imports as a whole (0 = unlimited)
	MaxRows int
	// Concurrency bounds AnalyzeBatch (0 = 4)
	Concurrency int
}

// DefaultOptions returns default service options
func DefaultOptions() Options {
	return Options{
		Parsers:     parsers.DefaultOptions(),
		MaxRows:     50000,
		Concurrency: 4,
	}
}

// Input is one uploaded file
type Input struct {
	Tenant   string
	Filename string
	Content  []byte
	// Format overrides detection when set
	Format parsers.Format
	// SourceURL is the page address for HTML input
	SourceURL string
}

// Result is the analyzed outcome of one import
type Result struct {
	RunID      string               `json:"run_id"`
	Tenant     string               `json:"tenant"`
	Filename   string               `json:"filename,omitempty"`
	Format     parsers.Format       `json:"format"`
	RowsParsed int                  `json:"rows_parsed"`
	ArchiveKey string               `json:"archive_key,omitempty"`
	Preview    *types.ImportPreview `json:"preview"`
	Summary    types.PreviewSummary `json:"summary"`
	Duration   time.Duration        `json:"duration_ns"`
}

// Deps are the collaborators of a Service. Catalog is required; the rest fall
// back to working defaults when nil.
type Deps struct {
	Builder    *Builder
	Reconciler *reconcile.Reconciler
	Catalog    catalog.Store
	Storage    storage.Storage
	Events     events.Publisher
	Expander   *zip.Expander
	Metrics    *metrics.Recorder
	Fetcher    *scraper.Fetcher
}

// Service analyzes imports
type Service struct {
	builder    *Builder
	reconciler *reconcile.Reconciler
	catalog    catalog.Store
	storage    storage.Storage
	events     events.Publisher
	expander   *zip.Expander
	metrics    *metrics.Recorder
	fetcher    *scraper.Fetcher
	opts       Options
	tracer     trace.Tracer
	now        func() time.Time
}

// New creates a Service
func New(deps Deps, opts Options) *Service {
	s := &Service{
		builder:    deps.Builder,
		reconciler: deps.Reconciler,
		catalog:    deps.Catalog,
		storage:    deps.Storage,
		events:     deps.Events,
		expander:   deps.Expander,
		metrics:    deps.Metrics,
		fetcher:    deps.Fetcher,
		opts:       opts,
		tracer:     telemetry.Tracer(),
		now:        time.Now,
	}
	if s.builder == nil {
		s.builder = DefaultBuilder()
	}
	if s.reconciler == nil {
		s.reconciler = reconcile.New()
	}
	if s.catalog == nil {
		s.catalog = catalog.Empty{}
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	if s.expander == nil {
		s.expander = zip.NewExpander(s.storage, zip.DefaultExpandOptions())
	}
	if s.metrics == nil {
		s.metrics = metrics.NewRecorder()
	}
	if s.opts.Concurrency <= 0 {
		s.opts.Concurrency = 4
	}
	return s
}

// Analyze runs one file through the pipeline. Batch-fatal parse failures are
// returned as errors; everything row-local ends up in the preview.
func (s *Service) Analyze(ctx context.Context, in Input) (*Result, error) {
	start := s.now()
	format := in.Format
	if format == "" {
		format = parsers.DetectFormat(in.Filename, in.Content)
	}
	if format == parsers.FormatZIP {
		return nil, ErrBundle
	}

	ctx, span := s.tracer.Start(ctx, "import.analyze", trace.WithAttributes(
		attribute.String("tenant", in.Tenant),
		attribute.String("format", string(format)),
		attribute.Int("bytes", len(in.Content)),
	))
	defer span.End()

	result := &Result{
		RunID:    uuid.NewString(),
		Tenant:   in.Tenant,
		Filename: in.Filename,
		Format:   format,
	}
	logger := log.With().Str("run_id", result.RunID).Str("tenant", in.Tenant).Str("filename", in.Filename).Logger()

	fail := func(err error) (*Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.RecordImport(string(format), s.now().Sub(start), false)
		logger.Warn().Err(err).Msg("Import rejected")
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	key, err := s.archive(ctx, result.RunID, in, format)
	if err != nil {
		return fail(err)
	}
	result.ArchiveKey = key

	// Phase 1: parse
	parsed, err := s.parsePhase(ctx, format, in)
	if err != nil {
		return fail(err)
	}
	result.RowsParsed = len(parsed.Data)
	s.metrics.RecordRowsParsed(string(format), len(parsed.Data))

	if s.opts.MaxRows > 0 && len(parsed.Data) > s.opts.MaxRows {
		return fail(fmt.Errorf("%w: %d rows (limit %d)", ErrTooManyRows, len(parsed.Data), s.opts.MaxRows))
	}

	parseErrs := parseErrorsToImport(parsed.Errors)
	logRowErrors(in.Filename, "parse", parseErrs)
	s.metrics.RecordRowErrors("parse", len(parseErrs))

	// Phase 2: build
	built := s.buildPhase(ctx, parsed)
	logRowErrors(in.Filename, "build", built.Errors)
	s.metrics.RecordRowErrors("validate", len(built.Errors))
	for _, p := range built.Products {
		s.recordCoercion(p.Coercion)
	}

	// Phase 3: reconcile
	existing, err := s.catalog.Snapshot(ctx, in.Tenant)
	if err != nil {
		return fail(fmt.Errorf("failed to load catalog snapshot: %w", err))
	}
	preview := s.reconcilePhase(ctx, built.Products, existing)
	s.metrics.RecordRowErrors("reconcile", len(preview.Errors))

	mergeErrors(preview, append(parseErrs, built.Errors...))
	if len(built.Warnings) > 0 {
		preview.Warnings = built.Warnings
	}

	result.Preview = preview
	result.Summary = preview.Summary()
	result.Duration = s.now().Sub(start)

	sum := result.Summary
	s.metrics.RecordClassifications(sum.New, sum.Updates, sum.Conflicts, sum.Errors, sum.Unchanged)
	s.metrics.RecordImport(string(format), result.Duration, true)
	span.SetAttributes(
		attribute.Int("rows", result.RowsParsed),
		attribute.Int("new", sum.New),
		attribute.Int("updates", sum.Updates),
		attribute.Int("conflicts", sum.Conflicts),
		attribute.Int("errors", sum.Errors),
	)

	s.publish(ctx, result)

	logger.Info().
		Str("format", string(format)).
		Int("rows", result.RowsParsed).
		Int("new", sum.New).
		Int("updates", sum.Updates).
		Int("conflicts", sum.Conflicts).
		Int("errors", sum.Errors).
		Int("unchanged", sum.Unchanged).
		Dur("duration", result.Duration).
		Msg("Import analyzed")
	return result, nil
}

func (s *Service) parsePhase(ctx context.Context, format parsers.Format, in Input) (*types.ParseResult, error) {
	_, span := s.tracer.Start(ctx, "import.parse")
	defer span.End()

	opts := s.opts.Parsers
	if in.SourceURL != "" {
		opts.SourceURL = in.SourceURL
	}
	parsed, err := parsers.Parse(format, in.Content, opts)
	if err != nil {
		span.RecordError(err)
		return nil, &ParseError{Filename: displayName(in.Filename), Err: err}
	}
	span.SetAttributes(attribute.Int("rows", len(parsed.Data)), attribute.Int("row_errors", len(parsed.Errors)))
	return parsed, nil
}

func (s *Service) buildPhase(ctx context.Context, parsed *types.ParseResult) BuildResult {
	_, span := s.tracer.Start(ctx, "import.build")
	defer span.End()

	built := s.builder.Build(parsed.Kind, parsed.Data)
	span.SetAttributes(attribute.Int("products", len(built.Products)), attribute.Int("row_errors", len(built.Errors)))
	return built
}

func (s *Service) reconcilePhase(ctx context.Context, products []types.CanonicalProduct, existing []types.CatalogProduct) *types.ImportPreview {
	_, span := s.tracer.Start(ctx, "import.reconcile", trace.WithAttributes(
		attribute.Int("incoming", len(products)),
		attribute.Int("existing", len(existing)),
	))
	defer span.End()
	return s.reconciler.Analyze(products, existing)
}

// archive keeps a copy of the upload when storage is configured
func (s *Service) archive(ctx context.Context, runID string, in Input, format parsers.Format) (string, error) {
	if s.storage == nil || len(in.Content) == 0 {
		return "", nil
	}
	name := displayName(in.Filename)
	key := storage.BuildUploadKey(in.Tenant, s.now(), runID, name)
	meta := &storage.Metadata{
		ContentType:  zip.ContentType(name),
		OriginalName: in.Filename,
		Tenant:       in.Tenant,
		SourceURL:    in.SourceURL,
		UploadedAt:   s.now(),
		Custom:       map[string]string{"format": string(format), "run-id": runID},
	}
	if err := s.storage.Put(ctx, key, in.Content, meta); err != nil {
		return "", fmt.Errorf("failed to archive upload: %w", err)
	}
	return key, nil
}

// publish is best effort: a broker outage never fails an analyzed import
func (s *Service) publish(ctx context.Context, r *Result) {
	evt := events.PreviewEvent{
		RunID:      r.RunID,
		Tenant:     r.Tenant,
		Filename:   r.Filename,
		Format:     string(r.Format),
		Summary:    r.Summary,
		Warnings:   len(r.Preview.Warnings),
		DurationMs: r.Duration.Milliseconds(),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.events.PublishPreview(ctx, evt); err != nil {
		log.Warn().Err(err).Str("run_id", r.RunID).Msg("Preview event not published")
	}
}

func (s *Service) recordCoercion(c types.CoercionFlags) {
	if c.Price {
		s.metrics.RecordCoercionWarning("price")
	}
	if c.CostPrice {
		s.metrics.RecordCoercionWarning("cost_price")
	}
	if c.StockQuantity {
		s.metrics.RecordCoercionWarning("stock_quantity")
	}
}

func displayName(filename string) string {
	if filename == "" {
		return "upload"
	}
	return filename
}
