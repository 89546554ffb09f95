package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/catalogsync/import-service/internal/parsers"
)

// FileOutcome is the result of one file of a batch. Exactly one of Result and
// Err is set.
type FileOutcome struct {
	Filename string  `json:"filename"`
	Result   *Result `json:"result,omitempty"`
	Err      error   `json:"-"`
	Error    string  `json:"error,omitempty"`
}

// BatchResult holds per-file outcomes in input order
type BatchResult struct {
	Files     []FileOutcome `json:"files"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
}

// AnalyzeBatch analyzes inputs concurrently. A failed file does not stop the
// others; only context cancellation aborts the batch.
func (s *Service) AnalyzeBatch(ctx context.Context, inputs []Input) (*BatchResult, error) {
	out := &BatchResult{Files: make([]FileOutcome, len(inputs))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.Analyze(gctx, in)
			outcome := FileOutcome{Filename: in.Filename, Result: res, Err: err}
			if err != nil {
				outcome.Error = err.Error()
			}
			out.Files[i] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, f := range out.Files {
		if f.Err != nil {
			out.Failed++
		} else {
			out.Succeeded++
		}
	}
	return out, nil
}

// AnalyzeBundle expands a supplier ZIP and analyzes every feed file in it
func (s *Service) AnalyzeBundle(ctx context.Context, tenant, filename string, content []byte) (*BatchResult, error) {
	files, err := s.expander.ExpandAndStore(ctx, content, tenant, s.now(), displayName(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to expand %s: %w", displayName(filename), err)
	}

	inputs := make([]Input, 0, len(files))
	for _, f := range files {
		inputs = append(inputs, Input{Tenant: tenant, Filename: f.InnerFilename, Content: f.Content})
	}
	log.Debug().Str("bundle", filename).Int("files", len(inputs)).Msg("Analyzing bundle")
	return s.AnalyzeBatch(ctx, inputs)
}

// AnalyzeAny routes ZIP uploads to AnalyzeBundle and everything else to Analyze
func (s *Service) AnalyzeAny(ctx context.Context, in Input) (*BatchResult, error) {
	format := in.Format
	if format == "" {
		format = parsers.DetectFormat(in.Filename, in.Content)
	}
	if format == parsers.FormatZIP {
		return s.AnalyzeBundle(ctx, in.Tenant, in.Filename, in.Content)
	}
	in.Format = format
	res, err := s.Analyze(ctx, in)
	if err != nil {
		return nil, err
	}
	return &BatchResult{
		Files:     []FileOutcome{{Filename: in.Filename, Result: res}},
		Succeeded: 1,
	}, nil
}

// AnalyzeURL fetches a supplier product page and analyzes it as HTML
func (s *Service) AnalyzeURL(ctx context.Context, tenant, rawURL string) (*Result, error) {
	if s.fetcher == nil {
		return nil, fmt.Errorf("pipeline: page fetching is not configured")
	}
	body, pageURL, err := s.fetcher.Fetch(ctx, rawURL)
	s.metrics.RecordScrapeFetch(err == nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return s.Analyze(ctx, Input{
		Tenant:    tenant,
		Filename:  pageURL,
		Content:   body,
		Format:    parsers.FormatHTML,
		SourceURL: pageURL,
	})
}
