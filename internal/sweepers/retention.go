// Package sweepers runs periodic maintenance over archived uploads.
package sweepers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/catalogsync/import-service/internal/storage"
)

// ArchivePrefixes are the key roots the retention sweep walks
var ArchivePrefixes = []string{"uploads/", "expanded/"}

// RetentionSweeper periodically deletes archived files older than the retention window
type RetentionSweeper struct {
	store     storage.Storage
	logger    *zerolog.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	stopChan  chan struct{}
}

// NewRetentionSweeper creates a sweeper for the upload archive
func NewRetentionSweeper(store storage.Storage, logger *zerolog.Logger, interval, retention time.Duration) *RetentionSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RetentionSweeper{
		store:     store,
		logger:    logger,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the periodic sweep
func (s *RetentionSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Dur("retention", s.retention).
		Msg("Starting upload retention sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Upload retention sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Upload retention sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Failed to sweep upload archive")
			}
		}
	}
}

// Stop signals the sweeper to stop
func (s *RetentionSweeper) Stop() {
	close(s.stopChan)
}

// Sweep deletes every archived file last modified before the retention cutoff
// and returns how many were removed. Files that vanish mid-sweep are skipped.
func (s *RetentionSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.retention)
	s.logger.Debug().Time("cutoff", cutoff).Msg("Running upload retention sweep")

	deleted := 0
	for _, prefix := range ArchivePrefixes {
		keys, err := s.store.List(ctx, prefix)
		if err != nil {
			return deleted, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				return deleted, err
			}
			info, err := s.store.GetInfo(ctx, key)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return deleted, fmt.Errorf("failed to stat %s: %w", key, err)
			}
			if !info.ModifiedAt.Before(cutoff) {
				continue
			}
			if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return deleted, fmt.Errorf("failed to delete %s: %w", key, err)
			}
			deleted++
		}
	}

	if deleted > 0 {
		s.logger.Info().
			Int("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("Pruned archived uploads")
	}
	return deleted, nil
}
