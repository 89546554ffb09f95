// Package catalog loads read-only snapshots of a tenant's existing catalog for
// reconciliation. Writing imported products back is handled elsewhere.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/catalogsync/import-service/internal/types"
)

// Store returns the current catalog of a tenant, in insertion order.
// Order matters: the reconciler keeps the first record on duplicate SKUs or names.
type Store interface {
	Snapshot(ctx context.Context, tenant string) ([]types.CatalogProduct, error)
	Close() error
}

// Open picks a store implementation from a DSN:
// postgres:// or postgresql:// URLs, sqlite:<path> or *.db/*.sqlite files, *.json snapshots.
func Open(ctx context.Context, dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	lower := strings.ToLower(dsn)
	switch {
	case dsn == "":
		return Empty{}, nil
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return OpenPostgres(ctx, dsn)
	case strings.HasPrefix(lower, "sqlite:"):
		return OpenSQLite(ctx, strings.TrimPrefix(dsn[len("sqlite:"):], "//"))
	}

	switch strings.ToLower(filepath.Ext(dsn)) {
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQLite(ctx, dsn)
	case ".json":
		return LoadFile(dsn)
	}
	return nil, fmt.Errorf("unrecognized catalog source %q", dsn)
}

// FileStore serves a JSON snapshot: an array of products, or an object keyed by tenant
type FileStore struct {
	all      []types.CatalogProduct
	byTenant map[string][]types.CatalogProduct
}

// LoadFile reads a JSON snapshot from disk
func LoadFile(path string) (*FileStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog snapshot: %w", err)
	}
	return ParseSnapshot(data)
}

// ParseSnapshot decodes a JSON snapshot
func ParseSnapshot(data []byte) (*FileStore, error) {
	trimmed := strings.TrimSpace(string(data))
	fs := &FileStore{}
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(data, &fs.byTenant); err != nil {
			return nil, fmt.Errorf("invalid catalog snapshot: %w", err)
		}
		return fs, nil
	}
	if err := json.Unmarshal(data, &fs.all); err != nil {
		return nil, fmt.Errorf("invalid catalog snapshot: %w", err)
	}
	return fs, nil
}

// Snapshot returns the tenant's products; array snapshots ignore the tenant
func (f *FileStore) Snapshot(_ context.Context, tenant string) ([]types.CatalogProduct, error) {
	if f.byTenant != nil {
		return normalizeStatus(f.byTenant[tenant]), nil
	}
	return normalizeStatus(f.all), nil
}

// Close does nothing
func (f *FileStore) Close() error { return nil }

// Empty is a store with no products; every incoming product is new
type Empty struct{}

// Snapshot returns no products
func (Empty) Snapshot(context.Context, string) ([]types.CatalogProduct, error) {
	return []types.CatalogProduct{}, nil
}

// Close does nothing
func (Empty) Close() error { return nil }

func normalizeStatus(products []types.CatalogProduct) []types.CatalogProduct {
	out := make([]types.CatalogProduct, len(products))
	for i, p := range products {
		if p.Status == "" {
			p.Status = types.StatusActive
		}
		out[i] = p
	}
	return out
}
