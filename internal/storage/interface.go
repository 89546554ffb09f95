package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// Metadata contains file metadata for storage
type Metadata struct {
	ContentType  string            `json:"contentType,omitempty"`
	OriginalName string            `json:"originalName,omitempty"`
	Tenant       string            `json:"tenant,omitempty"`
	SourceURL    string            `json:"sourceUrl,omitempty"`
	UploadedAt   time.Time         `json:"uploadedAt,omitempty"`
	Custom       map[string]string `json:"custom,omitempty"`
}

// FileInfo contains information about a stored file
type FileInfo struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	ContentType string    `json:"contentType,omitempty"`
	ModifiedAt  time.Time `json:"modifiedAt"`
	Metadata    *Metadata `json:"metadata,omitempty"`
}

// Storage archives uploaded supplier files.
// Implementations: local filesystem, S3.
type Storage interface {
	// Put stores content at the given key with optional metadata
	Put(ctx context.Context, key string, content []byte, metadata *Metadata) error

	// Get retrieves content from the given key
	Get(ctx context.Context, key string) ([]byte, error)

	// GetInfo retrieves file information without content
	GetInfo(ctx context.Context, key string) (*FileInfo, error)

	// Exists checks if a file exists at the given key
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes a file at the given key
	Delete(ctx context.Context, key string) error

	// List returns all keys matching the given prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// GetChecksum returns the checksum for a file (without reading full content)
	GetChecksum(ctx context.Context, key string) (string, error)
}

// StorageType represents the type of storage backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

// Config selects and configures a storage backend
type Config struct {
	Type      StorageType `mapstructure:"type"`
	LocalPath string      `mapstructure:"local_path"`
	S3        S3Config    `mapstructure:"s3"`
}

// New builds the configured backend
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Type {
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	case StorageTypeS3:
		return NewS3Storage(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage type: %q", cfg.Type)
	}
}

// BuildUploadKey builds a storage key for an uploaded import file
func BuildUploadKey(tenant string, date time.Time, runID, filename string) string {
	return path.Join("uploads", keySegment(tenant), date.Format("2006-01-02"), runID, keySegment(filename))
}

// BuildExpandedKey builds a storage key for a file extracted from an uploaded ZIP bundle
func BuildExpandedKey(tenant string, date time.Time, parentFilename, innerFilename string) string {
	parentBase := parentFilename
	if ext := path.Ext(parentBase); strings.EqualFold(ext, ".zip") {
		parentBase = strings.TrimSuffix(parentBase, ext)
	}
	return path.Join("expanded", keySegment(tenant), date.Format("2006-01-02"), keySegment(parentBase), keySegment(innerFilename))
}

// keySegment keeps user-supplied names from introducing path separators
func keySegment(s string) string {
	s = strings.NewReplacer("/", "_", "\\", "_").Replace(strings.TrimSpace(s))
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
