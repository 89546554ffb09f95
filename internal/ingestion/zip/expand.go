// Package zip expands supplier ZIP bundles into the feed files they carry.
package zip

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/catalogsync/import-service/internal/storage"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidArchive is returned when the upload is not a readable ZIP
	ErrInvalidArchive = errors.New("zip: invalid archive")
	// ErrLimitExceeded is returned when a size or file-count limit is hit
	ErrLimitExceeded = errors.New("zip: archive limit exceeded")
)

// ExpandOptions contains options for ZIP expansion
type ExpandOptions struct {
	// MaxFileSize is the maximum size for a single file in bytes (0 = unlimited)
	MaxFileSize int64 `mapstructure:"max_file_size"`
	// MaxTotalSize is the maximum total size for all extracted files (0 = unlimited)
	MaxTotalSize int64 `mapstructure:"max_total_size"`
	// MaxFiles is the maximum number of files to extract (0 = unlimited)
	MaxFiles int `mapstructure:"max_files"`
	// AllowedExtensions filters which file extensions to extract (empty = all)
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
	// SkipPatterns contains patterns to skip (e.g., "__MACOSX")
	SkipPatterns []string `mapstructure:"skip_patterns"`
}

// DefaultExpandOptions returns default options for ZIP expansion
func DefaultExpandOptions() ExpandOptions {
	return ExpandOptions{
		MaxFileSize:       50 * 1024 * 1024,  // 50MB per feed
		MaxTotalSize:      200 * 1024 * 1024, // 200MB per bundle
		MaxFiles:          100,
		AllowedExtensions: []string{".csv", ".tsv", ".json", ".xlsx", ".xml"},
		SkipPatterns:      []string{"__MACOSX", ".DS_Store", "Thumbs.db", "desktop.ini"},
	}
}

// ExpandedFile is one feed file extracted from a bundle
type ExpandedFile struct {
	InnerFilename string
	Content       []byte
	Hash          string
	Size          int64
}

// Expander handles ZIP file expansion
type Expander struct {
	storage storage.Storage
	options ExpandOptions
}

// NewExpander creates a new ZIP expander. store may be nil when files are not archived.
func NewExpander(store storage.Storage, options ExpandOptions) *Expander {
	return &Expander{
		storage: store,
		options: options,
	}
}

// Expand extracts the allowed feed files from a ZIP held in memory.
// Entries with unsafe paths, system files and other extensions are skipped.
func (e *Expander) Expand(ctx context.Context, content []byte) ([]ExpandedFile, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	// Insecure names are still readable; sanitizeFilename drops those entries
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	var expanded []ExpandedFile
	var totalSize int64
	seen := make(map[string]int)

	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if file.FileInfo().IsDir() {
			continue
		}

		safeName, err := sanitizeFilename(file.Name)
		if err != nil {
			log.Warn().Str("entry", file.Name).Err(err).Msg("Skipping unsafe ZIP entry")
			continue
		}
		if e.shouldSkip(file.Name) || !e.isAllowedExtension(safeName) {
			continue
		}

		if e.options.MaxFiles > 0 && len(expanded) >= e.options.MaxFiles {
			return nil, fmt.Errorf("%w: more than %d files", ErrLimitExceeded, e.options.MaxFiles)
		}

		// Declared size is only a hint; readFileWithLimit enforces the real one
		if e.options.MaxFileSize > 0 && file.UncompressedSize64 > uint64(e.options.MaxFileSize) {
			return nil, fmt.Errorf("%w: %s is %d bytes (limit %d)",
				ErrLimitExceeded, safeName, file.UncompressedSize64, e.options.MaxFileSize)
		}

		data, err := e.readFileWithLimit(file, safeName)
		if err != nil {
			return nil, err
		}

		totalSize += int64(len(data))
		if e.options.MaxTotalSize > 0 && totalSize > e.options.MaxTotalSize {
			return nil, fmt.Errorf("%w: total extracted size exceeds %d bytes", ErrLimitExceeded, e.options.MaxTotalSize)
		}

		// Flattening directories can collide: a/items.csv and b/items.csv
		seen[safeName]++
		if n := seen[safeName]; n > 1 {
			ext := path.Ext(safeName)
			safeName = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(safeName, ext), n, ext)
		}

		expanded = append(expanded, ExpandedFile{
			InnerFilename: safeName,
			Content:       data,
			Hash:          storage.ComputeChecksum(data),
			Size:          int64(len(data)),
		})
	}

	return expanded, nil
}

func (e *Expander) readFileWithLimit(file *zip.File, safeName string) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s in ZIP: %w", safeName, err)
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil {
			log.Warn().Str("entry", safeName).Err(closeErr).Msg("Failed to close ZIP entry")
		}
	}()

	var reader io.Reader = rc
	if e.options.MaxFileSize > 0 {
		// One extra byte tells an exact-limit file from an oversized one
		reader = io.LimitReader(rc, e.options.MaxFileSize+1)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from ZIP: %w", safeName, err)
	}
	if e.options.MaxFileSize > 0 && int64(len(data)) > e.options.MaxFileSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrLimitExceeded, safeName, e.options.MaxFileSize)
	}
	return data, nil
}

// sanitizeFilename rejects entries that would escape the extraction root
// (zip slip) and flattens the rest to their base name
func sanitizeFilename(filename string) (string, error) {
	if path.IsAbs(filename) || filepath.IsAbs(filename) {
		return "", fmt.Errorf("absolute path not allowed: %s", filename)
	}
	if len(filename) >= 2 && filename[1] == ':' {
		return "", fmt.Errorf("drive letter not allowed: %s", filename)
	}

	filename = strings.ReplaceAll(filename, "\\", "/")
	for _, part := range strings.Split(filename, "/") {
		if part == ".." {
			return "", fmt.Errorf("path traversal not allowed: %s", filename)
		}
	}

	baseName := path.Base(path.Clean(filename))
	if baseName == "." || baseName == "/" || baseName == "" {
		return "", fmt.Errorf("invalid filename: %s", filename)
	}
	return baseName, nil
}

// ExpandAndStore expands a bundle and archives every extracted file under the tenant
func (e *Expander) ExpandAndStore(ctx context.Context, content []byte, tenant string, date time.Time, parentFilename string) ([]ExpandedFile, error) {
	expanded, err := e.Expand(ctx, content)
	if err != nil {
		return nil, err
	}
	if e.storage == nil {
		return expanded, nil
	}

	for _, file := range expanded {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		key := storage.BuildExpandedKey(tenant, date, parentFilename, file.InnerFilename)
		metadata := &storage.Metadata{
			ContentType:  ContentType(file.InnerFilename),
			OriginalName: file.InnerFilename,
			Tenant:       tenant,
			UploadedAt:   date,
			Custom:       map[string]string{"parent-zip": parentFilename},
		}
		if err := e.storage.Put(ctx, key, file.Content, metadata); err != nil {
			return nil, fmt.Errorf("failed to store expanded file %s: %w", file.InnerFilename, err)
		}
	}

	log.Info().
		Str("tenant", tenant).
		Str("bundle", parentFilename).
		Int("files", len(expanded)).
		Msg("Expanded supplier bundle")
	return expanded, nil
}

func (e *Expander) shouldSkip(name string) bool {
	for _, pattern := range e.options.SkipPatterns {
		if strings.Contains(name, pattern) {
			return true
		}
	}
	// Hidden files and AppleDouble resource forks
	return strings.HasPrefix(path.Base(name), ".")
}

func (e *Expander) isAllowedExtension(filename string) bool {
	if len(e.options.AllowedExtensions) == 0 {
		return true
	}
	ext := filepath.Ext(filename)
	for _, allowed := range e.options.AllowedExtensions {
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}

// ContentType returns the MIME type for a feed filename
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return "text/csv"
	case ".tsv":
		return "text/tab-separated-values"
	case ".json":
		return "application/json"
	case ".xml":
		return "application/xml"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".html", ".htm":
		return "text/html"
	case ".zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
