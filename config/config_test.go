package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalogsync/import-service/internal/parsers/charset"
	"github.com/catalogsync/import-service/internal/parsers/csv"
	"github.com/catalogsync/import-service/internal/scraper"
	"github.com/catalogsync/import-service/internal/storage"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, storage.StorageTypeLocal, cfg.Storage.Type)
	assert.False(t, cfg.Storage.Enabled)
	assert.Equal(t, 50000, cfg.Import.MaxRows)
	assert.True(t, cfg.Import.Export.IncludeVariants)
	assert.Equal(t, 10, cfg.Import.Export.MaxImages)
	assert.Equal(t, 2.0, cfg.Scraper.RequestsPerSecond)
	assert.Equal(t, 3, cfg.Scraper.MaxRetries)
	assert.Equal(t, "catalog.import.previews", cfg.Events.Topic)
	assert.Empty(t, cfg.Events.Brokers)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
storage:
  enabled: true
  type: s3
  s3:
    bucket: from-file
    prefix: imports
import:
  delimiter: ";"
  encoding: Windows-1252
  export:
    max_images: 4
`)
	t.Setenv("PORT", "9090")
	t.Setenv("S3_BUCKET", "from-env")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("DATABASE_URL", "postgres://catalog@db/catalog")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port, "env beats the file")
	assert.Equal(t, "from-env", cfg.Storage.S3.Bucket)
	assert.Equal(t, "imports", cfg.Storage.S3.Prefix)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.Brokers)
	assert.Equal(t, "postgres://catalog@db/catalog", cfg.CatalogSource())
	assert.Equal(t, 4, cfg.Import.Export.MaxImages)

	opts := cfg.Import.ParserOptions()
	assert.Equal(t, csv.CsvDelimiter(";"), opts.CSV.Delimiter)
	assert.Equal(t, charset.EncodingWindows1252, opts.CSV.Encoding)
	assert.Equal(t, 1, opts.CSV.SkipRows)
}

func TestLoad_PrefixedEnv(t *testing.T) {
	t.Setenv("CATALOG_IMPORT_IMPORT_MAX_ROWS", "10")
	t.Setenv("CATALOG_IMPORT_LOGGING_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Import.MaxRows)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "port out of range", body: "server:\n  port: 70000\n"},
		{name: "unknown storage", body: "storage:\n  type: ftp\n"},
		{name: "s3 without bucket", body: "storage:\n  enabled: true\n  type: s3\n"},
		{name: "long delimiter", body: "import:\n  delimiter: \"||\"\n"},
		{name: "negative max rows", body: "import:\n  max_rows: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestCatalogSource_PrefersExplicitSource(t *testing.T) {
	cfg := &Config{Catalog: CatalogConfig{Source: "sqlite:catalog.db"}}
	cfg.Database.URL = "postgres://x"
	assert.Equal(t, "sqlite:catalog.db", cfg.CatalogSource())

	cfg.Catalog.Source = ""
	assert.Equal(t, "postgres://x", cfg.CatalogSource())
}

func TestScraperConfig_NewClient(t *testing.T) {
	cfg, err := Load(writeConfig(t, "scraper:\n  requests_per_second: 7\n  user_agent: test-agent\n"))
	require.NoError(t, err)

	client := cfg.Scraper.NewClient()
	got := client.GetConfig()
	assert.Equal(t, 7.0, got.RequestsPerSecond)
	assert.Equal(t, 3, got.MaxRetries)

	assert.Equal(t, 2.0, ScraperConfig{}.NewClient().GetConfig().RequestsPerSecond, "zero config uses defaults")
	assert.False(t, cfg.Scraper.AllowPrivateHosts)
}

func TestScraperConfig_NewFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	_, _, err := ScraperConfig{}.NewFetcher().Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, scraper.ErrBlockedHost, "loopback refused by default")

	body, _, err := ScraperConfig{AllowPrivateHosts: true}.NewFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(body))
}
