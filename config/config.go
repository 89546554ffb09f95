package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/catalogsync/import-service/internal/database"
	"github.com/catalogsync/import-service/internal/events"
	"github.com/catalogsync/import-service/internal/export"
	fetchhttp "github.com/catalogsync/import-service/internal/http"
	"github.com/catalogsync/import-service/internal/http/ratelimit"
	"github.com/catalogsync/import-service/internal/middleware"
	"github.com/catalogsync/import-service/internal/parsers"
	"github.com/catalogsync/import-service/internal/parsers/charset"
	"github.com/catalogsync/import-service/internal/parsers/csv"
	"github.com/catalogsync/import-service/internal/scraper"
	"github.com/catalogsync/import-service/internal/storage"
	"github.com/catalogsync/import-service/internal/telemetry"
)

// EnvPrefix prefixes every environment override, e.g. CATALOG_IMPORT_SERVER_PORT
const EnvPrefix = "CATALOG_IMPORT"

// Config holds the application configuration
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Database  database.Config  `mapstructure:"database"`
	Catalog   CatalogConfig    `mapstructure:"catalog"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Import    ImportConfig     `mapstructure:"import"`
	Scraper   ScraperConfig    `mapstructure:"scraper"`
	Events    events.Config    `mapstructure:"events"`
	Telemetry telemetry.Config `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int                          `mapstructure:"port"`
	Host           string                       `mapstructure:"host"`
	ReadTimeout    time.Duration                `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration                `mapstructure:"write_timeout"`
	APIKey         string                       `mapstructure:"api_key"`
	MaxUploadBytes int64                        `mapstructure:"max_upload_bytes"`
	RateLimit      middleware.RateLimiterConfig `mapstructure:"rate_limit"`
}

// CatalogConfig locates the existing catalog. Source is a DSN understood by
// catalog.Open; empty falls back to the database URL.
type CatalogConfig struct {
	Source string `mapstructure:"source"`
}

// StorageConfig selects where uploads are archived. Retention 0 keeps files forever.
type StorageConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Retention      time.Duration `mapstructure:"retention"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	storage.Config `mapstructure:",squash"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

// ImportConfig tunes parsing, export and limits
type ImportConfig struct {
	Delimiter   string         `mapstructure:"delimiter"`
	Encoding    string         `mapstructure:"encoding"`
	SkipRows    int            `mapstructure:"skip_rows"`
	SheetName   string         `mapstructure:"sheet_name"`
	RecordsPath string         `mapstructure:"records_path"`
	ItemElement string         `mapstructure:"item_element"`
	MaxRows     int            `mapstructure:"max_rows"`
	Concurrency int            `mapstructure:"concurrency"`
	Export      export.Options `mapstructure:"export"`
}

// ScraperConfig configures supplier page fetching
type ScraperConfig struct {
	ratelimit.Config `mapstructure:",squash"`
	Timeout          time.Duration `mapstructure:"timeout"`
	UserAgent        string        `mapstructure:"user_agent"`
	MaxBodyBytes     int64         `mapstructure:"max_body_bytes"`
	// AllowPrivateHosts lets the scraper reach loopback and private networks
	AllowPrivateHosts bool `mapstructure:"allow_private_hosts"`
}

// NewClient builds the rate-limited page client
func (c ScraperConfig) NewClient() *fetchhttp.Client {
	limits := c.Config
	if limits.RequestsPerSecond == 0 && limits.MaxRetries == 0 && limits.MaxBackoffMs == 0 {
		limits = ratelimit.DefaultConfig()
	}
	opts := make([]fetchhttp.Option, 0, 3)
	if c.UserAgent != "" {
		opts = append(opts, fetchhttp.WithUserAgent(c.UserAgent))
	}
	if c.Timeout > 0 {
		opts = append(opts, fetchhttp.WithTimeout(c.Timeout))
	}
	if c.MaxBodyBytes > 0 {
		opts = append(opts, fetchhttp.WithMaxBodySize(c.MaxBodyBytes))
	}
	return fetchhttp.NewClient(limits, opts...)
}

// NewFetcher builds the page fetcher over NewClient
func (c ScraperConfig) NewFetcher() *scraper.Fetcher {
	if c.AllowPrivateHosts {
		return scraper.NewFetcher(c.NewClient(), scraper.WithPrivateHosts())
	}
	return scraper.NewFetcher(c.NewClient())
}

// ParserOptions converts the import section into parser options
func (c ImportConfig) ParserOptions() parsers.Options {
	opts := parsers.DefaultOptions()
	opts.CSV.Delimiter = csv.CsvDelimiter(c.Delimiter)
	if c.Encoding != "" {
		opts.CSV.Encoding = charset.Encoding(strings.ToLower(c.Encoding))
		opts.XML.Encoding = c.Encoding
	}
	if c.SkipRows > 0 {
		opts.CSV.SkipRows = c.SkipRows
	}
	opts.XLSX.SheetName = c.SheetName
	opts.JSON.RecordsPath = c.RecordsPath
	if c.ItemElement != "" {
		opts.XML.ItemElement = c.ItemElement
	}
	return opts
}

// Load loads the configuration from file, .env, and environment variables.
// An empty configPath searches ./config and the working directory for config.yaml.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// .env is optional
	if path, err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg(".env file not loaded")
	} else {
		log.Debug().Str("path", path).Msg("Loaded .env file")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("error binding environment: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no component can run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Storage.Type {
	case storage.StorageTypeLocal, storage.StorageTypeS3:
	default:
		return fmt.Errorf("invalid storage type: %q", c.Storage.Type)
	}
	if c.Storage.Enabled && c.Storage.Type == storage.StorageTypeS3 && c.Storage.S3.Bucket == "" {
		return errors.New("storage.s3.bucket is required for s3 storage")
	}
	if c.Import.Delimiter != "" && len([]rune(c.Import.Delimiter)) != 1 {
		return fmt.Errorf("import delimiter must be one character, got %q", c.Import.Delimiter)
	}
	if c.Import.MaxRows < 0 {
		return fmt.Errorf("import max_rows must not be negative: %d", c.Import.MaxRows)
	}
	return nil
}

// CatalogSource returns the catalog DSN, falling back to the database URL
func (c *Config) CatalogSource() string {
	if c.Catalog.Source != "" {
		return c.Catalog.Source
	}
	return c.Database.URL
}

// loadEnvFile loads the first .env found; existing environment variables win
func loadEnvFile() (string, error) {
	for _, dir := range []string{".", "./config"} {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return "", fmt.Errorf("failed to load %s: %w", path, err)
		}
		return path, nil
	}
	return "", errors.New("no .env file found")
}

// bindEnvVars binds the unprefixed variables deployments commonly set
func bindEnvVars(v *viper.Viper) error {
	binds := []struct {
		key string
		env []string
	}{
		{"database.url", []string{EnvPrefix + "_DATABASE_URL", "DATABASE_URL"}},
		{"server.port", []string{EnvPrefix + "_SERVER_PORT", "PORT"}},
		{"server.host", []string{EnvPrefix + "_SERVER_HOST", "HOST"}},
		{"server.api_key", []string{EnvPrefix + "_SERVER_API_KEY", "INTERNAL_API_KEY"}},
		{"logging.level", []string{EnvPrefix + "_LOGGING_LEVEL", "LOG_LEVEL"}},
		{"storage.local_path", []string{EnvPrefix + "_STORAGE_LOCAL_PATH", "STORAGE_PATH"}},
		{"storage.s3.bucket", []string{EnvPrefix + "_STORAGE_S3_BUCKET", "S3_BUCKET"}},
		{"storage.s3.region", []string{EnvPrefix + "_STORAGE_S3_REGION", "AWS_REGION"}},
		{"events.brokers", []string{EnvPrefix + "_EVENTS_BROKERS", "KAFKA_BROKERS"}},
		{"telemetry.endpoint", []string{EnvPrefix + "_TELEMETRY_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}},
	}
	for _, b := range binds {
		if err := v.BindEnv(append([]string{b.key}, b.env...)...); err != nil {
			return err
		}
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.max_upload_bytes", 64<<20)
	v.SetDefault("server.rate_limit.requests_per_second", 5)
	v.SetDefault("server.rate_limit.burst_size", 10)
	v.SetDefault("server.rate_limit.idle_ttl", 10*time.Minute)

	// Database defaults
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 1)
	v.SetDefault("database.max_conn_lifetime", 1*time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)

	// Storage defaults
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./data/uploads")
	v.SetDefault("storage.retention", 30*24*time.Hour)
	v.SetDefault("storage.sweep_interval", time.Hour)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)

	// Import defaults
	v.SetDefault("import.skip_rows", 1)
	v.SetDefault("import.max_rows", 50000)
	v.SetDefault("import.concurrency", 4)
	v.SetDefault("import.export.include_variants", true)
	v.SetDefault("import.export.include_images", true)
	v.SetDefault("import.export.max_images", export.DefaultMaxImages)
	v.SetDefault("import.export.delimiter", ",")

	// Scraper defaults
	v.SetDefault("scraper.requests_per_second", 2)
	v.SetDefault("scraper.burst", 1)
	v.SetDefault("scraper.max_retries", 3)
	v.SetDefault("scraper.initial_backoff_ms", 100)
	v.SetDefault("scraper.max_backoff_ms", 30000)
	v.SetDefault("scraper.timeout", 30*time.Second)
	v.SetDefault("scraper.max_body_bytes", 10<<20)
	v.SetDefault("scraper.allow_private_hosts", false)

	// Events defaults
	v.SetDefault("events.topic", "catalog.import.previews")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "catalog-import")
	v.SetDefault("telemetry.environment", "development")
}
