package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/catalogsync/import-service/config"
	"github.com/catalogsync/import-service/internal/catalog"
	"github.com/catalogsync/import-service/internal/events"
	"github.com/catalogsync/import-service/internal/ingestion/zip"
	"github.com/catalogsync/import-service/internal/pipeline"
	"github.com/catalogsync/import-service/internal/storage"
)

var (
	cfgFile      string
	outputFormat string
	verbose      bool
	cfg          *config.Config
	logger       *zerolog.Logger
	stdout       io.Writer = os.Stdout
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "catalog-import",
	Short: "Catalog import CLI - supplier feed normalization and preview",
	Long: `A CLI tool for normalizing supplier product feeds (CSV, Excel, JSON, XML, ZIP
bundles and product pages) into canonical products, previewing them against an
existing catalog, and exporting them as a storefront import file.`,
	PersistentPreRunE: persistentPreRun,
	SilenceUsage:      true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml or ./config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table or json")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline detail to stderr")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		// Config is optional for the CLI, fall back to defaults
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
	}
}

func persistentPreRun(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}
	switch outputFormat {
	case "table", "json":
	default:
		return fmt.Errorf("invalid output format: %s (use 'table' or 'json')", outputFormat)
	}

	logger = initLogger()
	log.Logger = *logger
	return nil
}

// initLogger writes to stderr so --output json stays machine readable
func initLogger() *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	noColor := cfg != nil && cfg.Logging.NoColor
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: noColor}).Level(level).With().Timestamp().Logger()
	return &l
}

func loadedConfig() *config.Config {
	if cfg != nil {
		return cfg
	}
	fallback, err := config.Load("")
	if err != nil {
		return &config.Config{}
	}
	cfg = fallback
	return cfg
}

// newService wires a pipeline the way the server does, over a local catalog source
func newService(ctx context.Context, catalogSource string) (*pipeline.Service, func(), error) {
	c := loadedConfig()
	if catalogSource == "" {
		catalogSource = c.Catalog.Source
	}
	store, err := catalog.Open(ctx, catalogSource)
	if err != nil {
		return nil, nil, err
	}

	var archive storage.Storage
	if c.Storage.Enabled {
		archive, err = storage.New(ctx, c.Storage.Config)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
	}
	publisher := events.New(c.Events)

	opts := pipeline.DefaultOptions()
	opts.Parsers = c.Import.ParserOptions()
	opts.MaxRows = c.Import.MaxRows
	if c.Import.Concurrency > 0 {
		opts.Concurrency = c.Import.Concurrency
	}

	svc := pipeline.New(pipeline.Deps{
		Catalog:  store,
		Storage:  archive,
		Events:   publisher,
		Expander: zip.NewExpander(archive, zip.DefaultExpandOptions()),
	}, opts)

	cleanup := func() {
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close event publisher")
		}
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close catalog store")
		}
	}
	return svc, cleanup, nil
}

func printJSON(v any) error {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func rule() string {
	return strings.Repeat("-", 60)
}

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
