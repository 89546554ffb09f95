// Schema Generator
//
// Generates JSON Schema files from the canonical catalog types and the HTTP
// API payloads, so suppliers can validate JSON feeds before uploading them.
//
// Usage:
//
//	go run ./cmd/schema-gen [-out ./schemas]
//
// Output:
//
//	schemas/catalog.json
//	schemas/imports.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/catalogsync/import-service/internal/events"
	"github.com/catalogsync/import-service/internal/handlers"
	"github.com/catalogsync/import-service/internal/pipeline"
	"github.com/catalogsync/import-service/internal/types"
)

// SchemaGroup represents a group of related schemas
type SchemaGroup struct {
	Name   string
	Types  []any
	Output string
}

var groups = []SchemaGroup{
	{
		Name: "catalog",
		Types: []any{
			types.CanonicalProduct{},
			types.Variant{},
			types.CatalogProduct{},
		},
		Output: "catalog.json",
	},
	{
		Name: "imports",
		Types: []any{
			// Request types
			handlers.ExportRequest{},
			handlers.ScrapeRequest{},
			// Response types
			handlers.ParseResponse{},
			pipeline.Result{},
			pipeline.BatchResult{},
			types.ImportPreview{},
			events.PreviewEvent{},
		},
		Output: "imports.json",
	},
}

func main() {
	outputDir := flag.String("out", "./schemas", "output directory")
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	for _, group := range groups {
		schema := generateGroupSchema(group)
		outputPath := filepath.Join(*outputDir, group.Output)

		if err := writeSchema(schema, outputPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", group.Output, err)
			os.Exit(1)
		}

		fmt.Printf("Generated %s\n", outputPath)
	}

	fmt.Println("Schema generation complete!")
}

// generateGroupSchema creates a combined schema with all types in a group
func generateGroupSchema(group SchemaGroup) map[string]any {
	reflector := &jsonschema.Reflector{}

	definitions := make(map[string]any)
	for _, t := range group.Types {
		schema := reflector.Reflect(t)
		for name, def := range schema.Definitions {
			definitions[name] = def
		}
	}

	return map[string]any{
		"$schema":     "https://json-schema.org/draft/2020-12/schema",
		"$id":         fmt.Sprintf("https://catalogsync.dev/schemas/%s.json", group.Name),
		"title":       fmt.Sprintf("%s Types", capitalize(group.Name)),
		"description": fmt.Sprintf("JSON Schema for %s types generated from Go structs", group.Name),
		"$defs":       definitions,
	}
}

// writeSchema writes a schema to a JSON file
func writeSchema(schema map[string]any, path string) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
