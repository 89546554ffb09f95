package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalogsync/import-service/internal/catalog"
	"github.com/catalogsync/import-service/internal/events"
	fetchhttp "github.com/catalogsync/import-service/internal/http"
	"github.com/catalogsync/import-service/internal/http/ratelimit"
	"github.com/catalogsync/import-service/internal/parsers"
	"github.com/catalogsync/import-service/internal/scraper"
	"github.com/catalogsync/import-service/internal/storage"
	"github.com/catalogsync/import-service/internal/types"
)

const snapshotJSON = `{"shop-1": [
	{"id": "1", "name": "Chaise", "sku": "CH-1", "price": 49.9, "stock_quantity": 3},
	{"id": "2", "name": "Table", "price": 120}
]}`

const feedCSV = "name,sku,price,stock\n" +
	"Chaise,CH-1,49.9,3\n" +
	"Table,,125.5,\n" +
	"Tabouret,TB-1,30,beaucoup\n" +
	"Vase,VS-1,-5,\n" +
	"Lampe,LA-1,10,1,extra\n"

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.PreviewEvent
	err    error
}

func (p *recordingPublisher) PublishPreview(_ context.Context, evt events.PreviewEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type failingStore struct{}

func (failingStore) Snapshot(context.Context, string) ([]types.CatalogProduct, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Close() error { return nil }

func newTestService(t *testing.T, deps Deps, opts Options) *Service {
	t.Helper()
	if deps.Catalog == nil {
		store, err := catalog.ParseSnapshot([]byte(snapshotJSON))
		require.NoError(t, err)
		deps.Catalog = store
	}
	return New(deps, opts)
}

func TestAnalyze_ClassifiesCSV(t *testing.T) {
	pub := &recordingPublisher{}
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	svc := newTestService(t, Deps{Events: pub, Storage: local}, DefaultOptions())
	res, err := svc.Analyze(context.Background(), Input{Tenant: "shop-1", Filename: "feed.csv", Content: []byte(feedCSV)})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, parsers.FormatCSV, res.Format)
	assert.Equal(t, 4, res.RowsParsed)

	p := res.Preview
	assert.Equal(t, 1, p.Unchanged)
	require.Len(t, p.New, 1)
	assert.Equal(t, "Tabouret", p.New[0].Name)
	require.Len(t, p.Updates, 1)
	assert.Equal(t, "2", p.Updates[0].Existing.ID)
	assert.Contains(t, p.Updates[0].Changes, "Prix: 120€ → 125.5€")

	require.Len(t, p.Errors, 2)
	assert.Equal(t, 5, p.Errors[0].Row, "validation error of the negative price")
	assert.Contains(t, p.Errors[0].Error, "price")
	require.NotNil(t, p.Errors[0].Product)
	assert.Equal(t, 6, p.Errors[1].Row, "parse error of the overlong row")
	assert.Nil(t, p.Errors[1].Product)

	require.Len(t, p.Warnings, 1)
	assert.Equal(t, 4, p.Warnings[0].Row)
	assert.Contains(t, p.Warnings[0].Message, "stock_quantity")

	assert.Equal(t, types.PreviewSummary{New: 1, Updates: 1, Errors: 2, Unchanged: 1}, res.Summary)

	require.Len(t, pub.events, 1)
	assert.Equal(t, res.RunID, pub.events[0].RunID)
	assert.Equal(t, "shop-1", pub.events[0].Tenant)
	assert.Equal(t, res.Summary, pub.events[0].Summary)

	require.NotEmpty(t, res.ArchiveKey)
	assert.True(t, strings.HasPrefix(res.ArchiveKey, "uploads/shop-1/"))
	archived, err := local.Get(context.Background(), res.ArchiveKey)
	require.NoError(t, err)
	assert.Equal(t, feedCSV, string(archived))
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name      string
		deps      Deps
		opts      Options
		input     Input
		wantErr   error
		errText   string
		wantParse bool
	}{
		{
			name:    "too many rows",
			opts:    Options{MaxRows: 2},
			input:   Input{Filename: "feed.csv", Content: []byte(feedCSV)},
			wantErr: ErrTooManyRows,
		},
		{
			name:    "zip needs bundle analysis",
			input:   Input{Filename: "bundle.zip", Content: []byte("PK\x03\x04rest")},
			wantErr: ErrBundle,
		},
		{
			name:      "empty csv is fatal",
			input:     Input{Filename: "empty.csv", Content: []byte("   \n")},
			errText:   "failed to parse empty.csv",
			wantParse: true,
		},
		{
			name:    "catalog unavailable",
			deps:    Deps{Catalog: failingStore{}},
			input:   Input{Filename: "feed.csv", Content: []byte(feedCSV)},
			errText: "catalog snapshot",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, tt.deps, tt.opts)
			res, err := svc.Analyze(context.Background(), tt.input)
			require.Error(t, err)
			assert.Nil(t, res)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.errText != "" {
				assert.Contains(t, err.Error(), tt.errText)
			}
			var parseErr *ParseError
			assert.Equal(t, tt.wantParse, errors.As(err, &parseErr))
		})
	}
}

func TestAnalyze_PublishFailureIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newTestService(t, Deps{Events: pub}, DefaultOptions())

	res, err := svc.Analyze(context.Background(), Input{Tenant: "shop-1", Filename: "feed.csv", Content: []byte(feedCSV)})
	require.NoError(t, err)
	assert.NotNil(t, res.Preview)
	assert.Len(t, pub.events, 1)
}

func TestAnalyze_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := newTestService(t, Deps{}, DefaultOptions())
	_, err := svc.Analyze(ctx, Input{Filename: "feed.csv", Content: []byte(feedCSV)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeBatch_KeepsOrderAndIsolatesFailures(t *testing.T) {
	svc := newTestService(t, Deps{}, Options{Concurrency: 2})
	inputs := []Input{
		{Tenant: "shop-1", Filename: "a.csv", Content: []byte(feedCSV)},
		{Tenant: "shop-1", Filename: "broken.json", Content: []byte("{not json")},
		{Tenant: "shop-1", Filename: "c.json", Content: []byte(`[{"name": "Bougie", "price": "4,50"}]`)},
	}

	out, err := svc.AnalyzeBatch(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, out.Files, 3)
	assert.Equal(t, 2, out.Succeeded)
	assert.Equal(t, 1, out.Failed)

	assert.Equal(t, "a.csv", out.Files[0].Filename)
	assert.NoError(t, out.Files[0].Err)
	assert.Equal(t, "broken.json", out.Files[1].Filename)
	assert.Error(t, out.Files[1].Err)
	assert.NotEmpty(t, out.Files[1].Error)

	require.NotNil(t, out.Files[2].Result)
	require.Len(t, out.Files[2].Result.Preview.New, 1)
	assert.Equal(t, 4.5, out.Files[2].Result.Preview.New[0].Price)
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestAnalyzeBundle(t *testing.T) {
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := newTestService(t, Deps{Storage: local}, DefaultOptions())

	bundle := buildZip(t, map[string]string{
		"catalogue/produits.csv": feedCSV,
		"extra.json":             `[{"name": "Bougie", "price": 4.5}]`,
		"README.md":              "not a feed",
		"__MACOSX/._produits.csv": "junk",
	})

	out, err := svc.AnalyzeAny(context.Background(), Input{Tenant: "shop-1", Filename: "supplier.zip", Content: bundle})
	require.NoError(t, err)
	require.Len(t, out.Files, 2)
	assert.Equal(t, 2, out.Succeeded)

	names := []string{out.Files[0].Filename, out.Files[1].Filename}
	assert.ElementsMatch(t, []string{"produits.csv", "extra.json"}, names)

	keys, err := local.List(context.Background(), "expanded/shop-1/")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestAnalyzeBundle_InvalidArchive(t *testing.T) {
	svc := newTestService(t, Deps{}, DefaultOptions())
	_, err := svc.AnalyzeBundle(context.Background(), "shop-1", "bad.zip", []byte("PK\x03\x04garbage"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to expand bad.zip")
}

func TestAnalyzeURL(t *testing.T) {
	page := `<html><head><script type="application/ld+json">
		{"@type": "Product", "name": "Lampe Atelier", "sku": "LA-9",
		 "offers": {"price": "89.00", "priceCurrency": "EUR"}}
	</script></head><body></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	client := fetchhttp.NewClient(ratelimit.Config{RequestsPerSecond: 0, MaxRetries: 0})
	svc := newTestService(t, Deps{Fetcher: scraper.NewFetcher(client, scraper.WithPrivateHosts())}, DefaultOptions())

	res, err := svc.AnalyzeURL(context.Background(), "shop-1", srv.URL+"/produit/lampe")
	require.NoError(t, err)
	assert.Equal(t, parsers.FormatHTML, res.Format)
	require.Len(t, res.Preview.New, 1)
	p := res.Preview.New[0]
	assert.Equal(t, "Lampe Atelier", p.Name)
	assert.Equal(t, 89.0, p.Price)
	assert.Equal(t, "EUR", types.StringValue(p.Currency))
	assert.Equal(t, srv.URL+"/produit/lampe", types.StringValue(p.SourceURL))
}

func TestAnalyzeURL_RequiresFetcher(t *testing.T) {
	svc := newTestService(t, Deps{}, DefaultOptions())
	_, err := svc.AnalyzeURL(context.Background(), "shop-1", "https://example.com/p")
	require.Error(t, err)
}
