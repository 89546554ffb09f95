package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fetchhttp "github.com/catalogsync/import-service/internal/http"
	"github.com/catalogsync/import-service/internal/http/ratelimit"
	"github.com/catalogsync/import-service/internal/normalize"
	"github.com/catalogsync/import-service/internal/types"
)

const productJSONLD = `<html><head>
<title>Ignored title</title>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "Product",
  "name": "Lampe Berger",
  "description": "Lampe en verre",
  "sku": "LB-01",
  "category": "Maison",
  "brand": {"@type": "Brand", "name": "Berger"},
  "image": ["/img/lampe.jpg", "https://cdn.example.com/lampe-2.jpg"],
  "offers": {"@type": "Offer", "price": 49.9, "priceCurrency": "EUR"}
}
</script>
</head><body><h1>Lampe</h1></body></html>`

func TestExtract_JSONLDProduct(t *testing.T) {
	result, err := Extract([]byte(productJSONLD), "https://www.boutique.example.com/p/lampe")
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.Empty(t, result.Errors)
	assert.Equal(t, types.SourceScraped, result.Kind)

	row := result.Data[0]
	get := func(k string) string { v, _ := row.Get(k); return v }
	assert.Equal(t, "Lampe Berger", get(KeyName))
	assert.Equal(t, "Lampe en verre", get(KeyDescription))
	assert.Equal(t, "LB-01", get(KeySKU))
	assert.Equal(t, "Maison", get(KeyCategory))
	assert.Equal(t, "Berger", get(KeyBrand))
	assert.Equal(t, "49.9", get(KeyPrice))
	assert.Equal(t, "EUR", get(KeyCurrency))
	assert.Equal(t, "https://www.boutique.example.com/img/lampe.jpg", get(KeyImage))
	assert.Equal(t, types.TagStructuredData, get(KeyTags))
	assert.Equal(t, "boutique.example.com", get(KeySupplierName))
	assert.Equal(t, "https://www.boutique.example.com/p/lampe", get(KeySourceURL))
}

func TestExtract_JSONLDShapes(t *testing.T) {
	tests := []struct {
		name  string
		html  string
		names []string
	}{
		{
			name: "array of nodes",
			html: `<script type="application/ld+json">[{"@type":"BreadcrumbList"},{"@type":"Product","name":"A"},{"@type":"Product","name":"B"}]</script>`,
			names: []string{"A", "B"},
		},
		{
			name:  "graph",
			html:  `<script type="application/ld+json">{"@context":"https://schema.org","@graph":[{"@type":"WebPage"},{"@type":["Product"],"name":"G"}]}</script>`,
			names: []string{"G"},
		},
		{
			name:  "trailing comma repaired",
			html:  `<script type="application/ld+json">{"@type":"Product","name":"Repaired","offers":{"price":"12.50",},}</script>`,
			names: []string{"Repaired"},
		},
		{
			name:  "multiple blocks",
			html:  `<script type="application/ld+json">{"@type":"Product","name":"One"}</script><script type="application/ld+json">{"@type":"Product","name":"Two"}</script>`,
			names: []string{"One", "Two"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Extract([]byte("<html><head>"+tt.html+"</head></html>"), "")
			require.NoError(t, err)
			require.Len(t, result.Data, len(tt.names))
			for i, want := range tt.names {
				got, _ := result.Data[i].Get(KeyName)
				assert.Equal(t, want, got)
				assert.Equal(t, i+1, result.Data[i].Row)
			}
		})
	}
}

func TestExtract_AggregateOfferList(t *testing.T) {
	html := `<script type="application/ld+json">{"@type":"Product","name":"Sac","offers":[{"@type":"AggregateOffer","lowPrice":"15","priceCurrency":"USD"}]}</script>`
	result, err := Extract([]byte(html), "")
	require.NoError(t, err)
	require.Len(t, result.Data, 1)

	price, _ := result.Data[0].Get(KeyPrice)
	cur, _ := result.Data[0].Get(KeyCurrency)
	assert.Equal(t, "15", price)
	assert.Equal(t, "USD", cur)
}

func TestExtract_DOMFallback(t *testing.T) {
	html := `<html><head>
<title>  Bougie   parfumée </title>
<meta name="description" content="Bougie artisanale">
</head><body>
<div class="price">Prix : 24,90 €</div>
<img src="data:image/png;base64,AAAA">
<img src="/static/logo.svg">
<img src="/media/bougie.jpg">
<img data-src="/media/bougie-2.webp?v=3">
</body></html>`

	result, err := Extract([]byte(html), "https://shop.example.fr/bougie")
	require.NoError(t, err)
	require.Len(t, result.Data, 1)

	row := result.Data[0]
	get := func(k string) string { v, _ := row.Get(k); return v }
	assert.Equal(t, "Bougie parfumée", get(KeyName))
	assert.Equal(t, "Bougie artisanale", get(KeyDescription))
	assert.Equal(t, "24,90", get(KeyPrice))
	assert.Equal(t, "EUR", get(KeyCurrency))
	assert.Equal(t, "https://shop.example.fr/media/bougie.jpg", get(KeyImage))
	assert.Equal(t, "https://shop.example.fr/media/bougie.jpg,https://shop.example.fr/media/bougie-2.webp?v=3", get(KeyImages))
	assert.Equal(t, types.TagCSSExtracted, get(KeyTags))
	assert.Equal(t, "shop.example.fr", get(KeySupplierName))
}

func TestExtract_DOMPricePatterns(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		amount   string
		currency string
	}{
		{"currency prefixed", `<span>$19.99</span>`, "19.99", "USD"},
		{"currency suffixed", `<span>12.5 EUR</span>`, "12.5", "EUR"},
		{"json fragment", `<script>var data = {"price": "8.75"};</script>`, "8.75", ""},
		{"french label", `<p>Prix: 30</p>`, "30", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := "<html><head><title>Item</title></head><body>" + tt.body + "</body></html>"
			result, err := Extract([]byte(html), "")
			require.NoError(t, err)
			require.Len(t, result.Data, 1)
			amount, _ := result.Data[0].Get(KeyPrice)
			cur, _ := result.Data[0].Get(KeyCurrency)
			assert.Equal(t, tt.amount, amount)
			assert.Equal(t, tt.currency, cur)
		})
	}
}

func TestExtract_ImageLimit(t *testing.T) {
	html := "<html><head><title>Many</title></head><body>"
	for i := 0; i < 8; i++ {
		html += `<img src="https://cdn.example.com/` + string(rune('a'+i)) + `.png">`
	}
	html += "</body></html>"

	result, err := Extract([]byte(html), "")
	require.NoError(t, err)
	images, _ := result.Data[0].Get(KeyImages)
	assert.Len(t, normalize.SplitList(images), MaxFallbackImages)
}

func TestExtract_NoProduct(t *testing.T) {
	result, err := Extract([]byte("<html><body><p>nothing</p></body></html>"), "")
	require.NoError(t, err)
	assert.Empty(t, result.Data)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 1, result.Errors[0].Row)
}

func TestExtract_NormalizesToCanonical(t *testing.T) {
	result, err := Extract([]byte(productJSONLD), "https://boutique.example.com/p/lampe")
	require.NoError(t, err)

	p, err := normalize.New().Normalize(result.Data[0])
	require.NoError(t, err)
	assert.Equal(t, "Lampe Berger", p.Name)
	assert.Equal(t, 49.9, p.Price)
	assert.Equal(t, "LB-01", types.StringValue(p.SKU))
	assert.Equal(t, "Berger", types.StringValue(p.Vendor))
	assert.Equal(t, "boutique.example.com", types.StringValue(p.SupplierName))
	assert.Contains(t, p.Tags, types.TagStructuredData)
	assert.Equal(t, []string{"https://cdn.example.com/lampe-2.jpg"}, p.ImageURLs)
}

func TestDetectPlatform(t *testing.T) {
	shopify := `<html><head><link rel="stylesheet" href="https://cdn.shopify.com/s/files/theme.css"><title>T</title></head></html>`
	result, err := Extract([]byte(shopify), "https://store.example.com/products/t")
	require.NoError(t, err)
	platform, _ := result.Data[0].Get(KeySourcePlatform)
	assert.Equal(t, "shopify", platform)

	result, err = Extract([]byte(`<title>T</title>`), "https://www.aliexpress.com/item/1.html")
	require.NoError(t, err)
	platform, _ = result.Data[0].Get(KeySourcePlatform)
	assert.Equal(t, "aliexpress", platform)
}

func TestFetcher_Scrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(productJSONLD))
	}))
	defer srv.Close()

	client := fetchhttp.NewClient(ratelimit.Config{MaxRetries: 0})
	result, err := NewFetcher(client, WithPrivateHosts()).Scrape(context.Background(), srv.URL+"/p/lampe")
	require.NoError(t, err)
	require.Len(t, result.Data, 1)

	src, _ := result.Data[0].Get(KeySourceURL)
	assert.Equal(t, srv.URL+"/p/lampe", src)
}

func TestFetcher_RejectsBadURL(t *testing.T) {
	for _, raw := range []string{"ftp://example.com/file", "/relative/path", "https://"} {
		_, err := NewFetcher(nil).Scrape(context.Background(), raw)
		require.ErrorIs(t, err, ErrInvalidURL, raw)
	}
}

type staticResolver map[string][]netip.Addr

func (r staticResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	addrs, ok := r[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return addrs, nil
}

type pageStub struct {
	calls int
}

func (p *pageStub) GetBytes(context.Context, string) ([]byte, error) {
	p.calls++
	return []byte(productJSONLD), nil
}

func TestFetcher_HostCheck(t *testing.T) {
	resolver := staticResolver{
		"shop.example":     {netip.MustParseAddr("93.184.216.34")},
		"metadata.example": {netip.MustParseAddr("169.254.169.254")},
		"intranet.example": {netip.MustParseAddr("93.184.216.34"), netip.MustParseAddr("10.0.0.8")},
		"cgnat.example":    {netip.MustParseAddr("100.64.1.1")},
	}

	tests := []struct {
		name    string
		url     string
		opts    []FetcherOption
		blocked bool
		wantErr bool
	}{
		{name: "public host", url: "https://shop.example/p/1"},
		{name: "link-local metadata", url: "http://metadata.example/latest", blocked: true},
		{name: "any private address blocks", url: "https://intranet.example/", blocked: true},
		{name: "carrier-grade nat", url: "https://cgnat.example/", blocked: true},
		{name: "loopback literal", url: "http://127.0.0.1:8080/admin", blocked: true},
		{name: "ipv6 loopback literal", url: "http://[::1]/", blocked: true},
		{name: "mapped ipv4 loopback", url: "http://[::ffff:127.0.0.1]/", blocked: true},
		{name: "unresolvable host", url: "https://missing.example/", wantErr: true},
		{name: "private allowed", url: "http://127.0.0.1:8080/p", opts: []FetcherOption{WithPrivateHosts()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &pageStub{}
			opts := append([]FetcherOption{WithResolver(resolver)}, tt.opts...)
			_, _, err := NewFetcher(client, opts...).Fetch(context.Background(), tt.url)

			switch {
			case tt.blocked:
				require.ErrorIs(t, err, ErrBlockedHost)
				assert.ErrorIs(t, err, ErrInvalidURL)
				assert.Zero(t, client.calls, "no request to a blocked host")
			case tt.wantErr:
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrBlockedHost)
				assert.Zero(t, client.calls)
			default:
				require.NoError(t, err)
				assert.Equal(t, 1, client.calls)
			}
		})
	}
}
