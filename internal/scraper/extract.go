package scraper

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"github.com/catalogsync/import-service/internal/types"
	"github.com/rs/zerolog/log"
)

// Keys emitted on scraped raw rows; the normalizer's scraped alias table reads these
const (
	KeyName           = "name"
	KeyDescription    = "description"
	KeyPrice          = "price"
	KeyCurrency       = "currency"
	KeyImage          = "image"
	KeyImages         = "images"
	KeyCategory       = "category"
	KeySKU            = "sku"
	KeyBrand          = "brand"
	KeyTags           = "tags"
	KeySupplierName   = "supplier_name"
	KeySourceURL      = "source_url"
	KeySourcePlatform = "source_platform"
)

// MaxFallbackImages caps images collected from the page DOM
const MaxFallbackImages = 5

var (
	// ErrUnreadableHTML is returned when the document cannot be parsed at all
	ErrUnreadableHTML = errors.New("unreadable HTML document")
)

// Extract pulls products out of an HTML page. JSON-LD Product markup wins; the
// DOM heuristics only run when no structured product was found. A page with
// neither yields an empty result with one row error.
func Extract(html []byte, sourceURL string) (*types.ParseResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableHTML, err)
	}

	page := newPageContext(doc, sourceURL)
	result := &types.ParseResult{
		Kind:   types.SourceScraped,
		Data:   make([]types.RawRow, 0, 1),
		Errors: make([]types.RowError, 0),
	}

	for _, node := range extractJSONLD(doc) {
		row := page.rowFromJSONLD(len(result.Data)+1, node)
		result.Data = append(result.Data, row)
	}
	if len(result.Data) > 0 {
		log.Debug().Str("url", sourceURL).Int("products", len(result.Data)).Msg("Extracted structured product data")
		return result, nil
	}

	row, ok := page.rowFromDOM()
	if !ok {
		result.AddError(1, "no product data found on page")
		return result, nil
	}
	result.Data = append(result.Data, row)
	log.Debug().Str("url", sourceURL).Msg("Extracted product from page markup")
	return result, nil
}

// pageContext carries what every extracted row shares
type pageContext struct {
	doc      *goquery.Document
	base     *url.URL
	rawURL   string
	host     string
	platform string
}

func newPageContext(doc *goquery.Document, sourceURL string) *pageContext {
	p := &pageContext{doc: doc, rawURL: strings.TrimSpace(sourceURL)}
	if u, err := url.Parse(p.rawURL); err == nil && u.Host != "" {
		p.base = u
		p.host = strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	}
	p.platform = detectPlatform(doc, p.host)
	return p
}

func (p *pageContext) newRow(index int, tag string) types.RawRow {
	row := types.NewRawRow(types.SourceScraped, index)
	row.Set(KeyTags, tag)
	if p.host != "" {
		row.Set(KeySupplierName, p.host)
	}
	if p.rawURL != "" {
		row.Set(KeySourceURL, p.rawURL)
	}
	if p.platform != "" {
		row.Set(KeySourcePlatform, p.platform)
	}
	return row
}

// resolve makes a possibly relative URL absolute against the page URL
func (p *pageContext) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || p.base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return p.base.ResolveReference(u).String()
}

// extractJSONLD returns every schema.org Product node found in ld+json blocks
func extractJSONLD(doc *goquery.Document) []map[string]any {
	var products []map[string]any
	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		v, err := decodeLenient(text)
		if err != nil {
			log.Debug().Int("block", i).Err(err).Msg("Skipping unparseable JSON-LD block")
			return
		}
		products = collectProducts(v, products)
	})
	return products
}

// decodeLenient parses a JSON-LD block, repairing it once when strict parsing fails
func decodeLenient(text string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v, nil
	}
	repaired, err := jsonrepair.RepairJSON(text)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func collectProducts(v any, out []map[string]any) []map[string]any {
	switch node := v.(type) {
	case []any:
		for _, item := range node {
			out = collectProducts(item, out)
		}
	case map[string]any:
		if graph, ok := node["@graph"]; ok {
			out = collectProducts(graph, out)
		}
		if isProduct(node["@type"]) {
			out = append(out, node)
		}
	}
	return out
}

func isProduct(t any) bool {
	switch v := t.(type) {
	case string:
		return isProductType(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && isProductType(s) {
				return true
			}
		}
	}
	return false
}

func isProductType(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "https://schema.org/"), "http://schema.org/")
	return s == "Product"
}

func (p *pageContext) rowFromJSONLD(index int, node map[string]any) types.RawRow {
	row := p.newRow(index, types.TagStructuredData)

	setIf(&row, KeyName, textOf(node["name"]))
	setIf(&row, KeyDescription, textOf(node["description"]))
	setIf(&row, KeySKU, firstText(node["sku"], node["mpn"], node["productID"]))
	setIf(&row, KeyCategory, textOf(node["category"]))
	setIf(&row, KeyBrand, nameOf(node["brand"]))

	if offer := firstOffer(node["offers"]); offer != nil {
		setIf(&row, KeyPrice, firstText(offer["price"], offer["lowPrice"]))
		setIf(&row, KeyCurrency, textOf(offer["priceCurrency"]))
	}

	images := imagesOf(node["image"])
	for i := range images {
		images[i] = p.resolve(images[i])
	}
	if len(images) > 0 {
		row.Set(KeyImage, images[0])
		row.Set(KeyImages, strings.Join(images, ","))
	}
	return row
}

func setIf(row *types.RawRow, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		row.Set(key, value)
	}
}

// textOf renders a JSON-LD scalar as a string
func textOf(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		return nameOf(t)
	case []any:
		if len(t) > 0 {
			return textOf(t[0])
		}
	}
	return ""
}

func firstText(vs ...any) string {
	for _, v := range vs {
		if s := textOf(v); s != "" {
			return s
		}
	}
	return ""
}

// nameOf reads a Thing that is either a bare string or an object with a name
func nameOf(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		return textOf(t["name"])
	case []any:
		if len(t) > 0 {
			return nameOf(t[0])
		}
	}
	return ""
}

// firstOffer accepts an Offer, an AggregateOffer or a list of offers
func firstOffer(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		if nested, ok := t["offers"]; ok && t["price"] == nil && t["lowPrice"] == nil {
			if inner := firstOffer(nested); inner != nil {
				return inner
			}
		}
		return t
	case []any:
		for _, item := range t {
			if m := firstOffer(item); m != nil {
				return m
			}
		}
	}
	return nil
}

// imagesOf accepts a URL, an ImageObject or a list of either
func imagesOf(v any) []string {
	var out []string
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	case map[string]any:
		if s := firstText(t["url"], t["contentUrl"]); s != "" {
			out = append(out, s)
		}
	case []any:
		for _, item := range t {
			out = append(out, imagesOf(item)...)
		}
	}
	return out
}
