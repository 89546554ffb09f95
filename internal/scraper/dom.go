package scraper

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/catalogsync/import-service/internal/types"
)

// Tried in order; the first match wins. Group "amount" holds the number,
// group "cur" the currency token when the pattern captures one.
var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?P<cur>€|\$|£|EUR|USD|GBP)\s?(?P<amount>\d+(?:[.,]\d{1,2})?)`),
	regexp.MustCompile(`(?P<amount>\d+(?:[.,]\d{1,2})?)\s?(?P<cur>€|\$|£|EUR|USD|GBP)`),
	regexp.MustCompile(`"price"\s*:\s*"?(?P<amount>\d+(?:[.,]\d{1,2})?)`),
	regexp.MustCompile(`(?i)prix\s*:?\s*(?P<amount>\d+(?:[.,]\d{1,2})?)`),
}

var imageExtension = regexp.MustCompile(`(?i)\.(jpe?g|png|gif|webp|avif)(\?.*)?$`)

var currencyTokens = map[string]string{
	"€": "EUR", "EUR": "EUR",
	"$": "USD", "USD": "USD",
	"£": "GBP", "GBP": "GBP",
}

// rowFromDOM builds a product from page metadata and text heuristics.
// It fails only when the page has no usable title.
func (p *pageContext) rowFromDOM() (types.RawRow, bool) {
	name := p.meta("og:title")
	if name == "" {
		name = strings.TrimSpace(p.doc.Find("title").First().Text())
	}
	if name == "" {
		name = strings.TrimSpace(p.doc.Find("h1").First().Text())
	}
	if name == "" {
		return types.RawRow{}, false
	}

	row := p.newRow(1, types.TagCSSExtracted)
	row.Set(KeyName, collapseSpace(name))

	desc := p.meta("description")
	if desc == "" {
		desc = p.meta("og:description")
	}
	setIf(&row, KeyDescription, desc)

	if amount, cur := p.findPrice(); amount != "" {
		row.Set(KeyPrice, amount)
		setIf(&row, KeyCurrency, cur)
	}

	if images := p.findImages(); len(images) > 0 {
		row.Set(KeyImage, images[0])
		row.Set(KeyImages, strings.Join(images, ","))
	}
	return row, true
}

// meta reads a <meta> tag by name or property
func (p *pageContext) meta(key string) string {
	var value string
	p.doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name := s.AttrOr("name", s.AttrOr("property", ""))
		if strings.EqualFold(name, key) {
			value = strings.TrimSpace(s.AttrOr("content", ""))
			return value == ""
		}
		return true
	})
	return value
}

// findPrice tries the product:price meta tags first, then the ordered patterns
// over the visible text, then over the raw markup for the JSON fragment.
func (p *pageContext) findPrice() (amount, currency string) {
	if v := p.meta("product:price:amount"); v != "" {
		return v, strings.ToUpper(p.meta("product:price:currency"))
	}

	text := collapseSpace(p.doc.Find("body").Text())
	html, _ := p.doc.Html()

	for _, re := range pricePatterns {
		for _, haystack := range []string{text, html} {
			m := re.FindStringSubmatch(haystack)
			if m == nil {
				continue
			}
			amount = m[re.SubexpIndex("amount")]
			if i := re.SubexpIndex("cur"); i >= 0 {
				currency = currencyTokens[m[i]]
			}
			return amount, currency
		}
	}
	return "", ""
}

// findImages collects og:image then <img> sources, skipping data URIs and
// anything without an image extension
func (p *pageContext) findImages() []string {
	seen := make(map[string]bool)
	images := make([]string, 0, MaxFallbackImages)
	add := func(src string) bool {
		src = strings.TrimSpace(src)
		if src == "" || strings.HasPrefix(strings.ToLower(src), "data:") {
			return true
		}
		src = p.resolve(src)
		if !imageExtension.MatchString(src) || seen[src] {
			return true
		}
		seen[src] = true
		images = append(images, src)
		return len(images) < MaxFallbackImages
	}

	if !add(p.meta("og:image")) {
		return images
	}
	p.doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src := s.AttrOr("src", "")
		if src == "" || strings.HasPrefix(src, "data:") {
			src = s.AttrOr("data-src", src)
		}
		return add(src)
	})
	return images
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// detectPlatform names the storefront engine or marketplace a page came from
func detectPlatform(doc *goquery.Document, host string) string {
	marketplaces := []string{"aliexpress", "amazon", "ebay", "etsy", "cdiscount", "alibaba", "temu"}
	for _, m := range marketplaces {
		if strings.Contains(host, m) {
			return m
		}
	}

	generator := strings.ToLower(doc.Find(`meta[name="generator"]`).AttrOr("content", ""))
	html, _ := doc.Html()
	html = strings.ToLower(html)
	switch {
	case strings.Contains(html, "cdn.shopify.com") || strings.Contains(generator, "shopify"):
		return "shopify"
	case strings.Contains(generator, "woocommerce") || strings.Contains(html, "woocommerce"):
		return "woocommerce"
	case strings.Contains(generator, "prestashop"):
		return "prestashop"
	case strings.Contains(generator, "wix"):
		return "wix"
	}
	return ""
}
