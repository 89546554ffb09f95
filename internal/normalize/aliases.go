package normalize

import "github.com/catalogsync/import-service/internal/types"

// Field names a canonical product field resolved through an alias table
type Field string

const (
	FieldName           Field = "name"
	FieldTitle          Field = "title"
	FieldSKU            Field = "sku"
	FieldPrice          Field = "price"
	FieldCostPrice      Field = "cost_price"
	FieldStock          Field = "stock_quantity"
	FieldCategory       Field = "category"
	FieldDescription    Field = "description"
	FieldImage          Field = "image_url"
	FieldImages         Field = "image_urls"
	FieldStatus         Field = "status"
	FieldTags           Field = "tags"
	FieldSEOTitle       Field = "seo_title"
	FieldSEODescription Field = "seo_description"
	FieldHandle         Field = "handle"
	FieldVendor         Field = "vendor"
	FieldCurrency       Field = "currency"
	FieldSupplier       Field = "supplier_name"
	FieldSourceURL      Field = "source_url"
	FieldSourcePlatform Field = "source_platform"

	// variant-level columns of multi-row exports
	FieldOption1Name     Field = "option1_name"
	FieldOption1Value    Field = "option1_value"
	FieldOption2Name     Field = "option2_name"
	FieldOption2Value    Field = "option2_value"
	FieldOption3Name     Field = "option3_name"
	FieldOption3Value    Field = "option3_value"
	FieldVariantSKU      Field = "variant_sku"
	FieldVariantPrice    Field = "variant_price"
	FieldCompareAtPrice  Field = "compare_at_price"
	FieldVariantQuantity Field = "variant_inventory_qty"
	FieldVariantImage    Field = "variant_image"
)

// AliasTable lists, for each field, the source column names tried in order
type AliasTable map[Field][]string

// spreadsheetAliases cover CSV and Excel exports, including Shopify column names
var spreadsheetAliases = AliasTable{
	FieldName:           {"name", "title", "nom", "Title", "Nom", "Handle", "product_name", "libelle", "designation"},
	FieldTitle:          {"name", "title", "nom", "Title", "Nom", "product_name", "libelle", "designation"},
	FieldSKU:            {"sku", "SKU", "reference", "Variant_SKU", "Variant SKU", "ref", "code"},
	FieldPrice:          {"price", "prix", "Price", "Prix", "Variant_Price", "Variant Price", "prix_vente", "sale_price"},
	FieldCostPrice:      {"cost_price", "cost", "prix_achat", "Cost per item", "Variant Cost", "purchase_price"},
	FieldStock:          {"stock", "stock_quantity", "quantity", "quantite", "Stock", "Variant_Inventory_Qty", "Variant Inventory Qty", "qty", "inventory"},
	FieldCategory:       {"category", "categorie", "Category", "Type", "Product Type", "product_type", "Product Category"},
	FieldDescription:    {"description", "Description", "Body HTML", "Body (HTML)", "body_html"},
	FieldImage:          {"image_url", "image", "Image Src", "image_link", "photo", "Image"},
	FieldImages:         {"image_urls", "images", "additional_image_link", "Additional Images"},
	FieldStatus:         {"status", "statut", "Status", "Published", "etat"},
	FieldTags:           {"tags", "Tags", "mots_cles", "keywords"},
	FieldSEOTitle:       {"seo_title", "SEO Title", "meta_title"},
	FieldSEODescription: {"seo_description", "SEO Description", "meta_description"},
	FieldHandle:         {"Handle", "handle", "slug"},
	FieldVendor:         {"vendor", "Vendor", "brand", "marque"},
	FieldCurrency:       {"currency", "devise"},
	FieldSupplier:       {"supplier_name", "supplier", "fournisseur"},
	FieldSourceURL:      {"source_url", "Source URL", "url", "link"},
	FieldSourcePlatform: {"source_platform", "Source Platform", "platform"},

	FieldOption1Name:     {"Option1 Name", "option1_name"},
	FieldOption1Value:    {"Option1 Value", "option1_value", "option1"},
	FieldOption2Name:     {"Option2 Name", "option2_name"},
	FieldOption2Value:    {"Option2 Value", "option2_value", "option2"},
	FieldOption3Name:     {"Option3 Name", "option3_name"},
	FieldOption3Value:    {"Option3 Value", "option3_value", "option3"},
	FieldVariantSKU:      {"Variant SKU", "Variant_SKU", "variant_sku"},
	FieldVariantPrice:    {"Variant Price", "Variant_Price", "variant_price"},
	FieldCompareAtPrice:  {"Variant Compare At Price", "compare_at_price", "compare_price"},
	FieldVariantQuantity: {"Variant Inventory Qty", "Variant_Inventory_Qty", "variant_inventory_qty"},
	FieldVariantImage:    {"Variant Image", "variant_image"},
}

// feedAliases extend the spreadsheet table for JSON and XML feeds
// (camelCase API payloads, schema.org offers, Google Merchant attributes)
var feedAliases = AliasTable{
	FieldName:           {"productName", "product_name", "title"},
	FieldTitle:          {"productName"},
	FieldSKU:            {"id", "mpn", "productId"},
	FieldPrice:          {"offers.price", "salePrice", "price.value", "sale_price"},
	FieldCostPrice:      {"costPrice", "cost_of_goods_sold"},
	FieldStock:          {"stockQuantity", "inventoryQuantity", "quantity.available"},
	FieldCategory:       {"categoryName", "google_product_category", "product_type"},
	FieldDescription:    {"body", "summary", "content"},
	FieldImage:          {"imageUrl", "image_link", "image.url", "thumbnail"},
	FieldImages:         {"imageUrls", "additionalImages", "additional_image_link"},
	FieldStatus:         {"availability"},
	FieldSEOTitle:       {"seoTitle"},
	FieldSEODescription: {"seoDescription"},
	FieldVendor:         {"brand.name", "manufacturer"},
	FieldCurrency:       {"offers.priceCurrency", "priceCurrency", "price.currency"},
	FieldSourceURL:      {"productUrl", "link.href"},
	FieldSourcePlatform: {"sourcePlatform"},
}

// scrapedAliases match the keys the scraper emits
var scrapedAliases = AliasTable{
	FieldName:           {"name"},
	FieldTitle:          {"name"},
	FieldSKU:            {"sku"},
	FieldPrice:          {"price"},
	FieldCategory:       {"category"},
	FieldDescription:    {"description"},
	FieldImage:          {"image"},
	FieldImages:         {"images"},
	FieldTags:           {"tags"},
	FieldVendor:         {"brand"},
	FieldCurrency:       {"currency"},
	FieldSupplier:       {"supplier_name"},
	FieldSourceURL:      {"source_url"},
	FieldSourcePlatform: {"source_platform"},
}

func merge(tables ...AliasTable) AliasTable {
	out := make(AliasTable)
	for _, t := range tables {
		for field, aliases := range t {
			out[field] = append(out[field], aliases...)
		}
	}
	return out
}

// DefaultAliases returns the alias table per source kind
func DefaultAliases() map[types.SourceKind]AliasTable {
	feed := merge(spreadsheetAliases, feedAliases)
	return map[types.SourceKind]AliasTable{
		types.SourceCSV:     spreadsheetAliases,
		types.SourceExcel:   spreadsheetAliases,
		types.SourceJSON:    feed,
		types.SourceXML:     feed,
		types.SourceScraped: scrapedAliases,
	}
}
