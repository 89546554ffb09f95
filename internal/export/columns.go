package export

// Columns is the fixed bulk-edit header, in output order
var Columns = []string{
	"Handle",
	"Title",
	"Body HTML",
	"Vendor",
	"Type",
	"Tags",
	"Published",
	"Option1 Name",
	"Option1 Value",
	"Option2 Name",
	"Option2 Value",
	"Option3 Name",
	"Option3 Value",
	"Variant SKU",
	"Variant Price",
	"Variant Compare At Price",
	"Variant Inventory Qty",
	"Variant Inventory Policy",
	"Image Src",
	"Image Position",
	"Image Alt Text",
	"SEO Title",
	"SEO Description",
	"Status",
	"Cost per item",
	"Source URL",
	"Source Platform",
}

const (
	colHandle = iota
	colTitle
	colBodyHTML
	colVendor
	colType
	colTags
	colPublished
	colOption1Name
	colOption1Value
	colOption2Name
	colOption2Value
	colOption3Name
	colOption3Value
	colVariantSKU
	colVariantPrice
	colVariantCompareAtPrice
	colVariantInventoryQty
	colVariantInventoryPolicy
	colImageSrc
	colImagePosition
	colImageAltText
	colSEOTitle
	colSEODescription
	colStatus
	colCostPerItem
	colSourceURL
	colSourcePlatform
	columnCount
)
