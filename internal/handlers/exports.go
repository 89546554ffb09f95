package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/catalogsync/import-service/internal/export"
	"github.com/catalogsync/import-service/internal/types"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportRequest is the body of POST /internal/exports/csv
type ExportRequest struct {
	Products []types.CanonicalProduct `json:"products" binding:"required"`
	// Options overrides the server's export defaults
	Options *export.Options `json:"options,omitempty"`
}

// ExportProducts renders products as a storefront import file.
// POST /internal/exports/csv[?format=xlsx]
func (h *Handler) ExportProducts(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("invalid export request: %v", err),
		})
		return
	}

	opts := h.exportOpts
	if req.Options != nil {
		opts = *req.Options
	}
	exporter, err := export.New(opts)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if c.Query("format") == "xlsx" {
		var buf bytes.Buffer
		if err := exporter.ExportXLSX(req.Products, &buf); err != nil {
			abortWithError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="products.xlsx"`)
		c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
		return
	}

	out, err := exporter.ExportCSV(req.Products)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="products.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(out))
}
