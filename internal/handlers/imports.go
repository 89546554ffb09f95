package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/catalogsync/import-service/internal/parsers"
	"github.com/catalogsync/import-service/internal/pipeline"
	"github.com/catalogsync/import-service/internal/types"
)

// ParseResponse is the raw parser output for one upload
type ParseResponse struct {
	Filename string            `json:"filename"`
	Format   parsers.Format    `json:"format"`
	Rows     int               `json:"rows"`
	Result   types.ParseResult `json:"result"`
}

type upload struct {
	filename string
	content  []byte
	tenant   string
	format   parsers.Format
}

// readUpload reads the multipart "file" part and the tenant/format form fields
func (h *Handler) readUpload(c *gin.Context, requireTenant bool) (*upload, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	fh, err := c.FormFile("file")
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			abortWithError(c, err)
			return nil, false
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": "multipart field \"file\" is required",
		})
		return nil, false
	}

	up := &upload{
		filename: fh.Filename,
		tenant:   strings.TrimSpace(c.PostForm("tenant")),
	}
	if requireTenant && up.tenant == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": "form field \"tenant\" is required",
		})
		return nil, false
	}
	if raw := c.PostForm("format"); raw != "" {
		format, err := parsers.ParseFormat(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil, false
		}
		up.format = format
	}

	f, err := fh.Open()
	if err != nil {
		abortWithError(c, fmt.Errorf("failed to open upload: %w", err))
		return nil, false
	}
	defer f.Close()

	up.content, err = io.ReadAll(f)
	if err != nil {
		abortWithError(c, fmt.Errorf("failed to read upload: %w", err))
		return nil, false
	}
	return up, true
}

// PreviewImport analyzes an uploaded file against the tenant catalog.
// POST /internal/imports/preview
// A ZIP bundle answers with per-file outcomes, any other file with one result.
func (h *Handler) PreviewImport(c *gin.Context) {
	up, ok := h.readUpload(c, true)
	if !ok {
		return
	}

	in := pipeline.Input{
		Tenant:   up.tenant,
		Filename: up.filename,
		Content:  up.content,
		Format:   up.format,
	}
	format := up.format
	if format == "" {
		format = parsers.DetectFormat(up.filename, up.content)
	}

	if format == parsers.FormatZIP {
		batch, err := h.service.AnalyzeBundle(c.Request.Context(), up.tenant, up.filename, up.content)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, batch)
		return
	}

	result, err := h.service.Analyze(c.Request.Context(), in)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ParseImport returns the raw rows of an uploaded file without reconciling.
// POST /internal/imports/parse
func (h *Handler) ParseImport(c *gin.Context) {
	up, ok := h.readUpload(c, false)
	if !ok {
		return
	}

	format := up.format
	if format == "" {
		format = parsers.DetectFormat(up.filename, up.content)
	}
	result, err := parsers.Parse(format, up.content, h.parseOpts)
	if err != nil {
		abortWithError(c, &pipeline.ParseError{Filename: up.filename, Err: err})
		return
	}

	c.JSON(http.StatusOK, ParseResponse{
		Filename: up.filename,
		Format:   format,
		Rows:     len(result.Data),
		Result:   *result,
	})
}
