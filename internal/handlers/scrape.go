package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/catalogsync/import-service/internal/parsers"
	"github.com/catalogsync/import-service/internal/pipeline"
)

// ScrapeRequest asks for a product page to be analyzed. With HTML set the page
// is not fetched and URL only resolves relative links.
type ScrapeRequest struct {
	URL    string `json:"url"`
	HTML   string `json:"html,omitempty"`
	Tenant string `json:"tenant" binding:"required"`
}

// Scrape extracts products from a supplier page and previews them.
// POST /internal/scrape
func (h *Handler) Scrape(c *gin.Context) {
	var req ScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("invalid scrape request: %v", err),
		})
		return
	}
	if strings.TrimSpace(req.URL) == "" && req.HTML == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": "url or html is required",
		})
		return
	}

	ctx := c.Request.Context()
	if req.HTML != "" {
		result, err := h.service.Analyze(ctx, pipeline.Input{
			Tenant:    req.Tenant,
			Filename:  "page.html",
			Content:   []byte(req.HTML),
			Format:    parsers.FormatHTML,
			SourceURL: req.URL,
		})
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	result, err := h.service.AnalyzeURL(ctx, req.Tenant, req.URL)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
