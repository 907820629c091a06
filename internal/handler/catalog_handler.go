package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/helmintheca/archive-api/internal/catalog"
	"github.com/helmintheca/archive-api/internal/middleware"
	"github.com/helmintheca/archive-api/pkg/response"
	"github.com/helmintheca/archive-api/pkg/storage"
)

type catalogService interface {
	Browse(ctx context.Context, query catalog.Query) (*catalog.Result, bool, error)
	Facets(ctx context.Context) (*catalog.Vocabulary, error)
}

// CatalogHandler serves the public archive browsing endpoints. No
// authentication is required; only published records are visible.
type CatalogHandler struct {
	service  catalogService
	resolver *storage.PublicURLResolver
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(service catalogService, resolver *storage.PublicURLResolver) *CatalogHandler {
	return &CatalogHandler{service: service, resolver: resolver}
}

// Browse godoc
// @Summary Browse the published catalog
// @Tags Catalog
// @Produce json
// @Param search query string false "Search term"
// @Param type query string false "Comma separated parasite types"
// @Param stage query string false "Comma separated stages"
// @Param sample_type query string false "Comma separated sample types"
// @Param stain_color query string false "Comma separated stain colors"
// @Param year query string false "Comma separated discovery years"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param sort_by query string false "Sort field"
// @Param sort_order query string false "Sort order"
// @Success 200 {object} response.Envelope
// @Router /catalog [get]
func (h *CatalogHandler) Browse(c *gin.Context) {
	query := catalog.Query{
		Search: strings.TrimSpace(c.Query("search")),
		Facets: catalog.FacetSelection{
			Types:       splitQuery(c.Query("type")),
			Stages:      splitQuery(c.Query("stage")),
			SampleTypes: splitQuery(c.Query("sample_type")),
			StainColors: splitQuery(c.Query("stain_color")),
			Years:       splitQuery(c.Query("year")),
		},
		Page:      intQuery(c, "page", 1),
		PageSize:  intQuery(c, "page_size", 0),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	result, hit, err := h.service.Browse(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.resolver != nil {
		for i := range result.Records {
			if result.Records[i].ImageURL != "" {
				result.Records[i].ImageURL = h.resolver.Resolve(result.Records[i].ImageURL)
			}
		}
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, result.Records, &result.Pagination, middleware.ExtractMeta(c))
}

// Facets godoc
// @Summary List available filter values
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /catalog/facets [get]
func (h *CatalogHandler) Facets(c *gin.Context) {
	vocab, err := h.service.Facets(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, vocab, nil)
}

func splitQuery(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
