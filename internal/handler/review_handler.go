package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/helmintheca/archive-api/internal/dto"
	"github.com/helmintheca/archive-api/internal/models"
	appErrors "github.com/helmintheca/archive-api/pkg/errors"
	"github.com/helmintheca/archive-api/pkg/response"
)

type reviewService interface {
	Queue(ctx context.Context, query dto.ReviewQueueQuery) ([]models.Record, *models.Pagination, error)
	Review(ctx context.Context, recordID string, req dto.ReviewRequest, actor *models.JWTClaims) (*models.Record, error)
}

// ReviewHandler exposes the reviewer workflow.
type ReviewHandler struct {
	service reviewService
}

// NewReviewHandler constructs the handler.
func NewReviewHandler(service reviewService) *ReviewHandler {
	return &ReviewHandler{service: service}
}

// Queue godoc
// @Summary List records awaiting review
// @Tags Review
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param search query string false "Search term"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /review/queue [get]
func (h *ReviewHandler) Queue(c *gin.Context) {
	query := dto.ReviewQueueQuery{
		Search:   strings.TrimSpace(c.Query("search")),
		Page:     intQuery(c, "page", 1),
		PageSize: intQuery(c, "page_size", 20),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		for _, part := range strings.Split(rawStatus, ",") {
			status := models.RecordStatus(strings.ToUpper(strings.TrimSpace(part)))
			if status.Valid() {
				query.Status = append(query.Status, status)
			}
		}
	}

	records, pagination, err := h.service.Queue(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Decide godoc
// @Summary Apply a review decision to a pending record
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body dto.ReviewRequest true "Review decision"
// @Success 200 {object} response.Envelope
// @Router /records/{id}/status [put]
func (h *ReviewHandler) Decide(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid review payload"))
		return
	}
	record, err := h.service.Review(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}
