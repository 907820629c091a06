package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/helmintheca/archive-api/internal/dto"
	"github.com/helmintheca/archive-api/pkg/response"
)

type statsService interface {
	Summary(ctx context.Context) (*dto.SummaryResponse, error)
	GroupBy(ctx context.Context, field string) (*dto.GroupResponse, error)
	Timeline(ctx context.Context) (*dto.TimelineResponse, error)
	Contributors(ctx context.Context) (*dto.ContributorsResponse, error)
}

// StatsHandler serves archive statistics.
type StatsHandler struct {
	service statsService
}

// NewStatsHandler constructs the handler.
func NewStatsHandler(service statsService) *StatsHandler {
	return &StatsHandler{service: service}
}

// Summary godoc
// @Summary Dataset-wide totals
// @Tags Statistics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /stats/summary [get]
func (h *StatsHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// GroupBy godoc
// @Summary Counts grouped by one dimension
// @Tags Statistics
// @Produce json
// @Param field path string true "Grouping field" Enums(host, type, stage, sample_type, stain_color)
// @Success 200 {object} response.Envelope
// @Router /stats/groups/{field} [get]
func (h *StatsHandler) GroupBy(c *gin.Context) {
	group, err := h.service.GroupBy(c.Request.Context(), c.Param("field"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Timeline godoc
// @Summary Submissions per month of year
// @Tags Statistics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /stats/timeline [get]
func (h *StatsHandler) Timeline(c *gin.Context) {
	timeline, err := h.service.Timeline(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timeline, nil)
}

// Contributors godoc
// @Summary Student leaderboard by record count
// @Tags Statistics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /stats/contributors [get]
func (h *StatsHandler) Contributors(c *gin.Context) {
	contributors, err := h.service.Contributors(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contributors, nil)
}
