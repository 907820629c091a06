package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmintheca/archive-api/internal/dto"
	"github.com/helmintheca/archive-api/internal/middleware"
	"github.com/helmintheca/archive-api/internal/models"
	appErrors "github.com/helmintheca/archive-api/pkg/errors"
)

type testEnvelope struct {
	Data  json.RawMessage        `json:"data"`
	Error map[string]interface{} `json:"error"`
}

type fakeReviewSrv struct {
	queue     []models.Record
	reviewed  *models.Record
	reviewErr error
	lastReq   dto.ReviewRequest
	lastID    string
}

func (f *fakeReviewSrv) Queue(context.Context, dto.ReviewQueueQuery) ([]models.Record, *models.Pagination, error) {
	return f.queue, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(f.queue), TotalPages: 1}, nil
}

func (f *fakeReviewSrv) Review(_ context.Context, recordID string, req dto.ReviewRequest, _ *models.JWTClaims) (*models.Record, error) {
	f.lastID = recordID
	f.lastReq = req
	return f.reviewed, f.reviewErr
}

func reviewerContext(rec *httptest.ResponseRecorder) (*gin.Context, *gin.Engine) {
	c, engine := gin.CreateTestContext(rec)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "rev-1", Role: models.RoleReviewer})
	return c, engine
}

func TestReviewHandlerDecideApprove(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeReviewSrv{reviewed: &models.Record{ID: "rec-1", Status: models.StatusApproved}}
	handler := NewReviewHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := reviewerContext(rec)
	c.Params = gin.Params{{Key: "id", Value: "rec-1"}}
	c.Request = httptest.NewRequest(http.MethodPut, "/records/rec-1/status", strings.NewReader(`{"action":"approve"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Decide(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rec-1", srv.lastID)
	assert.Equal(t, dto.ReviewActionApprove, srv.lastReq.Action)
}

func TestReviewHandlerDecideWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReviewHandler(&fakeReviewSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPut, "/records/rec-1/status", strings.NewReader(`{"action":"approve"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Decide(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReviewHandlerDecideConflictSurfaces(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeReviewSrv{reviewErr: appErrors.ErrAlreadyReviewed}
	handler := NewReviewHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := reviewerContext(rec)
	c.Params = gin.Params{{Key: "id", Value: "rec-1"}}
	c.Request = httptest.NewRequest(http.MethodPut, "/records/rec-1/status", strings.NewReader(`{"action":"approve"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Decide(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var envelope testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "ALREADY_REVIEWED", envelope.Error["code"])
}

func TestReviewHandlerQueueParsesStatuses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeReviewSrv{queue: []models.Record{{ID: "rec-1", Status: models.StatusPending}}}
	handler := NewReviewHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := reviewerContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/review/queue?status=pending,changes_requested", nil)

	handler.Queue(c)

	assert.Equal(t, http.StatusOK, rec.Code)
}
