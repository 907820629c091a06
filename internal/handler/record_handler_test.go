package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmintheca/archive-api/internal/middleware"
	"github.com/helmintheca/archive-api/internal/models"
	"github.com/helmintheca/archive-api/internal/service"
	"github.com/helmintheca/archive-api/pkg/storage"
)

type fakeRecordSrv struct {
	created   *models.Record
	submitted *models.Record
	lastInput service.RecordInput
	attached  []string
}

func (f *fakeRecordSrv) List(context.Context, models.RecordFilter) ([]models.Record, *models.Pagination, error) {
	return nil, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (f *fakeRecordSrv) Get(context.Context, string, *models.JWTClaims) (*models.Record, error) {
	return &models.Record{ID: "rec-1", Status: models.StatusApproved}, nil
}

func (f *fakeRecordSrv) Create(_ context.Context, input service.RecordInput, _ *models.JWTClaims) (*models.Record, error) {
	f.lastInput = input
	return f.created, nil
}

func (f *fakeRecordSrv) Submit(_ context.Context, input service.RecordInput, _ *models.JWTClaims) (*models.Record, error) {
	f.lastInput = input
	return f.submitted, nil
}

func (f *fakeRecordSrv) Update(_ context.Context, _ string, input service.RecordInput, _ *models.JWTClaims) (*models.Record, error) {
	f.lastInput = input
	return &models.Record{ID: "rec-1"}, nil
}

func (f *fakeRecordSrv) Delete(context.Context, string, *models.JWTClaims) error { return nil }

func (f *fakeRecordSrv) AttachImage(_ context.Context, id, relPath string, _ *models.JWTClaims) error {
	f.attached = append(f.attached, relPath)
	return nil
}

func contributorContext(rec *httptest.ResponseRecorder) *gin.Context {
	c, _ := gin.CreateTestContext(rec)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleContributor})
	return c
}

func TestRecordHandlerSubmitReturnsPending(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeRecordSrv{submitted: &models.Record{ID: "rec-1", Status: models.StatusPending}}
	handler := NewRecordHandler(srv, nil, nil, ImageUploadConfig{})

	rec := httptest.NewRecorder()
	c := contributorContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/submissions", strings.NewReader(`{"scientific_name":"Taenia saginata"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Submit(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Taenia saginata", srv.lastInput.ScientificName)

	var envelope testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Contains(t, string(envelope.Data), string(models.StatusPending))
}

func TestRecordHandlerSubmitRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRecordHandler(&fakeRecordSrv{}, nil, nil, ImageUploadConfig{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/submissions", strings.NewReader(`{}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Submit(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRecordHandlerListParsesStatusFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRecordHandler(&fakeRecordSrv{}, nil, nil, ImageUploadConfig{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/records?status=pending,bogus&year=1995", nil)

	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecordHandlerUploadRejectsNonImage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	handler := NewRecordHandler(&fakeRecordSrv{}, store, nil, ImageUploadConfig{})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("plain text, not an image"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	rec := httptest.NewRecorder()
	c := contributorContext(rec)
	c.Params = gin.Params{{Key: "id", Value: "rec-1"}}
	c.Request = httptest.NewRequest(http.MethodPost, "/records/rec-1/image", body)
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())

	handler.UploadImage(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
