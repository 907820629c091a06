package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/helmintheca/archive-api/internal/models"
	"github.com/helmintheca/archive-api/internal/service"
	appErrors "github.com/helmintheca/archive-api/pkg/errors"
	"github.com/helmintheca/archive-api/pkg/response"
	"github.com/helmintheca/archive-api/pkg/storage"
)

type recordService interface {
	List(ctx context.Context, filter models.RecordFilter) ([]models.Record, *models.Pagination, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Record, error)
	Create(ctx context.Context, input service.RecordInput, actor *models.JWTClaims) (*models.Record, error)
	Submit(ctx context.Context, input service.RecordInput, actor *models.JWTClaims) (*models.Record, error)
	Update(ctx context.Context, id string, input service.RecordInput, actor *models.JWTClaims) (*models.Record, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
	AttachImage(ctx context.Context, id, relPath string, actor *models.JWTClaims) error
}

// ImageUploadConfig bounds accepted specimen images.
type ImageUploadConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// RecordHandler exposes REST endpoints for parasite records.
type RecordHandler struct {
	service  recordService
	images   *storage.LocalStorage
	resolver *storage.PublicURLResolver
	upload   ImageUploadConfig
}

// NewRecordHandler constructs the handler.
func NewRecordHandler(svc recordService, images *storage.LocalStorage, resolver *storage.PublicURLResolver, upload ImageUploadConfig) *RecordHandler {
	if upload.MaxFileSizeBytes <= 0 {
		upload.MaxFileSizeBytes = 5 << 20
	}
	if len(upload.AllowedMIMEs) == 0 {
		upload.AllowedMIMEs = []string{"image/jpeg", "image/png", "image/webp"}
	}
	return &RecordHandler{service: svc, images: images, resolver: resolver, upload: upload}
}

// List godoc
// @Summary List records across all statuses
// @Tags Records
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param host query string false "Host species"
// @Param year query int false "Discovery year"
// @Param search query string false "Search term"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /records [get]
func (h *RecordHandler) List(c *gin.Context) {
	filter := models.RecordFilter{
		HostSpecies: strings.TrimSpace(c.Query("host")),
		Search:      strings.TrimSpace(c.Query("search")),
		Page:        intQuery(c, "page", 1),
		PageSize:    intQuery(c, "page_size", 20),
		SortBy:      c.Query("sort_by"),
		SortOrder:   c.Query("sort_order"),
	}
	if rawYear := c.Query("year"); rawYear != "" {
		if year, err := strconv.Atoi(rawYear); err == nil {
			filter.Year = &year
		}
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		for _, part := range strings.Split(rawStatus, ",") {
			status := models.RecordStatus(strings.ToUpper(strings.TrimSpace(part)))
			if status.Valid() {
				filter.Status = append(filter.Status, status)
			}
		}
	}

	records, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.resolveImages(records)
	response.JSON(c, http.StatusOK, records, pagination)
}

// Get godoc
// @Summary Get record detail
// @Tags Records
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /records/{id} [get]
func (h *RecordHandler) Get(c *gin.Context) {
	record, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.resolveImage(record)
	response.JSON(c, http.StatusOK, record, nil)
}

// Create godoc
// @Summary Create a record
// @Tags Records
// @Accept json
// @Produce json
// @Param payload body service.RecordInput true "Record payload"
// @Success 201 {object} response.Envelope
// @Router /records [post]
func (h *RecordHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var input service.RecordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid record payload"))
		return
	}
	record, err := h.service.Create(c.Request.Context(), input, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.resolveImage(record)
	response.Created(c, record)
}

// Submit godoc
// @Summary Submit a record for review
// @Tags Records
// @Accept json
// @Produce json
// @Param payload body service.RecordInput true "Record payload"
// @Success 201 {object} response.Envelope
// @Router /submissions [post]
func (h *RecordHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var input service.RecordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid record payload"))
		return
	}
	record, err := h.service.Submit(c.Request.Context(), input, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// Update godoc
// @Summary Update a record
// @Tags Records
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body service.RecordInput true "Record payload"
// @Success 200 {object} response.Envelope
// @Router /records/{id} [put]
func (h *RecordHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var input service.RecordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid record payload"))
		return
	}
	record, err := h.service.Update(c.Request.Context(), c.Param("id"), input, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.resolveImage(record)
	response.JSON(c, http.StatusOK, record, nil)
}

// Delete godoc
// @Summary Delete a record
// @Tags Records
// @Param id path string true "Record ID"
// @Success 204
// @Router /records/{id} [delete]
func (h *RecordHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UploadImage godoc
// @Summary Attach a specimen image to a record
// @Tags Records
// @Accept mpfd
// @Produce json
// @Param id path string true "Record ID"
// @Param image formData file true "Specimen image"
// @Success 200 {object} response.Envelope
// @Router /records/{id}/image [post]
func (h *RecordHandler) UploadImage(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if h.images == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "image storage not configured"))
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "image file is required"))
		return
	}
	if fileHeader.Size > h.upload.MaxFileSizeBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "image exceeds the maximum allowed size"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unable to read uploaded image"))
		return
	}
	defer file.Close()

	mimeType, reader, err := sniffMIME(file)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unable to read uploaded image"))
		return
	}
	if !h.mimeAllowed(mimeType) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unsupported image type"))
		return
	}

	recordID := c.Param("id")
	filename := fmt.Sprintf("%s%s", recordID, extensionFor(mimeType, fileHeader.Filename))
	relPath, err := h.images.SaveStream(filename, reader)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store image"))
		return
	}

	if err := h.service.AttachImage(c.Request.Context(), recordID, relPath, claims); err != nil {
		// The record rejected the image; do not leave the orphan on disk.
		_ = h.images.Delete(relPath)
		response.Error(c, err)
		return
	}

	url := relPath
	if h.resolver != nil {
		url = h.resolver.Resolve(relPath)
	}
	response.JSON(c, http.StatusOK, gin.H{"image_url": url}, nil)
}

func (h *RecordHandler) mimeAllowed(mimeType string) bool {
	for _, allowed := range h.upload.AllowedMIMEs {
		if strings.EqualFold(allowed, mimeType) {
			return true
		}
	}
	return false
}

func (h *RecordHandler) resolveImage(record *models.Record) {
	if h.resolver == nil || record == nil || record.ImageURL == "" {
		return
	}
	record.ImageURL = h.resolver.Resolve(record.ImageURL)
}

func (h *RecordHandler) resolveImages(records []models.Record) {
	for i := range records {
		h.resolveImage(&records[i])
	}
}

// sniffMIME detects the content type from the first bytes of the stream
// and returns a reader that replays them.
func sniffMIME(file io.Reader) (string, io.Reader, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", nil, err
	}
	head = head[:n]
	return http.DetectContentType(head), io.MultiReader(strings.NewReader(string(head)), file), nil
}

func extensionFor(mimeType, originalName string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	if ext := filepath.Ext(originalName); ext != "" {
		return ext
	}
	return ".bin"
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
