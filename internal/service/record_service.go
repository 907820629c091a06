package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/helmintheca/archive-api/internal/models"
	appErrors "github.com/helmintheca/archive-api/pkg/errors"
)

type recordRepository interface {
	List(ctx context.Context, filter models.RecordFilter) ([]models.Record, int, error)
	FindByID(ctx context.Context, id string) (*models.Record, error)
	Create(ctx context.Context, record *models.Record) error
	Update(ctx context.Context, record *models.Record) error
	SetImageURL(ctx context.Context, id, imageURL string) error
	Delete(ctx context.Context, id string) error
}

type recordAuditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// datasetInvalidator is notified after every successful mutation so
// cached snapshots are never served across a write.
type datasetInvalidator interface {
	Invalidate(ctx context.Context)
}

// RecordInput holds the submitted fields of a record. Status is never
// part of the payload; it is assigned by policy.
type RecordInput struct {
	ScientificName string `json:"scientific_name" validate:"required"`
	CommonName     string `json:"common_name"`
	ArabicName     string `json:"arabic_name"`
	FrenchName     string `json:"french_name"`
	Description    string `json:"description"`
	DescriptionAr  string `json:"description_ar"`
	DescriptionFr  string `json:"description_fr"`
	HostSpecies    string `json:"host_species"`
	Type           string `json:"type"`
	Stage          string `json:"stage"`
	SampleType     string `json:"sample_type"`
	StainColor     string `json:"stain_color"`
	DiscoveryYear  *int   `json:"discovery_year"`
	ImageURL       string `json:"image_url"`
	StudentName    string `json:"student_name"`
	SupervisorName string `json:"supervisor_name"`
}

// RecordService handles record store use-cases.
type RecordService struct {
	repo        recordRepository
	audit       recordAuditLogger
	invalidator datasetInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewRecordService constructs the record service.
func NewRecordService(repo recordRepository, audit recordAuditLogger, invalidator datasetInvalidator, validate *validator.Validate, logger *zap.Logger) *RecordService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordService{
		repo:        repo,
		audit:       audit,
		invalidator: invalidator,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// List returns records with pagination metadata, optionally prefiltered
// by host, year, status, or search term.
func (s *RecordService) List(ctx context.Context, filter models.RecordFilter) ([]models.Record, *models.Pagination, error) {
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list records")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	totalPages := (total + size - 1) / size
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total, TotalPages: totalPages}
	return records, pagination, nil
}

// Get returns a single record. Unpublished records are hidden from
// callers without review rights unless they uploaded the record.
func (s *RecordService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Record, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	if record.Status != models.StatusApproved && !canSee(record, actor) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
	}
	return record, nil
}

func canSee(record *models.Record, actor *models.JWTClaims) bool {
	if actor == nil {
		return false
	}
	if actor.Role.CanReview() {
		return true
	}
	return record.UploadedBy == actor.UserID
}

// Create stores a record on behalf of an authenticated contributor. The
// record is published immediately; review is bypassed by policy for
// direct creations.
func (s *RecordService) Create(ctx context.Context, input RecordInput, actor *models.JWTClaims) (*models.Record, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	record, err := s.buildRecord(input, actor, models.StatusApproved)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create record")
	}
	s.afterMutation(ctx, actor, models.AuditActionRecordCreate, record)
	return record, nil
}

// Submit stores a record pending review.
func (s *RecordService) Submit(ctx context.Context, input RecordInput, actor *models.JWTClaims) (*models.Record, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	record, err := s.buildRecord(input, actor, models.StatusPending)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit record")
	}
	s.afterMutation(ctx, actor, models.AuditActionRecordSubmit, record)
	return record, nil
}

// Update applies a partial edit to an existing record; omitted fields
// keep their stored values. Reviewers may edit any record without a
// status change; the uploader may edit their own record, and
// resubmitting one sent back for changes returns it to the review queue.
func (s *RecordService) Update(ctx context.Context, id string, input RecordInput, actor *models.JWTClaims) (*models.Record, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validateUpdate(input); err != nil {
		return nil, err
	}
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}

	isOwner := record.UploadedBy == actor.UserID
	if !actor.Role.CanReview() && !isOwner {
		return nil, appErrors.ErrForbidden
	}

	applyUpdate(record, input)
	if isOwner && !actor.Role.CanReview() && record.Status == models.StatusChangesRequested {
		record.Status = models.StatusPending
	}

	if err := s.repo.Update(ctx, record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update record")
	}
	s.afterMutation(ctx, actor, models.AuditActionRecordUpdate, record)
	return record, nil
}

// Delete permanently removes a record after backend confirmation.
func (s *RecordService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.Role.CanReview() {
		return appErrors.ErrForbidden
	}
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete record")
	}
	s.afterMutation(ctx, actor, models.AuditActionRecordDelete, record)
	return nil
}

// AttachImage stores the relative path of an uploaded specimen image.
func (s *RecordService) AttachImage(ctx context.Context, id, relPath string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	if !actor.Role.CanReview() && record.UploadedBy != actor.UserID {
		return appErrors.ErrForbidden
	}
	if err := s.repo.SetImageURL(ctx, id, relPath); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store image path")
	}
	record.ImageURL = relPath
	s.afterMutation(ctx, actor, models.AuditActionImageUpload, record)
	return nil
}

func (s *RecordService) buildRecord(input RecordInput, actor *models.JWTClaims, status models.RecordStatus) (*models.Record, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}
	record := &models.Record{Status: status, UploadedBy: actor.UserID}
	applyInput(record, input)
	if record.StudentName == "" {
		record.StudentName = actor.FullName
	}
	return record, nil
}

// validateInput runs struct validation plus the discovery-year bound
// check before anything touches the database.
func (s *RecordService) validateInput(input RecordInput) error {
	if err := s.validator.Struct(input); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid record payload")
	}
	if strings.TrimSpace(input.ScientificName) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "scientific name is required")
	}
	if input.DiscoveryYear != nil {
		year := *input.DiscoveryYear
		if year < models.MinDiscoveryYear || year > s.now().Year() {
			return appErrors.Clone(appErrors.ErrValidation, "discovery year out of range")
		}
	}
	return nil
}

// validateUpdate checks only the fields a partial payload carries. A
// scientific name made of whitespace is still rejected; an absent one
// keeps the stored value.
func (s *RecordService) validateUpdate(input RecordInput) error {
	if input.ScientificName != "" && strings.TrimSpace(input.ScientificName) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "scientific name is required")
	}
	if input.DiscoveryYear != nil {
		year := *input.DiscoveryYear
		if year < models.MinDiscoveryYear || year > s.now().Year() {
			return appErrors.Clone(appErrors.ErrValidation, "discovery year out of range")
		}
	}
	return nil
}

func applyInput(record *models.Record, input RecordInput) {
	record.ScientificName = strings.TrimSpace(input.ScientificName)
	record.CommonName = input.CommonName
	record.ArabicName = input.ArabicName
	record.FrenchName = input.FrenchName
	record.Description = input.Description
	record.DescriptionAr = input.DescriptionAr
	record.DescriptionFr = input.DescriptionFr
	record.HostSpecies = input.HostSpecies
	record.Type = input.Type
	record.Stage = input.Stage
	record.SampleType = input.SampleType
	record.StainColor = input.StainColor
	record.DiscoveryYear = input.DiscoveryYear
	record.StudentName = input.StudentName
	record.SupervisorName = input.SupervisorName
	if input.ImageURL != "" {
		record.ImageURL = input.ImageURL
	}
}

// applyUpdate overwrites only the fields present in the payload, so an
// edit never wipes values the submitter left out, like the student name
// backfilled at submission time.
func applyUpdate(record *models.Record, input RecordInput) {
	setIf := func(dst *string, value string) {
		if value != "" {
			*dst = value
		}
	}
	if name := strings.TrimSpace(input.ScientificName); name != "" {
		record.ScientificName = name
	}
	setIf(&record.CommonName, input.CommonName)
	setIf(&record.ArabicName, input.ArabicName)
	setIf(&record.FrenchName, input.FrenchName)
	setIf(&record.Description, input.Description)
	setIf(&record.DescriptionAr, input.DescriptionAr)
	setIf(&record.DescriptionFr, input.DescriptionFr)
	setIf(&record.HostSpecies, input.HostSpecies)
	setIf(&record.Type, input.Type)
	setIf(&record.Stage, input.Stage)
	setIf(&record.SampleType, input.SampleType)
	setIf(&record.StainColor, input.StainColor)
	setIf(&record.StudentName, input.StudentName)
	setIf(&record.SupervisorName, input.SupervisorName)
	setIf(&record.ImageURL, input.ImageURL)
	if input.DiscoveryYear != nil {
		record.DiscoveryYear = input.DiscoveryYear
	}
}

func (s *RecordService) afterMutation(ctx context.Context, actor *models.JWTClaims, action string, record *models.Record) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"scientific_name": record.ScientificName,
		"status":          string(record.Status),
	})
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "record",
		ResourceID: &record.ID,
		NewValues:  payload,
		IPAddress:  "api",
		UserAgent:  "record-service",
	}
	if actor != nil {
		entry.UserID = &actor.UserID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
