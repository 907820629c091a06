package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/helmintheca/archive-api/internal/dto"
	"github.com/helmintheca/archive-api/internal/models"
	"github.com/helmintheca/archive-api/internal/repository"
	appErrors "github.com/helmintheca/archive-api/pkg/errors"
)

type reviewRepository interface {
	List(ctx context.Context, filter models.RecordFilter) ([]models.Record, int, error)
	FindByID(ctx context.Context, id string) (*models.Record, error)
	UpdateStatus(ctx context.Context, params repository.UpdateStatusParams) error
}

// ReviewService applies review decisions to pending records. Every
// decision is taken against the PENDING state: two reviewers racing on
// the same record produce exactly one applied decision and one
// ALREADY_REVIEWED conflict.
type ReviewService struct {
	repo        reviewRepository
	audit       recordAuditLogger
	invalidator datasetInvalidator
	logger      *zap.Logger
	now         func() time.Time
}

// NewReviewService constructs the review service.
func NewReviewService(repo reviewRepository, audit recordAuditLogger, invalidator datasetInvalidator, logger *zap.Logger) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewService{
		repo:        repo,
		audit:       audit,
		invalidator: invalidator,
		logger:      logger,
		now:         time.Now,
	}
}

// Queue lists records awaiting review, oldest first.
func (s *ReviewService) Queue(ctx context.Context, query dto.ReviewQueueQuery) ([]models.Record, *models.Pagination, error) {
	statuses := query.Status
	if len(statuses) == 0 {
		statuses = []models.RecordStatus{models.StatusPending}
	}
	filter := models.RecordFilter{
		Status:    statuses,
		Search:    query.Search,
		Page:      query.Page,
		PageSize:  query.PageSize,
		SortBy:    "created_at",
		SortOrder: "asc",
	}
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review queue")
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
	return records, &models.Pagination{Page: page, PageSize: size, TotalCount: total, TotalPages: totalPages}, nil
}

// Review applies a decision to a pending record. Reject and
// request-changes demand reviewer notes; the check runs before any
// database work so a missing note never costs a round trip.
func (s *ReviewService) Review(ctx context.Context, recordID string, req dto.ReviewRequest, actor *models.JWTClaims) (*models.Record, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.CanReview() {
		return nil, appErrors.ErrForbidden
	}

	target, err := targetStatus(req.Action)
	if err != nil {
		return nil, err
	}
	notes := strings.TrimSpace(req.Notes)
	if notes == "" && req.Action != dto.ReviewActionApprove {
		return nil, appErrors.Clone(appErrors.ErrNotesRequired, "review notes are required for this decision")
	}

	record, err := s.repo.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	if record.Status != models.StatusPending {
		return nil, appErrors.Clone(appErrors.ErrAlreadyReviewed, "record has already been reviewed")
	}

	reviewedAt := s.now().UTC()
	params := repository.UpdateStatusParams{
		ID:         recordID,
		FromStatus: models.StatusPending,
		Status:     target,
		ReviewedBy: actor.UserID,
		ReviewedAt: reviewedAt,
	}
	if notes != "" {
		params.ReviewNotes = &notes
	}
	if err := s.repo.UpdateStatus(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost the race: someone decided between our read and write.
			return nil, appErrors.Clone(appErrors.ErrAlreadyReviewed, "record has already been reviewed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply review decision")
	}

	record.Status = target
	record.ReviewedBy = &actor.UserID
	record.ReviewedAt = &reviewedAt
	if notes != "" {
		record.ReviewNotes = &notes
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	s.auditDecision(ctx, actor, record, req.Action)
	return record, nil
}

func targetStatus(action dto.ReviewAction) (models.RecordStatus, error) {
	switch action {
	case dto.ReviewActionApprove:
		return models.StatusApproved, nil
	case dto.ReviewActionReject:
		return models.StatusRejected, nil
	case dto.ReviewActionRequestChanges:
		return models.StatusChangesRequested, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "unknown review action")
	}
}

func (s *ReviewService) auditDecision(ctx context.Context, actor *models.JWTClaims, record *models.Record, action dto.ReviewAction) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"action": string(action),
		"status": string(record.Status),
	})
	entry := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionRecordReview,
		Resource:   "record",
		ResourceID: &record.ID,
		NewValues:  payload,
		IPAddress:  "api",
		UserAgent:  "review-service",
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
