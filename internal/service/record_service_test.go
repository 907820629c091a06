package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helmintheca/archive-api/internal/models"
	appErrors "github.com/helmintheca/archive-api/pkg/errors"
)

type mockRecordRepo struct {
	records map[string]*models.Record
	created []*models.Record
	deleted []string
}

func newMockRecordRepo() *mockRecordRepo {
	return &mockRecordRepo{records: make(map[string]*models.Record)}
}

func (m *mockRecordRepo) List(ctx context.Context, filter models.RecordFilter) ([]models.Record, int, error) {
	out := make([]models.Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, *rec)
	}
	return out, len(out), nil
}

func (m *mockRecordRepo) FindByID(ctx context.Context, id string) (*models.Record, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *rec
	return &copied, nil
}

func (m *mockRecordRepo) Create(ctx context.Context, record *models.Record) error {
	if record.ID == "" {
		record.ID = "rec-new"
	}
	record.CreatedAt = time.Now().UTC()
	m.records[record.ID] = record
	m.created = append(m.created, record)
	return nil
}

func (m *mockRecordRepo) Update(ctx context.Context, record *models.Record) error {
	if _, ok := m.records[record.ID]; !ok {
		return sql.ErrNoRows
	}
	m.records[record.ID] = record
	return nil
}

func (m *mockRecordRepo) SetImageURL(ctx context.Context, id, imageURL string) error {
	rec, ok := m.records[id]
	if !ok {
		return sql.ErrNoRows
	}
	rec.ImageURL = imageURL
	return nil
}

func (m *mockRecordRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.records[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.records, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockAuditSink struct {
	entries []*models.AuditLog
}

func (m *mockAuditSink) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.entries = append(m.entries, log)
	return nil
}

type mockInvalidator struct {
	calls int
}

func (m *mockInvalidator) Invalidate(ctx context.Context) { m.calls++ }

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, FullName: "Site Admin"}
}

func contributorClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Role: models.RoleContributor, FullName: "Amina K"}
}

func validInput() RecordInput {
	year := 1995
	return RecordInput{
		ScientificName: "Fasciola hepatica",
		HostSpecies:    "Sheep",
		Type:           "Trematode",
		DiscoveryYear:  &year,
		StudentName:    "Amina K",
	}
}

func TestRecordServiceCreatePublishesImmediately(t *testing.T) {
	repo := newMockRecordRepo()
	audit := &mockAuditSink{}
	inv := &mockInvalidator{}
	svc := NewRecordService(repo, audit, inv, nil, zap.NewNop())

	record, err := svc.Create(context.Background(), validInput(), adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, record.Status)
	assert.Equal(t, "admin-1", record.UploadedBy)
	assert.Equal(t, 1, inv.calls)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionRecordCreate, audit.entries[0].Action)
}

func TestRecordServiceSubmitEntersQueue(t *testing.T) {
	repo := newMockRecordRepo()
	svc := NewRecordService(repo, &mockAuditSink{}, &mockInvalidator{}, nil, zap.NewNop())

	record, err := svc.Submit(context.Background(), validInput(), contributorClaims())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, record.Status)
}

func TestRecordServiceRejectsMissingScientificName(t *testing.T) {
	svc := NewRecordService(newMockRecordRepo(), nil, nil, nil, zap.NewNop())

	input := validInput()
	input.ScientificName = "   "
	_, err := svc.Create(context.Background(), input, adminClaims())
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestRecordServiceRejectsDiscoveryYearOutOfRange(t *testing.T) {
	svc := NewRecordService(newMockRecordRepo(), nil, nil, nil, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

	for _, year := range []int{1899, 2025} {
		input := validInput()
		input.DiscoveryYear = &year
		_, err := svc.Create(context.Background(), input, adminClaims())
		require.Error(t, err, "year %d", year)
		var appErr *appErrors.Error
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	}

	for _, year := range []int{1900, 2024} {
		input := validInput()
		input.DiscoveryYear = &year
		_, err := svc.Create(context.Background(), input, adminClaims())
		assert.NoError(t, err, "year %d", year)
	}
}

func TestRecordServiceGetHidesUnpublishedFromPublic(t *testing.T) {
	repo := newMockRecordRepo()
	repo.records["rec-1"] = &models.Record{ID: "rec-1", Status: models.StatusPending, UploadedBy: "user-1"}
	svc := NewRecordService(repo, nil, nil, nil, zap.NewNop())

	_, err := svc.Get(context.Background(), "rec-1", nil)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)

	record, err := svc.Get(context.Background(), "rec-1", contributorClaims())
	require.NoError(t, err)
	assert.Equal(t, "rec-1", record.ID)

	record, err = svc.Get(context.Background(), "rec-1", adminClaims())
	require.NoError(t, err)
	assert.Equal(t, "rec-1", record.ID)
}

func TestRecordServiceOwnerResubmitReturnsToQueue(t *testing.T) {
	repo := newMockRecordRepo()
	repo.records["rec-1"] = &models.Record{
		ID:             "rec-1",
		ScientificName: "Fasciola hepatica",
		Status:         models.StatusChangesRequested,
		UploadedBy:     "user-1",
	}
	inv := &mockInvalidator{}
	svc := NewRecordService(repo, &mockAuditSink{}, inv, nil, zap.NewNop())

	record, err := svc.Update(context.Background(), "rec-1", validInput(), contributorClaims())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, record.Status)
	assert.Equal(t, 1, inv.calls)
}

func TestRecordServiceUpdateKeepsOmittedFields(t *testing.T) {
	repo := newMockRecordRepo()
	year := 1995
	repo.records["rec-1"] = &models.Record{
		ID:             "rec-1",
		ScientificName: "Fasciola hepatica",
		HostSpecies:    "Sheep",
		DiscoveryYear:  &year,
		StudentName:    "Amina K",
		Status:         models.StatusApproved,
		UploadedBy:     "user-1",
	}
	svc := NewRecordService(repo, &mockAuditSink{}, &mockInvalidator{}, nil, zap.NewNop())

	record, err := svc.Update(context.Background(), "rec-1", RecordInput{CommonName: "Sheep liver fluke"}, contributorClaims())
	require.NoError(t, err)

	assert.Equal(t, "Sheep liver fluke", record.CommonName)
	assert.Equal(t, "Fasciola hepatica", record.ScientificName)
	assert.Equal(t, "Sheep", record.HostSpecies)
	assert.Equal(t, "Amina K", record.StudentName)
	require.NotNil(t, record.DiscoveryYear)
	assert.Equal(t, 1995, *record.DiscoveryYear)
}

func TestRecordServiceUpdateRejectsBlankScientificName(t *testing.T) {
	repo := newMockRecordRepo()
	repo.records["rec-1"] = &models.Record{ID: "rec-1", ScientificName: "Fasciola hepatica", Status: models.StatusApproved, UploadedBy: "user-1"}
	svc := NewRecordService(repo, nil, nil, nil, zap.NewNop())

	_, err := svc.Update(context.Background(), "rec-1", RecordInput{ScientificName: "   "}, contributorClaims())
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "Fasciola hepatica", repo.records["rec-1"].ScientificName)
}

func TestRecordServiceUpdateForbiddenForStranger(t *testing.T) {
	repo := newMockRecordRepo()
	repo.records["rec-1"] = &models.Record{ID: "rec-1", Status: models.StatusApproved, UploadedBy: "someone-else"}
	svc := NewRecordService(repo, nil, nil, nil, zap.NewNop())

	_, err := svc.Update(context.Background(), "rec-1", validInput(), contributorClaims())
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestRecordServiceDeleteRequiresReviewer(t *testing.T) {
	repo := newMockRecordRepo()
	repo.records["rec-1"] = &models.Record{ID: "rec-1", Status: models.StatusApproved, UploadedBy: "user-1"}
	svc := NewRecordService(repo, &mockAuditSink{}, &mockInvalidator{}, nil, zap.NewNop())

	err := svc.Delete(context.Background(), "rec-1", contributorClaims())
	require.Error(t, err)

	err = svc.Delete(context.Background(), "rec-1", adminClaims())
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-1"}, repo.deleted)
}

func TestRecordServiceDeleteMissingRecord(t *testing.T) {
	svc := NewRecordService(newMockRecordRepo(), nil, nil, nil, zap.NewNop())

	err := svc.Delete(context.Background(), "nope", adminClaims())
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
