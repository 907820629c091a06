package service

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helmintheca/archive-api/internal/dto"
	"github.com/helmintheca/archive-api/internal/models"
	"github.com/helmintheca/archive-api/internal/repository"
	appErrors "github.com/helmintheca/archive-api/pkg/errors"
	"github.com/helmintheca/archive-api/pkg/jobs"
	"github.com/helmintheca/archive-api/pkg/storage"
)

type mockExportRepo struct {
	jobs map[string]*models.ExportJob
}

func newMockExportRepo() *mockExportRepo {
	return &mockExportRepo{jobs: make(map[string]*models.ExportJob)}
}

func (m *mockExportRepo) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = "job-1"
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *mockExportRepo) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *job
	return &copied, nil
}

func (m *mockExportRepo) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	job, ok := m.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (m *mockExportRepo) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	out := make([]models.ExportJob, 0)
	for _, job := range m.jobs {
		if job.Status == models.ExportStatusQueued {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (m *mockExportRepo) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	out := make([]models.ExportJob, 0)
	for _, job := range m.jobs {
		if job.Status == models.ExportStatusFinished && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			out = append(out, *job)
		}
	}
	return out, nil
}

func newTestExportService(t *testing.T, repo *mockExportRepo, source statsSource) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return NewExportService(repo, source, store, signer, validator.New(), ExportServiceConfig{}, zap.NewNop())
}

func TestExportServiceProcessCatalogCSV(t *testing.T) {
	repo := newMockExportRepo()
	source := &mockStatsSource{records: []models.Record{
		{ID: "rec-1", ScientificName: "Ascaris lumbricoides", HostSpecies: "Human", Status: models.StatusApproved},
		{ID: "rec-2", ScientificName: "Hidden", Status: models.StatusPending},
	}}
	svc := newTestExportService(t, repo, source)

	repo.jobs["job-1"] = &models.ExportJob{
		ID:     "job-1",
		Type:   models.ExportTypeCatalog,
		Status: models.ExportStatusQueued,
		Params: models.ExportJobParams{Format: models.ExportFormatCSV},
	}

	require.NoError(t, svc.process(context.Background(), jobs.Job{ID: "job-1"}))

	job := repo.jobs["job-1"]
	assert.Equal(t, models.ExportStatusFinished, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.ResultURL)

	data, err := os.ReadFile(svc.storage.Path(*job.ResultURL))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Ascaris lumbricoides")
	// Unpublished records are excluded from catalog exports.
	assert.NotContains(t, content, "Hidden")
}

func TestExportServiceProcessSkipsFinishedJob(t *testing.T) {
	repo := newMockExportRepo()
	svc := newTestExportService(t, repo, &mockStatsSource{})

	repo.jobs["job-1"] = &models.ExportJob{ID: "job-1", Status: models.ExportStatusFinished}
	require.NoError(t, svc.process(context.Background(), jobs.Job{ID: "job-1"}))
	assert.Equal(t, models.ExportStatusFinished, repo.jobs["job-1"].Status)
}

func TestExportServiceStatusSignsResultURL(t *testing.T) {
	repo := newMockExportRepo()
	svc := newTestExportService(t, repo, &mockStatsSource{})

	relPath := "catalog-job-1.csv"
	repo.jobs["job-1"] = &models.ExportJob{
		ID:        "job-1",
		Status:    models.ExportStatusFinished,
		Progress:  100,
		ResultURL: &relPath,
		CreatedBy: "user-1",
	}

	resp, err := svc.Status(context.Background(), "job-1", contributorClaims())
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFinished, resp.Status)
	require.NotNil(t, resp.ResultURL)
	assert.NotEqual(t, relPath, *resp.ResultURL)
}

func TestExportServiceStatusHiddenFromStrangers(t *testing.T) {
	repo := newMockExportRepo()
	svc := newTestExportService(t, repo, &mockStatsSource{})

	repo.jobs["job-1"] = &models.ExportJob{ID: "job-1", Status: models.ExportStatusQueued, CreatedBy: "someone-else"}

	_, err := svc.Status(context.Background(), "job-1", contributorClaims())
	require.Error(t, err)

	// Reviewers can inspect any job.
	_, err = svc.Status(context.Background(), "job-1", adminClaims())
	require.NoError(t, err)
}

func TestCatalogDatasetAppliesFilters(t *testing.T) {
	year := 1995
	other := 2001
	records := []models.Record{
		{ID: "rec-1", ScientificName: "Fasciola hepatica", HostSpecies: "Sheep", DiscoveryYear: &year, Status: models.StatusApproved},
		{ID: "rec-2", ScientificName: "Ascaris lumbricoides", HostSpecies: "Human", DiscoveryYear: &other, Status: models.StatusApproved},
	}

	dataset := catalogDataset(records, models.ExportJobParams{HostSpecies: "sheep"})
	require.Len(t, dataset.Rows, 1)
	assert.Equal(t, "Fasciola hepatica", dataset.Rows[0]["Scientific Name"])

	dataset = catalogDataset(records, models.ExportJobParams{Year: &other})
	require.Len(t, dataset.Rows, 1)
	assert.Equal(t, "Ascaris lumbricoides", dataset.Rows[0]["Scientific Name"])
}

func TestCatalogDatasetStatusFilterIncludesUnpublished(t *testing.T) {
	records := []models.Record{
		{ID: "rec-1", ScientificName: "Fasciola hepatica", Status: models.StatusApproved},
		{ID: "rec-2", ScientificName: "Taenia saginata", Status: models.StatusPending},
	}

	dataset := catalogDataset(records, models.ExportJobParams{Status: models.StatusPending})
	require.Len(t, dataset.Rows, 1)
	assert.Equal(t, "Taenia saginata", dataset.Rows[0]["Scientific Name"])
}

func TestExportServiceRequestValidatesPayload(t *testing.T) {
	repo := newMockExportRepo()
	svc := newTestExportService(t, repo, &mockStatsSource{})

	_, err := svc.Request(context.Background(), dto.ExportRequest{
		Type:   models.ExportType("spreadsheet"),
		Format: models.ExportFormatCSV,
	}, adminClaims())
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Empty(t, repo.jobs)
}

func TestExportServiceRequestCarriesStatusFilter(t *testing.T) {
	repo := newMockExportRepo()
	svc := newTestExportService(t, repo, &mockStatsSource{})

	resp, err := svc.Request(context.Background(), dto.ExportRequest{
		Type:   models.ExportTypeCatalog,
		Format: models.ExportFormatCSV,
		Status: models.StatusPending,
	}, reviewerClaims())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, repo.jobs[resp.ID].Params.Status)
}

func TestExportServiceRequestStatusFilterNeedsReviewer(t *testing.T) {
	repo := newMockExportRepo()
	svc := newTestExportService(t, repo, &mockStatsSource{})

	_, err := svc.Request(context.Background(), dto.ExportRequest{
		Type:   models.ExportTypeCatalog,
		Format: models.ExportFormatCSV,
		Status: models.StatusPending,
	}, contributorClaims())
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.Empty(t, repo.jobs)
}

func TestStatisticsDatasetCoversDimensions(t *testing.T) {
	records := []models.Record{
		{ID: "rec-1", HostSpecies: "Human", Type: "Nematode", Status: models.StatusApproved},
	}
	dataset := statisticsDataset(records)
	require.NotEmpty(t, dataset.Rows)

	dims := make(map[string]bool)
	for _, row := range dataset.Rows {
		dims[row["Dimension"]] = true
	}
	assert.True(t, dims["host"])
	assert.True(t, dims["type"])
}

func TestExportServiceResolveDownloadRejectsBadToken(t *testing.T) {
	svc := newTestExportService(t, newMockExportRepo(), &mockStatsSource{})

	_, _, err := svc.ResolveDownload("not-a-real-token")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "token"))
}
