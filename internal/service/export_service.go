package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/helmintheca/archive-api/internal/dto"
	"github.com/helmintheca/archive-api/internal/models"
	"github.com/helmintheca/archive-api/internal/repository"
	"github.com/helmintheca/archive-api/internal/stats"
	appErrors "github.com/helmintheca/archive-api/pkg/errors"
	"github.com/helmintheca/archive-api/pkg/export"
	"github.com/helmintheca/archive-api/pkg/jobs"
	"github.com/helmintheca/archive-api/pkg/storage"
)

type exportJobRepository interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
}

// ExportServiceConfig tunes the export worker pool and retention.
type ExportServiceConfig struct {
	WorkerConcurrency int
	WorkerRetries     int
	RetentionTTL      time.Duration
	CleanupInterval   time.Duration
}

// ExportService renders catalog and statistics exports asynchronously.
// Jobs are persisted before they are queued, so a restart can re-enqueue
// anything that never ran. Finished artifacts are served through signed
// URLs and reaped after the retention window.
type ExportService struct {
	repo      exportJobRepository
	source    statsSource
	storage   *storage.LocalStorage
	signer    *storage.SignedURLSigner
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	queue     *jobs.Queue
	validator *validator.Validate
	logger    *zap.Logger

	retentionTTL    time.Duration
	cleanupInterval time.Duration
	cleanupCancel   context.CancelFunc
	now             func() time.Time
}

// NewExportService constructs the export service and its queue.
func NewExportService(repo exportJobRepository, source statsSource, store *storage.LocalStorage, signer *storage.SignedURLSigner, validate *validator.Validate, cfg ExportServiceConfig, logger *zap.Logger) *ExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetentionTTL <= 0 {
		cfg.RetentionTTL = 24 * time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	s := &ExportService{
		repo:            repo,
		source:          source,
		storage:         store,
		signer:          signer,
		csv:             export.NewCSVExporter(),
		pdf:             export.NewPDFExporter(),
		validator:       validate,
		logger:          logger,
		retentionTTL:    cfg.RetentionTTL,
		cleanupInterval: cfg.CleanupInterval,
		now:             time.Now,
	}
	s.queue = jobs.NewQueue("exports", s.process, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches workers, re-enqueues jobs left queued by a previous
// run, and begins the artifact cleanup loop.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)

	queued, err := s.repo.ListQueued(ctx, 100)
	if err != nil {
		s.logger.Warn("failed to recover queued export jobs", zap.Error(err))
	}
	for _, job := range queued {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
			s.logger.Warn("failed to re-enqueue export job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}

	cleanupCtx, cancel := context.WithCancel(ctx)
	s.cleanupCancel = cancel
	go s.cleanupLoop(cleanupCtx)
}

// Stop drains workers and halts cleanup.
func (s *ExportService) Stop() {
	if s.cleanupCancel != nil {
		s.cleanupCancel()
	}
	s.queue.Stop()
}

// Request persists and queues a new export job. Filtering a catalog
// export to anything but published records is reserved for reviewers,
// since those rows never appear in the public archive.
func (s *ExportService) Request(ctx context.Context, req dto.ExportRequest, actor *models.JWTClaims) (*dto.ExportJobResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export request")
	}
	if req.Status != "" && req.Status != models.StatusApproved && !actor.Role.CanReview() {
		return nil, appErrors.ErrForbidden
	}
	job := &models.ExportJob{
		Type:   req.Type,
		Status: models.ExportStatusQueued,
		Params: models.ExportJobParams{
			Format:      req.Format,
			HostSpecies: req.HostSpecies,
			Year:        req.Year,
			Status:      req.Status,
		},
		CreatedBy: actor.UserID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		s.logger.Warn("failed to enqueue export job", zap.String("job_id", job.ID), zap.Error(err))
	}
	return &dto.ExportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// Status reports job progress. The result URL is minted fresh on every
// call so the signature never outlives its TTL in a stored row.
func (s *ExportService) Status(ctx context.Context, jobID string, actor *models.JWTClaims) (*dto.ExportStatusResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.CreatedBy != actor.UserID && !actor.Role.CanReview() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}

	resp := &dto.ExportStatusResponse{ID: job.ID, Status: job.Status, Progress: job.Progress, Error: job.ErrorMessage}
	if job.Status == models.ExportStatusFinished && job.ResultURL != nil {
		signed, _, err := s.signer.Generate(job.ID, *job.ResultURL)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
		}
		resp.ResultURL = &signed
	}
	return resp, nil
}

// ResolveDownload validates a signed token and returns the on-disk path
// and suggested filename of the artifact.
func (s *ExportService) ResolveDownload(token string) (path, filename string, err error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	parts := strings.Split(relPath, "/")
	return s.storage.Path(relPath), parts[len(parts)-1], nil
}

func (s *ExportService) process(ctx context.Context, job jobs.Job) error {
	record, err := s.repo.GetByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load export job %s: %w", job.ID, err)
	}
	if record.Status != models.ExportStatusQueued && record.Status != models.ExportStatusProcessing {
		return nil
	}

	s.setStatus(ctx, record.ID, models.ExportStatusProcessing, 10)

	records, err := s.source.Snapshot(ctx)
	if err != nil {
		s.fail(ctx, record.ID, err)
		return err
	}
	s.setStatus(ctx, record.ID, models.ExportStatusProcessing, 40)

	dataset, title := s.buildDataset(record.Type, record.Params, records)

	var payload []byte
	switch record.Params.Format {
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		payload, err = s.csv.Render(dataset)
	}
	if err != nil {
		s.fail(ctx, record.ID, err)
		return err
	}
	s.setStatus(ctx, record.ID, models.ExportStatusProcessing, 80)

	filename := fmt.Sprintf("%s-%s.%s", record.Type, record.ID, record.Params.Format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		s.fail(ctx, record.ID, err)
		return err
	}

	status := models.ExportStatusFinished
	progress := 100
	finishedAt := s.now().UTC()
	err = s.repo.Update(ctx, record.ID, repository.UpdateExportJobParams{
		Status:     &status,
		Progress:   &progress,
		ResultURL:  &relPath,
		FinishedAt: &finishedAt,
	})
	if err != nil {
		return fmt.Errorf("finalize export job %s: %w", record.ID, err)
	}
	s.logger.Info("export job finished", zap.String("job_id", record.ID), zap.String("type", string(record.Type)))
	return nil
}

func (s *ExportService) buildDataset(exportType models.ExportType, params models.ExportJobParams, records []models.Record) (export.Dataset, string) {
	switch exportType {
	case models.ExportTypeStatistics:
		return statisticsDataset(records), "Archive Statistics"
	case models.ExportTypeContributors:
		return contributorsDataset(records), "Contributor Leaderboard"
	default:
		return catalogDataset(records, params), "Parasitology Catalog"
	}
}

func catalogDataset(records []models.Record, params models.ExportJobParams) export.Dataset {
	headers := []string{"Scientific Name", "Common Name", "Host Species", "Type", "Stage", "Sample Type", "Stain Color", "Discovery Year", "Status", "Student", "Supervisor"}
	rows := make([]map[string]string, 0, len(records))
	for _, r := range records {
		if params.Status != "" && r.Status != params.Status {
			continue
		}
		if params.Status == "" && r.Status != models.StatusApproved {
			continue
		}
		if params.HostSpecies != "" && !strings.EqualFold(r.HostSpecies, params.HostSpecies) {
			continue
		}
		if params.Year != nil && (r.DiscoveryYear == nil || *r.DiscoveryYear != *params.Year) {
			continue
		}
		year := ""
		if r.DiscoveryYear != nil {
			year = strconv.Itoa(*r.DiscoveryYear)
		}
		rows = append(rows, map[string]string{
			"Scientific Name": r.ScientificName,
			"Common Name":     r.CommonName,
			"Host Species":    r.HostSpecies,
			"Type":            r.Type,
			"Stage":           r.Stage,
			"Sample Type":     r.SampleType,
			"Stain Color":     r.StainColor,
			"Discovery Year":  year,
			"Status":          string(r.Status),
			"Student":         r.StudentName,
			"Supervisor":      r.SupervisorName,
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func statisticsDataset(records []models.Record) export.Dataset {
	headers := []string{"Dimension", "Value", "Count"}
	rows := make([]map[string]string, 0)
	for _, field := range []stats.GroupField{stats.GroupByHost, stats.GroupByType, stats.GroupByStage, stats.GroupBySampleType, stats.GroupByStainColor} {
		for _, bucket := range stats.CountBy(records, field) {
			rows = append(rows, map[string]string{
				"Dimension": string(field),
				"Value":     bucket.Name,
				"Count":     strconv.Itoa(bucket.Value),
			})
		}
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func contributorsDataset(records []models.Record) export.Dataset {
	headers := []string{"Student", "Records"}
	buckets := stats.TopContributors(records, len(records))
	rows := make([]map[string]string, 0, len(buckets))
	for _, bucket := range buckets {
		rows = append(rows, map[string]string{
			"Student": bucket.Name,
			"Records": strconv.Itoa(bucket.Value),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func (s *ExportService) setStatus(ctx context.Context, id string, status models.ExportStatus, progress int) {
	if err := s.repo.Update(ctx, id, repository.UpdateExportJobParams{Status: &status, Progress: &progress}); err != nil {
		s.logger.Warn("failed to update export job", zap.String("job_id", id), zap.Error(err))
	}
}

func (s *ExportService) fail(ctx context.Context, id string, cause error) {
	status := models.ExportStatusFailed
	msg := cause.Error()
	finishedAt := s.now().UTC()
	err := s.repo.Update(ctx, id, repository.UpdateExportJobParams{
		Status:       &status,
		ErrorMessage: &msg,
		FinishedAt:   &finishedAt,
	})
	if err != nil {
		s.logger.Warn("failed to mark export job failed", zap.String("job_id", id), zap.Error(err))
	}
}

func (s *ExportService) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupOnce(ctx)
		}
	}
}

func (s *ExportService) cleanupOnce(ctx context.Context) {
	cutoff := s.now().UTC().Add(-s.retentionTTL)
	old, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
	if err != nil {
		s.logger.Warn("export cleanup listing failed", zap.Error(err))
		return
	}
	for _, job := range old {
		if job.ResultURL != nil {
			if err := s.storage.Delete(*job.ResultURL); err != nil {
				s.logger.Warn("failed to delete export artifact", zap.String("job_id", job.ID), zap.Error(err))
			}
		}
	}
	if removed, err := s.storage.CleanupOlderThan(s.retentionTTL); err != nil {
		s.logger.Warn("export storage sweep failed", zap.Error(err))
	} else if len(removed) > 0 {
		s.logger.Info("export artifacts removed", zap.Int("count", len(removed)))
	}
}
