package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/helmintheca/archive-api/internal/models"
)

// RecordRepository manages persistence for archive records.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository constructs a RecordRepository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// recordColumns selects the canonical field set. Legacy column spellings
// (imageurl, host) are aliased here so the inconsistency never leaves the
// repository.
const recordColumns = `id, scientific_name, common_name, arabic_name, french_name, description, description_ar, description_fr,
        host_species, type, stage, sample_type, stain_color, discovery_year, image_url, status,
        student_name, supervisor_name, uploaded_by, reviewed_by, review_notes, created_at, updated_at, reviewed_at`

// List returns records matching the provided filters with a total count.
func (r *RecordRepository) List(ctx context.Context, filter models.RecordFilter) ([]models.Record, int, error) {
	base := "FROM records WHERE 1=1"
	var conditions []string
	var args []interface{}

	if len(filter.Status) > 0 {
		placeholders := make([]string, 0, len(filter.Status))
		for _, status := range filter.Status {
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)+1))
			args = append(args, status)
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filter.HostSpecies != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(host_species) = $%d", len(args)+1))
		args = append(args, strings.ToLower(filter.HostSpecies))
	}
	if filter.Year != nil {
		conditions = append(conditions, fmt.Sprintf("discovery_year = $%d", len(args)+1))
		args = append(args, *filter.Year)
	}
	if filter.UploadedBy != "" {
		conditions = append(conditions, fmt.Sprintf("uploaded_by = $%d", len(args)+1))
		args = append(args, filter.UploadedBy)
	}
	if filter.Search != "" {
		n := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(scientific_name) LIKE $%d OR LOWER(arabic_name) LIKE $%d OR LOWER(student_name) LIKE $%d)", n, n, n))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"scientific_name": "scientific_name",
		"discovery_year":  "discovery_year",
		"created_at":      "created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 1000 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", recordColumns, base, column, order, size, offset)

	var records []models.Record
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}
	return records, total, nil
}

// ListAll returns every record in creation order, newest first. The
// catalog and statistics services snapshot the dataset through this.
func (r *RecordRepository) ListAll(ctx context.Context) ([]models.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM records ORDER BY created_at DESC, id", recordColumns)
	var records []models.Record
	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("list all records: %w", err)
	}
	return records, nil
}

// FindByID fetches a record by ID.
func (r *RecordRepository) FindByID(ctx context.Context, id string) (*models.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM records WHERE id = $1", recordColumns)
	var record models.Record
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// Create inserts a new record.
func (r *RecordRepository) Create(ctx context.Context, record *models.Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO records (id, scientific_name, common_name, arabic_name, french_name, description, description_ar, description_fr,
        host_species, type, stage, sample_type, stain_color, discovery_year, image_url, status,
        student_name, supervisor_name, uploaded_by, reviewed_by, review_notes, created_at, updated_at, reviewed_at)
        VALUES (:id, :scientific_name, :common_name, :arabic_name, :french_name, :description, :description_ar, :description_fr,
        :host_species, :type, :stage, :sample_type, :stain_color, :discovery_year, :image_url, :status,
        :student_name, :supervisor_name, :uploaded_by, :reviewed_by, :review_notes, :created_at, :updated_at, :reviewed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

// Update modifies the descriptive fields of an existing record.
func (r *RecordRepository) Update(ctx context.Context, record *models.Record) error {
	record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE records SET scientific_name = :scientific_name, common_name = :common_name, arabic_name = :arabic_name,
        french_name = :french_name, description = :description, description_ar = :description_ar, description_fr = :description_fr,
        host_species = :host_species, type = :type, stage = :stage, sample_type = :sample_type, stain_color = :stain_color,
        discovery_year = :discovery_year, image_url = :image_url, status = :status, student_name = :student_name,
        supervisor_name = :supervisor_name, updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatusParams carries a review decision for persistence.
type UpdateStatusParams struct {
	ID          string
	FromStatus  models.RecordStatus
	Status      models.RecordStatus
	ReviewedBy  string
	ReviewedAt  time.Time
	ReviewNotes *string
}

// UpdateStatus applies a review transition guarded by the expected
// current status, so a record reviewed concurrently is not overwritten.
// Returns sql.ErrNoRows when the guard fails.
func (r *RecordRepository) UpdateStatus(ctx context.Context, params UpdateStatusParams) error {
	const query = `UPDATE records SET status = $1, reviewed_by = $2, reviewed_at = $3, review_notes = $4, updated_at = $3
        WHERE id = $5 AND status = $6`
	result, err := r.db.ExecContext(ctx, query, params.Status, params.ReviewedBy, params.ReviewedAt, params.ReviewNotes, params.ID, params.FromStatus)
	if err != nil {
		return fmt.Errorf("update record status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record status affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetImageURL stores the relative image path for a record.
func (r *RecordRepository) SetImageURL(ctx context.Context, id, imageURL string) error {
	const query = `UPDATE records SET image_url = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, imageURL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set record image: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete permanently removes a record. The caller only drops it from any
// cached snapshot after this confirms.
func (r *RecordRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM records WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
