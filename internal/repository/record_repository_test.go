package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmintheca/archive-api/internal/models"
)

func newRecordMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func recordRows() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "scientific_name", "common_name", "arabic_name", "french_name", "description", "description_ar", "description_fr",
		"host_species", "type", "stage", "sample_type", "stain_color", "discovery_year", "image_url", "status",
		"student_name", "supervisor_name", "uploaded_by", "reviewed_by", "review_notes", "created_at", "updated_at", "reviewed_at",
	}).AddRow("rec-1", "Fasciola hepatica", "Liver fluke", "", "", "", "", "",
		"Sheep", "Trematode", "Adult", "Liver", "Carmine", 2021, "specimens/fasciola.jpg", "APPROVED",
		"Amal", "Dr. Hamdi", "user-1", nil, nil, now, now, nil)
}

func TestRecordRepositoryListWithFilters(t *testing.T) {
	db, mock, cleanup := newRecordMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectQuery(`SELECT id, scientific_name, .+ FROM records WHERE 1=1 AND status IN \(\$1\) AND LOWER\(host_species\) = \$2 ORDER BY created_at DESC LIMIT 20 OFFSET 0`).
		WithArgs(models.StatusApproved, "sheep").
		WillReturnRows(recordRows())
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM records WHERE 1=1 AND status IN \(\$1\) AND LOWER\(host_species\) = \$2`).
		WithArgs(models.StatusApproved, "sheep").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	records, total, err := repo.List(context.Background(), models.RecordFilter{
		Status:      []models.RecordStatus{models.StatusApproved},
		HostSpecies: "Sheep",
	})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Fasciola hepatica", records[0].ScientificName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newRecordMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectExec("INSERT INTO records").
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.Record{ScientificName: "Giardia lamblia", Status: models.StatusPending}
	err := repo.Create(context.Background(), record)
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.False(t, record.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryUpdateStatusGuarded(t *testing.T) {
	db, mock, cleanup := newRecordMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	now := time.Now().UTC()
	notes := "incomplete data"
	mock.ExpectExec("UPDATE records SET status").
		WithArgs(models.StatusRejected, "reviewer-1", now, notes, "rec-1", models.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), UpdateStatusParams{
		ID:          "rec-1",
		FromStatus:  models.StatusPending,
		Status:      models.StatusRejected,
		ReviewedBy:  "reviewer-1",
		ReviewedAt:  now,
		ReviewNotes: &notes,
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRecordMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectExec("DELETE FROM records").
		WithArgs("nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryListAll(t *testing.T) {
	db, mock, cleanup := newRecordMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectQuery(`SELECT id, scientific_name, .+ FROM records ORDER BY created_at DESC, id`).
		WillReturnRows(recordRows())

	records, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
