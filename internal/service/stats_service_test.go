package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helmintheca/archive-api/internal/models"
	appErrors "github.com/helmintheca/archive-api/pkg/errors"
)

type mockStatsSource struct {
	records []models.Record
}

func (m *mockStatsSource) Snapshot(ctx context.Context) ([]models.Record, error) {
	return m.records, nil
}

func statsFixture() []models.Record {
	imaged := func(id, student, host string, status models.RecordStatus, withImage bool) models.Record {
		rec := models.Record{ID: id, ScientificName: id, StudentName: student, HostSpecies: host, Status: status}
		if withImage {
			rec.ImageURL = "/uploads/" + id + ".jpg"
		}
		return rec
	}
	return []models.Record{
		imaged("rec-1", "Amina", "Human", models.StatusApproved, true),
		imaged("rec-2", "Amina", "Sheep", models.StatusApproved, false),
		imaged("rec-3", "Karim", "Human", models.StatusPending, true),
		imaged("rec-4", "Lina", "", models.StatusRejected, false),
	}
}

func TestStatsServiceSummaryCountsAllStatuses(t *testing.T) {
	svc := NewStatsService(&mockStatsSource{records: statsFixture()}, nil, time.Minute, 10, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.TotalRecords)
	assert.Equal(t, 2, summary.TotalImaged)
	assert.Equal(t, 3, summary.UniqueStudents)
	assert.InDelta(t, 50.0, summary.ImagedPercent, 0.001)
}

func TestStatsServiceGroupByHost(t *testing.T) {
	svc := NewStatsService(&mockStatsSource{records: statsFixture()}, nil, time.Minute, 10, zap.NewNop())

	resp, err := svc.GroupBy(context.Background(), "host")
	require.NoError(t, err)
	assert.Equal(t, "host", resp.Field)
	assert.Equal(t, 4, resp.Total)

	total := 0
	for _, bucket := range resp.Buckets {
		total += bucket.Value
	}
	assert.Equal(t, resp.Total, total)
}

func TestStatsServiceGroupByUnknownField(t *testing.T) {
	svc := NewStatsService(&mockStatsSource{}, nil, time.Minute, 10, zap.NewNop())

	_, err := svc.GroupBy(context.Background(), "favorite_color")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestStatsServiceTimelineHasTwelveMonths(t *testing.T) {
	svc := NewStatsService(&mockStatsSource{records: statsFixture()}, nil, time.Minute, 10, zap.NewNop())

	resp, err := svc.Timeline(context.Background())
	require.NoError(t, err)
	assert.Len(t, resp.Months, 12)
}

func TestStatsServiceContributorsRespectsLimit(t *testing.T) {
	svc := NewStatsService(&mockStatsSource{records: statsFixture()}, nil, time.Minute, 2, zap.NewNop())

	resp, err := svc.Contributors(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Contributors, 2)
	assert.Equal(t, "Amina", resp.Contributors[0].Name)
	assert.Equal(t, 2, resp.Contributors[0].Value)
}
