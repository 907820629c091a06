package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helmintheca/archive-api/internal/catalog"
	"github.com/helmintheca/archive-api/internal/models"
)

type mockSnapshotRepo struct {
	records []models.Record
	calls   int
}

func (m *mockSnapshotRepo) ListAll(ctx context.Context) ([]models.Record, error) {
	m.calls++
	return m.records, nil
}

func approvedRecord(id, name, host string) models.Record {
	return models.Record{
		ID:             id,
		ScientificName: name,
		HostSpecies:    host,
		Status:         models.StatusApproved,
		CreatedAt:      time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCatalogServiceBrowseFiltersSnapshot(t *testing.T) {
	repo := &mockSnapshotRepo{records: []models.Record{
		approvedRecord("rec-1", "Ascaris lumbricoides", "Human"),
		approvedRecord("rec-2", "Fasciola hepatica", "Sheep"),
		{ID: "rec-3", ScientificName: "Taenia saginata", Status: models.StatusPending},
	}}
	svc := NewCatalogService(repo, nil, nil, time.Minute, zap.NewNop())

	result, _, err := svc.Browse(context.Background(), catalog.Query{Search: "ascaris"})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "rec-1", result.Records[0].ID)
}

func TestCatalogServiceFacetsFromPublishedOnly(t *testing.T) {
	repo := &mockSnapshotRepo{records: []models.Record{
		approvedRecord("rec-1", "Ascaris lumbricoides", "Human"),
		{ID: "rec-2", ScientificName: "Hidden", HostSpecies: "Dog", Status: models.StatusPending},
	}}
	svc := NewCatalogService(repo, nil, nil, time.Minute, zap.NewNop())

	vocab, err := svc.Facets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Human"}, vocab.Hosts)
}

func TestCatalogServiceInvalidateBumpsGeneration(t *testing.T) {
	svc := NewCatalogService(&mockSnapshotRepo{}, nil, nil, time.Minute, zap.NewNop())

	before := svc.cacheKey("page", "abc")
	svc.Invalidate(context.Background())
	after := svc.cacheKey("page", "abc")
	assert.NotEqual(t, before, after)
}

func TestQueryFingerprintStableUnderFacetOrder(t *testing.T) {
	a := catalog.Query{Facets: catalog.FacetSelection{Types: []string{"Nematode", "Trematode"}}}
	b := catalog.Query{Facets: catalog.FacetSelection{Types: []string{"trematode", "NEMATODE"}}}
	assert.Equal(t, queryFingerprint(a), queryFingerprint(b))

	c := catalog.Query{Facets: catalog.FacetSelection{Types: []string{"Cestode"}}}
	assert.NotEqual(t, queryFingerprint(a), queryFingerprint(c))
}
