package catalog

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmintheca/archive-api/internal/models"
)

func intPtr(v int) *int { return &v }

func sampleRecords() []models.Record {
	created := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	return []models.Record{
		{ID: "1", ScientificName: "Fasciola hepatica", Type: "Trematode", Stage: "Adult", SampleType: "Liver", StainColor: "Carmine", HostSpecies: "Sheep", DiscoveryYear: intPtr(2021), Status: models.StatusApproved, StudentName: "Amal", CreatedAt: created},
		{ID: "2", ScientificName: "Giardia lamblia", Type: "Protozoa", Stage: "Trophozoite", SampleType: "Stool", StainColor: "Iodine", HostSpecies: "Human", DiscoveryYear: intPtr(2022), Status: models.StatusPending, StudentName: "Sara", CreatedAt: created},
		{ID: "3", ScientificName: "Ascaris lumbricoides", Type: "Nematode", Stage: "Egg", SampleType: "Stool", StainColor: "Saline", HostSpecies: "Human", DiscoveryYear: intPtr(2021), Status: models.StatusApproved, StudentName: "Sara", SupervisorName: "Dr. Hamdi", CreatedAt: created.AddDate(0, 1, 0)},
		{ID: "4", ScientificName: "Taenia saginata", Type: "Cestode", Stage: "Proglottid", SampleType: "Stool", HostSpecies: "Cattle", Status: models.StatusApproved, StudentName: "Amal", CreatedAt: created.AddDate(-1, 0, 0)},
		{ID: "5", ScientificName: "Leishmania donovani", Type: "Protozoa", Stage: "Amastigote", SampleType: "Bone marrow", StainColor: "Giemsa", HostSpecies: "Human", DiscoveryYear: intPtr(2023), Status: models.StatusRejected, CreatedAt: created},
	}
}

func TestFilterExcludesUnpublished(t *testing.T) {
	result := Filter(sampleRecords(), Query{})

	ids := make([]string, 0, len(result.Records))
	for _, rec := range result.Records {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"1", "3", "4"}, ids)
	assert.Equal(t, 3, result.Pagination.TotalCount)
}

func TestFilterReturnsSubset(t *testing.T) {
	records := sampleRecords()
	byID := make(map[string]models.Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	result := Filter(records, Query{Search: "a", Facets: FacetSelection{SampleTypes: []string{"Stool"}}})
	for _, rec := range result.Records {
		original, ok := byID[rec.ID]
		require.True(t, ok, "record %s was fabricated", rec.ID)
		assert.Equal(t, original, rec)
		assert.True(t, MatchFacets(rec, FacetSelection{SampleTypes: []string{"Stool"}}))
	}
}

func TestFilterFacetsANDAcrossORWithin(t *testing.T) {
	records := sampleRecords()

	// OR within one category.
	result := Filter(records, Query{Facets: FacetSelection{Types: []string{"Trematode", "Nematode"}}})
	assert.Len(t, result.Records, 2)

	// AND across categories narrows further.
	result = Filter(records, Query{Facets: FacetSelection{Types: []string{"Trematode", "Nematode"}, SampleTypes: []string{"Stool"}}})
	require.Len(t, result.Records, 1)
	assert.Equal(t, "3", result.Records[0].ID)
}

func TestFilterSearchNarrows(t *testing.T) {
	records := sampleRecords()
	term := ""
	prev := len(Filter(records, Query{Search: term}).Records)
	for _, ch := range "ascaris" {
		term += string(ch)
		current := len(Filter(records, Query{Search: term}).Records)
		assert.LessOrEqual(t, current, prev, "term %q returned more results than its prefix", term)
		prev = current
	}
	require.Equal(t, 1, prev)
}

func TestFilterSearchMatchesCreatedYear(t *testing.T) {
	result := Filter(sampleRecords(), Query{Search: "2023"})
	require.Len(t, result.Records, 1)
	assert.Equal(t, "4", result.Records[0].ID)
}

func TestFilterIdempotent(t *testing.T) {
	records := sampleRecords()
	q := Query{Search: "a", Facets: FacetSelection{SampleTypes: []string{"Stool"}}, PageSize: 100}

	once := Filter(records, q)
	twice := Filter(once.Records, q)
	assert.Equal(t, once.Records, twice.Records)
}

func TestFilterPaginationRoundTrip(t *testing.T) {
	records := make([]models.Record, 0, 30)
	for i := 0; i < 30; i++ {
		records = append(records, models.Record{
			ID:             fmt.Sprintf("rec-%02d", i),
			ScientificName: fmt.Sprintf("Species %02d", i),
			Status:         models.StatusApproved,
		})
	}

	full := Filter(records, Query{PageSize: 100})
	q := Query{PageSize: 12}
	first := Filter(records, q)
	require.Equal(t, 3, first.Pagination.TotalPages)

	var collected []models.Record
	for page := 1; page <= first.Pagination.TotalPages; page++ {
		q.Page = page
		collected = append(collected, Filter(records, q).Records...)
	}
	assert.Equal(t, full.Records, collected)
}

func TestFilterPageClamped(t *testing.T) {
	records := sampleRecords()

	result := Filter(records, Query{Page: 99, PageSize: 2})
	assert.Equal(t, 2, result.Pagination.Page)
	assert.NotEmpty(t, result.Records)

	result = Filter(records, Query{Page: -3, PageSize: 2})
	assert.Equal(t, 1, result.Pagination.Page)
}

func TestFilterNoMatchesIsEmptyNotError(t *testing.T) {
	result := Filter(sampleRecords(), Query{Search: "plasmodium"})
	assert.Empty(t, result.Records)
	assert.Equal(t, 0, result.Pagination.TotalCount)
	assert.Equal(t, 0, result.Pagination.TotalPages)
	assert.Equal(t, 1, result.Pagination.Page)
}

func TestFilterDefaultPageSize(t *testing.T) {
	result := Filter(sampleRecords(), Query{})
	assert.Equal(t, DefaultPageSize, result.Pagination.PageSize)
}

func TestFilterExplicitSortStable(t *testing.T) {
	result := Filter(sampleRecords(), Query{SortBy: "name"})
	require.Len(t, result.Records, 3)
	assert.Equal(t, "Ascaris lumbricoides", result.Records[0].ScientificName)
	assert.Equal(t, "Fasciola hepatica", result.Records[1].ScientificName)
	assert.Equal(t, "Taenia saginata", result.Records[2].ScientificName)
}

func TestFacetsDerivedFromData(t *testing.T) {
	vocab := Facets(sampleRecords())

	// Pending and rejected records do not contribute options.
	assert.NotContains(t, vocab.Types, "Protozoa")
	assert.ElementsMatch(t, []string{"Cestode", "Nematode", "Trematode"}, vocab.Types)
	assert.ElementsMatch(t, []string{"2021"}, vocab.Years)
	assert.ElementsMatch(t, []string{"Cattle", "Human", "Sheep"}, vocab.Hosts)
}

func TestFacetsEmptyDataset(t *testing.T) {
	vocab := Facets(nil)
	assert.Empty(t, vocab.Types)
	assert.Empty(t, vocab.Years)
}
