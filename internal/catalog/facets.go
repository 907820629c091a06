package catalog

import (
	"sort"
	"strconv"

	"github.com/helmintheca/archive-api/internal/models"
)

// Vocabulary lists the facet values actually present in the dataset.
// The archive UI builds its filter chips from this, so available options
// track the data rather than a fixed enum.
type Vocabulary struct {
	Types       []string `json:"types"`
	Stages      []string `json:"stages"`
	SampleTypes []string `json:"sample_types"`
	StainColors []string `json:"stain_colors"`
	Years       []string `json:"years"`
	Hosts       []string `json:"hosts"`
}

// Facets derives the vocabulary from the snapshot. Only published records
// contribute; distinct non-empty values are returned sorted.
func Facets(records []models.Record) Vocabulary {
	types := map[string]struct{}{}
	stages := map[string]struct{}{}
	sampleTypes := map[string]struct{}{}
	stainColors := map[string]struct{}{}
	years := map[string]struct{}{}
	hosts := map[string]struct{}{}

	for _, rec := range records {
		if rec.Status != models.StatusApproved {
			continue
		}
		addValue(types, rec.Type)
		addValue(stages, rec.Stage)
		addValue(sampleTypes, rec.SampleType)
		addValue(stainColors, rec.StainColor)
		addValue(hosts, rec.HostSpecies)
		if rec.DiscoveryYear != nil {
			addValue(years, strconv.Itoa(*rec.DiscoveryYear))
		}
	}

	return Vocabulary{
		Types:       sortedKeys(types),
		Stages:      sortedKeys(stages),
		SampleTypes: sortedKeys(sampleTypes),
		StainColors: sortedKeys(stainColors),
		Years:       sortedKeys(years),
		Hosts:       sortedKeys(hosts),
	}
}

func addValue(set map[string]struct{}, value string) {
	if value == "" {
		return
	}
	set[value] = struct{}{}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
