// Package catalog implements the public archive view: deterministic
// filtering, searching, and pagination over an in-memory record snapshot.
// Everything here is pure; callers fetch the snapshot and pass it in.
package catalog

import (
	"sort"
	"strconv"
	"strings"

	"github.com/helmintheca/archive-api/internal/models"
)

// DefaultPageSize is the archive grid page size.
const DefaultPageSize = 12

// FacetSelection holds the selected values per facet category. An empty
// category places no constraint; within a category values are OR-ed,
// across categories AND-ed.
type FacetSelection struct {
	Types       []string `json:"types,omitempty"`
	Stages      []string `json:"stages,omitempty"`
	SampleTypes []string `json:"sample_types,omitempty"`
	StainColors []string `json:"stain_colors,omitempty"`
	Years       []string `json:"years,omitempty"`
}

// Empty reports whether no facet constrains the result.
func (f FacetSelection) Empty() bool {
	return len(f.Types) == 0 && len(f.Stages) == 0 && len(f.SampleTypes) == 0 &&
		len(f.StainColors) == 0 && len(f.Years) == 0
}

// Query describes one archive view request.
type Query struct {
	Search    string
	Facets    FacetSelection
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Result is a filtered, paginated archive page.
type Result struct {
	Records    []models.Record   `json:"records"`
	Pagination models.Pagination `json:"pagination"`
}

// Filter produces the public archive view of the snapshot: pending and
// otherwise unpublished records are excluded, then search and facet
// predicates are applied in store order and the result paginated.
func Filter(records []models.Record, q Query) Result {
	matched := make([]models.Record, 0, len(records))
	for _, rec := range records {
		if rec.Status != models.StatusApproved {
			continue
		}
		if !MatchSearch(rec, q.Search) {
			continue
		}
		if !MatchFacets(rec, q.Facets) {
			continue
		}
		matched = append(matched, rec)
	}

	sortRecords(matched, q.SortBy, q.SortOrder)

	return paginate(matched, q.Page, q.PageSize)
}

// MatchSearch reports whether the record matches the free-text term.
// The match is a case-insensitive substring test over the name and
// attribution fields plus the year prefix of the creation timestamp, so
// searching "2024" finds records submitted that year. An empty term
// matches everything.
func MatchSearch(rec models.Record, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	candidates := []string{
		rec.ScientificName,
		rec.CommonName,
		rec.ArabicName,
		rec.StudentName,
		rec.SupervisorName,
	}
	for _, field := range candidates {
		if field != "" && strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	if !rec.CreatedAt.IsZero() {
		year := strconv.Itoa(rec.CreatedAt.Year())
		if strings.HasPrefix(year, term) || strings.Contains(rec.CreatedAt.Format("2006-01-02"), term) {
			return true
		}
	}
	return false
}

// MatchFacets reports whether the record satisfies every non-empty facet
// category.
func MatchFacets(rec models.Record, sel FacetSelection) bool {
	if !matchOne(rec.Type, sel.Types) {
		return false
	}
	if !matchOne(rec.Stage, sel.Stages) {
		return false
	}
	if !matchOne(rec.SampleType, sel.SampleTypes) {
		return false
	}
	if !matchOne(rec.StainColor, sel.StainColors) {
		return false
	}
	if !matchOne(yearValue(rec), sel.Years) {
		return false
	}
	return true
}

func matchOne(value string, selected []string) bool {
	if len(selected) == 0 {
		return true
	}
	for _, s := range selected {
		if strings.EqualFold(value, s) {
			return true
		}
	}
	return false
}

func yearValue(rec models.Record) string {
	if rec.DiscoveryYear == nil {
		return ""
	}
	return strconv.Itoa(*rec.DiscoveryYear)
}

// sortRecords applies an explicit sort when requested. Without one the
// snapshot order is preserved; the sorts are stable so equal keys keep
// their relative store order.
func sortRecords(records []models.Record, sortBy, sortOrder string) {
	var less func(a, b models.Record) bool
	switch sortBy {
	case "name":
		less = func(a, b models.Record) bool {
			return strings.ToLower(a.ScientificName) < strings.ToLower(b.ScientificName)
		}
	case "year":
		less = func(a, b models.Record) bool {
			av, bv := 0, 0
			if a.DiscoveryYear != nil {
				av = *a.DiscoveryYear
			}
			if b.DiscoveryYear != nil {
				bv = *b.DiscoveryYear
			}
			return av < bv
		}
	case "created_at":
		less = func(a, b models.Record) bool { return a.CreatedAt.Before(b.CreatedAt) }
	default:
		return
	}
	desc := strings.EqualFold(sortOrder, "DESC")
	sort.SliceStable(records, func(i, j int) bool {
		if desc {
			return less(records[j], records[i])
		}
		return less(records[i], records[j])
	})
}

func paginate(records []models.Record, page, pageSize int) Result {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	total := len(records)
	totalPages := (total + pageSize - 1) / pageSize

	if page < 1 {
		page = 1
	}
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return Result{
		Records: records[start:end],
		Pagination: models.Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalCount: total,
			TotalPages: totalPages,
		},
	}
}
