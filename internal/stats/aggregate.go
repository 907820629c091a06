// Package stats derives grouped counts and dashboard summaries from a
// record snapshot. All functions are pure and O(n); callers recompute on
// every data change instead of maintaining incremental state.
package stats

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/helmintheca/archive-api/internal/models"
)

// UnknownBucket labels records whose grouping field is empty.
const UnknownBucket = "Unknown"

// DefaultTopContributors caps the contributor leaderboard.
const DefaultTopContributors = 10

// Bucket is one named count in a grouped result.
type Bucket struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// MonthBucket counts records and imaged records per calendar month.
// Buckets are month-of-year; createdAt values from different years fall
// into the same bucket.
type MonthBucket struct {
	Month       string `json:"month"`
	RecordCount int    `json:"record_count"`
	ImageCount  int    `json:"image_count"`
}

// Summary aggregates headline dashboard figures.
type Summary struct {
	TotalRecords         int     `json:"total_records"`
	TotalImaged          int     `json:"total_imaged"`
	UniqueStudents       int     `json:"unique_students"`
	UniqueSupervisors    int     `json:"unique_supervisors"`
	UniqueHosts          int     `json:"unique_hosts"`
	UniqueTypes          int     `json:"unique_types"`
	AvgRecordsPerStudent float64 `json:"avg_records_per_student"`
}

// GroupField names a CountBy dimension.
type GroupField string

const (
	GroupByHost       GroupField = "host"
	GroupByType       GroupField = "type"
	GroupByStage      GroupField = "stage"
	GroupBySampleType GroupField = "sample_type"
	GroupByStainColor GroupField = "stain_color"
)

// KnownGroupField reports whether the field is a supported dimension.
func KnownGroupField(field GroupField) bool {
	switch field {
	case GroupByHost, GroupByType, GroupByStage, GroupBySampleType, GroupByStainColor:
		return true
	}
	return false
}

// CountBy groups the snapshot by the given field. Empty values collapse
// into the Unknown bucket. Buckets are sorted by descending count, then
// name, so output is deterministic.
func CountBy(records []models.Record, field GroupField) []Bucket {
	counts := make(map[string]int)
	for _, rec := range records {
		value := groupValue(rec, field)
		if value == "" {
			value = UnknownBucket
		}
		counts[value]++
	}
	return sortBuckets(counts)
}

func groupValue(rec models.Record, field GroupField) string {
	switch field {
	case GroupByHost:
		return rec.HostSpecies
	case GroupByType:
		return rec.Type
	case GroupByStage:
		return rec.Stage
	case GroupBySampleType:
		return rec.SampleType
	case GroupByStainColor:
		return rec.StainColor
	}
	return ""
}

// MonthlyTimeline buckets records into the 12 calendar months by
// createdAt month-of-year, counting total records and records that carry
// an image. Records without a timestamp are skipped.
func MonthlyTimeline(records []models.Record) []MonthBucket {
	timeline := make([]MonthBucket, 12)
	for i := range timeline {
		timeline[i].Month = time.Month(i + 1).String()[:3]
	}
	for _, rec := range records {
		if rec.CreatedAt.IsZero() {
			continue
		}
		idx := int(rec.CreatedAt.Month()) - 1
		timeline[idx].RecordCount++
		if rec.HasImage() {
			timeline[idx].ImageCount++
		}
	}
	return timeline
}

// TopContributors returns the n students with the most records, missing
// names collapsing into the Unknown bucket. n <= 0 uses the default cap.
func TopContributors(records []models.Record, n int) []Bucket {
	if n <= 0 {
		n = DefaultTopContributors
	}
	counts := make(map[string]int)
	for _, rec := range records {
		name := strings.TrimSpace(rec.StudentName)
		if name == "" {
			name = UnknownBucket
		}
		counts[name]++
	}
	buckets := sortBuckets(counts)
	if len(buckets) > n {
		buckets = buckets[:n]
	}
	return buckets
}

// Summarize computes headline figures over the snapshot. Averages over an
// empty contributor set are 0, never NaN.
func Summarize(records []models.Record) Summary {
	students := make(map[string]struct{})
	supervisors := make(map[string]struct{})
	hosts := make(map[string]struct{})
	types := make(map[string]struct{})

	summary := Summary{TotalRecords: len(records)}
	for _, rec := range records {
		if rec.HasImage() {
			summary.TotalImaged++
		}
		addNonEmpty(students, rec.StudentName)
		addNonEmpty(supervisors, rec.SupervisorName)
		addNonEmpty(hosts, rec.HostSpecies)
		addNonEmpty(types, rec.Type)
	}

	summary.UniqueStudents = len(students)
	summary.UniqueSupervisors = len(supervisors)
	summary.UniqueHosts = len(hosts)
	summary.UniqueTypes = len(types)
	if summary.UniqueStudents > 0 {
		summary.AvgRecordsPerStudent = float64(summary.TotalRecords) / float64(summary.UniqueStudents)
	}
	return summary
}

// Percent returns part/total as a percentage rounded to one decimal.
// A zero total short-circuits to 0 rather than propagating NaN.
func Percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}

func addNonEmpty(set map[string]struct{}, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	set[value] = struct{}{}
}

func sortBuckets(counts map[string]int) []Bucket {
	buckets := make([]Bucket, 0, len(counts))
	for name, value := range counts {
		buckets = append(buckets, Bucket{Name: name, Value: value})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Value != buckets[j].Value {
			return buckets[i].Value > buckets[j].Value
		}
		return buckets[i].Name < buckets[j].Name
	})
	return buckets
}
