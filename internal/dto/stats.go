package dto

import (
	"time"

	"github.com/helmintheca/archive-api/internal/stats"
)

// SummaryResponse wraps the aggregate summary with derived percentages.
type SummaryResponse struct {
	stats.Summary
	ImagedPercent float64   `json:"imaged_percent"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// GroupResponse carries grouped counts for one dimension.
type GroupResponse struct {
	Field   string        `json:"field"`
	Buckets []stats.Bucket `json:"buckets"`
	Total   int           `json:"total"`
}

// TimelineResponse carries the month-of-year submission timeline.
type TimelineResponse struct {
	Months []stats.MonthBucket `json:"months"`
}

// ContributorsResponse carries the contributor leaderboard.
type ContributorsResponse struct {
	Contributors []stats.Bucket `json:"contributors"`
}

// SystemMetrics summarises runtime health for the internal dashboard.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"avg_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"avg_db_query_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
