package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/helmintheca/archive-api/internal/dto"
	"github.com/helmintheca/archive-api/internal/models"
	"github.com/helmintheca/archive-api/internal/stats"
	appErrors "github.com/helmintheca/archive-api/pkg/errors"
)

type statsSource interface {
	Snapshot(ctx context.Context) ([]models.Record, error)
}

// StatsService computes archive statistics over the full dataset,
// including records still in review. Aggregates are cached briefly
// because every one of them is a full-snapshot scan.
type StatsService struct {
	source          statsSource
	cache           *CacheService
	logger          *zap.Logger
	ttl             time.Duration
	topContributors int
	now             func() time.Time
}

// NewStatsService constructs the statistics service.
func NewStatsService(source statsSource, cache *CacheService, ttl time.Duration, topContributors int, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if topContributors <= 0 {
		topContributors = stats.DefaultTopContributors
	}
	return &StatsService{
		source:          source,
		cache:           cache,
		logger:          logger,
		ttl:             ttl,
		topContributors: topContributors,
		now:             time.Now,
	}
}

// Summary returns dataset-wide totals and uniqueness counts.
func (s *StatsService) Summary(ctx context.Context) (*dto.SummaryResponse, error) {
	const key = "stats:summary"
	if s.cache != nil {
		var cached dto.SummaryResponse
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	records, err := s.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	summary := stats.Summarize(records)
	resp := &dto.SummaryResponse{
		Summary:       summary,
		ImagedPercent: stats.Percent(summary.TotalImaged, summary.TotalRecords),
		GeneratedAt:   s.now().UTC(),
	}
	s.store(ctx, key, resp)
	return resp, nil
}

// GroupBy returns counts bucketed by one record dimension. Unknown
// fields are rejected before the snapshot is loaded.
func (s *StatsService) GroupBy(ctx context.Context, field string) (*dto.GroupResponse, error) {
	group := stats.GroupField(field)
	if !stats.KnownGroupField(group) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown grouping field")
	}

	key := "stats:group:" + field
	if s.cache != nil {
		var cached dto.GroupResponse
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	records, err := s.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	buckets := stats.CountBy(records, group)
	resp := &dto.GroupResponse{Field: field, Buckets: buckets, Total: len(records)}
	s.store(ctx, key, resp)
	return resp, nil
}

// Timeline returns submissions per month of year across all years.
func (s *StatsService) Timeline(ctx context.Context) (*dto.TimelineResponse, error) {
	const key = "stats:timeline"
	if s.cache != nil {
		var cached dto.TimelineResponse
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	records, err := s.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	resp := &dto.TimelineResponse{Months: stats.MonthlyTimeline(records)}
	s.store(ctx, key, resp)
	return resp, nil
}

// Contributors returns the student leaderboard by record count.
func (s *StatsService) Contributors(ctx context.Context) (*dto.ContributorsResponse, error) {
	const key = "stats:contributors"
	if s.cache != nil {
		var cached dto.ContributorsResponse
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	records, err := s.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	resp := &dto.ContributorsResponse{Contributors: stats.TopContributors(records, s.topContributors)}
	s.store(ctx, key, resp)
	return resp, nil
}

func (s *StatsService) store(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		s.logger.Warn("stats cache write failed", zap.String("key", key), zap.Error(err))
	}
}
