package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/helmintheca/archive-api/internal/catalog"
	"github.com/helmintheca/archive-api/internal/models"
	appErrors "github.com/helmintheca/archive-api/pkg/errors"
)

type snapshotRepository interface {
	ListAll(ctx context.Context) ([]models.Record, error)
}

// CatalogService serves the public archive: filtered record pages and
// facet vocabularies computed over an in-memory snapshot of the full
// dataset. Results are cached per query under a dataset generation that
// is bumped on every write, so stale pages age out without scanning keys.
type CatalogService struct {
	repo       snapshotRepository
	cache      *CacheService
	metrics    *MetricsService
	logger     *zap.Logger
	ttl        time.Duration
	generation atomic.Uint64
}

// NewCatalogService constructs the catalog service.
func NewCatalogService(repo snapshotRepository, cache *CacheService, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CatalogService{repo: repo, cache: cache, metrics: metrics, logger: logger, ttl: ttl}
}

// Invalidate advances the dataset generation. Previously cached pages
// become unreachable and expire on their own TTL.
func (s *CatalogService) Invalidate(ctx context.Context) {
	s.generation.Add(1)
	if s.cache != nil {
		for _, pattern := range []string{"catalog:*", "stats:*"} {
			if err := s.cache.Invalidate(ctx, pattern); err != nil {
				s.logger.Warn("cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
			}
		}
	}
}

// Browse runs a catalog query against the current snapshot. The second
// return value reports whether the page came from cache.
func (s *CatalogService) Browse(ctx context.Context, query catalog.Query) (*catalog.Result, bool, error) {
	key := s.cacheKey("page", queryFingerprint(query))
	if s.cache != nil {
		var cached catalog.Result
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, true, nil
		}
	}

	records, err := s.snapshot(ctx)
	if err != nil {
		return nil, false, err
	}
	result := catalog.Filter(records, query)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result, s.ttl); err != nil {
			s.logger.Warn("catalog cache write failed", zap.Error(err))
		}
	}
	return &result, false, nil
}

// Facets returns the distinct facet values present in the published
// dataset, used to render filter controls.
func (s *CatalogService) Facets(ctx context.Context) (*catalog.Vocabulary, error) {
	key := s.cacheKey("facets", "all")
	if s.cache != nil {
		var cached catalog.Vocabulary
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	records, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	vocab := catalog.Facets(records)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, vocab, s.ttl); err != nil {
			s.logger.Warn("catalog cache write failed", zap.Error(err))
		}
	}
	return &vocab, nil
}

// Snapshot exposes the full dataset for consumers that aggregate over
// every status, such as statistics and exports.
func (s *CatalogService) Snapshot(ctx context.Context) ([]models.Record, error) {
	return s.snapshot(ctx)
}

func (s *CatalogService) snapshot(ctx context.Context) ([]models.Record, error) {
	start := time.Now()
	records, err := s.repo.ListAll(ctx)
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("catalog_snapshot", time.Since(start))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load catalog snapshot")
	}
	return records, nil
}

func (s *CatalogService) cacheKey(kind, fingerprint string) string {
	return fmt.Sprintf("catalog:g%d:%s:%s", s.generation.Load(), kind, fingerprint)
}

// queryFingerprint folds a catalog query into a short stable key.
// Facet slices are sorted so equivalent selections share a cache entry.
func queryFingerprint(query catalog.Query) string {
	parts := []string{
		"s=" + strings.ToLower(strings.TrimSpace(query.Search)),
		"t=" + joinSorted(query.Facets.Types),
		"st=" + joinSorted(query.Facets.Stages),
		"sa=" + joinSorted(query.Facets.SampleTypes),
		"sc=" + joinSorted(query.Facets.StainColors),
		"y=" + joinSorted(query.Facets.Years),
		"p=" + strconv.Itoa(query.Page),
		"ps=" + strconv.Itoa(query.PageSize),
		"sb=" + query.SortBy,
		"so=" + query.SortOrder,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:8])
}

func joinSorted(values []string) string {
	if len(values) == 0 {
		return ""
	}
	copied := make([]string, len(values))
	for i, v := range values {
		copied[i] = strings.ToLower(strings.TrimSpace(v))
	}
	sort.Strings(copied)
	return strings.Join(copied, ",")
}
