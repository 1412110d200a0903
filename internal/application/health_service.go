package application

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/crewbill/keysvc/internal/domain/models"
	"github.com/crewbill/keysvc/internal/domain/repository"
	"github.com/crewbill/keysvc/internal/infrastructure/cache"
	"github.com/crewbill/keysvc/internal/infrastructure/monitoring"
	"github.com/crewbill/keysvc/pkg/constants"
	"github.com/crewbill/keysvc/pkg/logger"
)

const healthReportKey = "health-report"

// HealthService reports on the rotation subsystem: key counts, the active-key
// invariant, upcoming expiries and cache freshness. Reports are memoized for
// a short window so health probes do not hammer the store.
type HealthService struct {
	repo     repository.KeyRepository
	keyCache *cache.KeyCache
	cacheTTL time.Duration
	logger   logger.Logger
	metrics  *monitoring.Metrics

	memo *gocache.Cache
	now  func() time.Time
}

func NewHealthService(
	repo repository.KeyRepository,
	keyCache *cache.KeyCache,
	cacheTTL time.Duration,
	log logger.Logger,
	metrics *monitoring.Metrics,
) *HealthService {
	if cacheTTL <= 0 {
		cacheTTL = constants.DefaultCacheTTL
	}
	return &HealthService{
		repo:     repo,
		keyCache: keyCache,
		cacheTTL: cacheTTL,
		logger:   log.WithComponent("health_service"),
		metrics:  metrics,
		memo:     gocache.New(30*time.Second, time.Minute),
		now:      time.Now,
	}
}

// Check builds the health report, serving a memoized copy when one is fresh.
func (s *HealthService) Check(ctx context.Context) (*models.HealthReport, error) {
	if cached, ok := s.memo.Get(healthReportKey); ok {
		return cached.(*models.HealthReport), nil
	}

	report, err := s.build(ctx)
	if err != nil {
		return nil, err
	}
	s.memo.SetDefault(healthReportKey, report)
	return report, nil
}

func (s *HealthService) build(ctx context.Context) (*models.HealthReport, error) {
	now := s.now()
	keys, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var active *models.SigningKey
	counts := map[constants.KeyStatus]int{}
	eligible := 0
	for _, key := range keys {
		counts[key.Status]++
		if key.Status == constants.KeyStatusActive {
			active = key
		}
		if key.VerificationEligible(now) {
			eligible++
		}
	}
	for _, status := range []constants.KeyStatus{
		constants.KeyStatusActive,
		constants.KeyStatusValid,
		constants.KeyStatusRevoked,
	} {
		s.metrics.SetKeyCount(status, counts[status])
	}

	report := &models.HealthReport{
		Issues:    []string{},
		Warnings:  []string{},
		CheckedAt: now,
	}

	switch {
	case active == nil:
		report.Issues = append(report.Issues, models.IssueNoActiveKey)
	case active.IsExpired(now):
		report.Issues = append(report.Issues, models.IssueActiveKeyExpired)
	case active.ExpiresAt.Sub(now) <= constants.ExpiryWarningWindow:
		report.Warnings = append(report.Warnings, models.WarningActiveKeyExpiringSoon)
	}
	if eligible == 0 {
		report.Issues = append(report.Issues, models.IssueNoValidKeys)
	}

	if s.keyCache != nil {
		refreshedAt := s.keyCache.RefreshedAt()
		if !refreshedAt.IsZero() && now.Sub(refreshedAt) > 2*s.cacheTTL {
			report.Warnings = append(report.Warnings, models.WarningCacheStale)
		}
	}

	report.Healthy = len(report.Issues) == 0
	if !report.Healthy {
		s.logger.Warn(ctx, "key subsystem unhealthy",
			logger.Any("issues", report.Issues))
	}
	return report, nil
}
