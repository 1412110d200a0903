package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/crewbill/keysvc/internal/domain/models"
	"github.com/crewbill/keysvc/internal/domain/repository"
	"github.com/crewbill/keysvc/internal/infrastructure/monitoring"
	"github.com/crewbill/keysvc/pkg/constants"
	"github.com/crewbill/keysvc/pkg/errors"
	"github.com/crewbill/keysvc/pkg/logger"
)

// SelfHealer restores the active-key invariant when a refresh finds none.
// Implemented by the application-layer initializer.
type SelfHealer interface {
	EnsureActiveKey(ctx context.Context) (*models.SigningKey, error)
}

// snapshot is an immutable view of the key set at one refresh. Readers get
// the whole struct under a single lock acquisition, so the active key and
// the verification list are always from the same load.
type snapshot struct {
	active      *models.SigningKey
	valid       []*models.SigningKey
	refreshedAt time.Time
}

// KeyCache caches the active signing key and the verification key set in
// process memory. Refreshes go through singleflight so concurrent cache
// misses produce one store query. Refresh failures are surfaced to callers
// rather than papered over with stale data.
type KeyCache struct {
	repo    repository.KeyRepository
	healer  SelfHealer
	logger  logger.Logger
	metrics *monitoring.Metrics
	ttl     time.Duration

	mu   sync.RWMutex
	snap *snapshot

	sf  singleflight.Group
	now func() time.Time
}

func NewKeyCache(repo repository.KeyRepository, healer SelfHealer, ttl time.Duration, log logger.Logger, metrics *monitoring.Metrics) *KeyCache {
	if ttl <= 0 {
		ttl = constants.DefaultCacheTTL
	}
	return &KeyCache{
		repo:    repo,
		healer:  healer,
		logger:  log.WithComponent("key_cache"),
		metrics: metrics,
		ttl:     ttl,
		now:     time.Now,
	}
}

// ActiveKey returns the cached active key, refreshing first when the
// snapshot is stale or empty. A missing active key triggers one self-heal
// attempt before failing.
func (c *KeyCache) ActiveKey(ctx context.Context) (*models.SigningKey, error) {
	snap, err := c.current(ctx)
	if err != nil {
		return nil, err
	}
	if snap.active == nil {
		snap, err = c.refresh(ctx, "miss", true)
		if err != nil {
			return nil, err
		}
		if snap.active == nil {
			return nil, errors.ErrNoActiveKey()
		}
	}
	return snap.active, nil
}

// VerificationKeys returns every key eligible for signature verification,
// most recently activated first. The active key, when present, is always
// the first element.
func (c *KeyCache) VerificationKeys(ctx context.Context) ([]*models.SigningKey, error) {
	snap, err := c.current(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]*models.SigningKey, 0, len(snap.valid)+1)
	if snap.active != nil {
		keys = append(keys, snap.active)
	}
	keys = append(keys, snap.valid...)
	return keys, nil
}

// Refresh forces a reload from the store regardless of snapshot age.
// Called after rotations so new tokens sign with the new key immediately.
func (c *KeyCache) Refresh(ctx context.Context) error {
	_, err := c.refresh(ctx, "forced", false)
	return err
}

// Invalidate drops the snapshot so the next read reloads from the store.
// Used by the cross-instance invalidation subscriber.
func (c *KeyCache) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
}

// RefreshedAt reports the age of the current snapshot. Zero time means no
// snapshot has been loaded yet.
func (c *KeyCache) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return time.Time{}
	}
	return c.snap.refreshedAt
}

func (c *KeyCache) current(ctx context.Context) (*snapshot, error) {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()
	if snap != nil && !c.isStale(snap) {
		return snap, nil
	}
	return c.refresh(ctx, "ttl", false)
}

func (c *KeyCache) isStale(snap *snapshot) bool {
	return c.now().Sub(snap.refreshedAt) >= c.ttl
}

func (c *KeyCache) refresh(ctx context.Context, trigger string, allowSelfHeal bool) (*snapshot, error) {
	key := "refresh"
	if allowSelfHeal {
		key = "refresh-heal"
	}
	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		return c.load(ctx, allowSelfHeal)
	})
	if err != nil {
		c.metrics.RecordCacheRefresh(trigger, "error")
		return nil, err
	}
	c.metrics.RecordCacheRefresh(trigger, "success")
	return v.(*snapshot), nil
}

func (c *KeyCache) load(ctx context.Context, allowSelfHeal bool) (*snapshot, error) {
	now := c.now()

	active, err := c.repo.FindActive(ctx)
	if err != nil && !errors.IsNotFound(err) {
		return nil, err
	}
	if active != nil && active.IsExpired(now) {
		// Expired actives are the initializer's problem. The cache never
		// signs with one.
		active = nil
	}
	if active == nil && allowSelfHeal && c.healer != nil {
		c.logger.Warn(ctx, "no usable active key in store, attempting self-heal")
		active, err = c.healer.EnsureActiveKey(ctx)
		if err != nil {
			return nil, err
		}
	}

	verification, err := c.repo.ListVerification(ctx, now)
	if err != nil {
		return nil, err
	}
	valid := make([]*models.SigningKey, 0, len(verification))
	for _, k := range verification {
		if active != nil && k.KeyID == active.KeyID {
			continue
		}
		valid = append(valid, k)
	}

	snap := &snapshot{active: active, valid: valid, refreshedAt: now}
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	c.logger.Debug(ctx, "key cache refreshed",
		logger.Bool("has_active", active != nil),
		logger.Int("valid_keys", len(valid)))
	return snap, nil
}
