package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewbill/keysvc/internal/domain/models"
	"github.com/crewbill/keysvc/internal/domain/repository"
	"github.com/crewbill/keysvc/internal/infrastructure/cache"
	"github.com/crewbill/keysvc/pkg/constants"
	"github.com/crewbill/keysvc/pkg/errors"
	"github.com/crewbill/keysvc/pkg/logger"
)

type recordingAudit struct {
	mu     sync.Mutex
	events []models.RotationEvent
}

func (a *recordingAudit) LogRotation(ctx context.Context, event models.RotationEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *recordingAudit) Close() error { return nil }

func (a *recordingAudit) byType(eventType constants.AuditEventType) []models.RotationEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.RotationEvent
	for _, e := range a.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newTestRotationService(t *testing.T) (*RotationService, repository.KeyRepository, *recordingAudit) {
	t.Helper()
	repo := newTestRepo(t)
	audit := &recordingAudit{}
	svc := NewRotationService(repo, nil, audit, nil, 0, 0, constants.AlgorithmHS256,
		logger.NewNoopLogger(), nil)
	svc.sleep = func(time.Duration) {}
	return svc, repo, audit
}

func TestRotateKeysDemotesPreviousActive(t *testing.T) {
	svc, repo, audit := newTestRotationService(t)
	ctx := context.Background()

	prev := seedKey(constants.KeyStatusActive, 48*time.Hour)
	require.NoError(t, repo.Create(ctx, prev))

	result, err := svc.RotateKeys(ctx, models.RotationOptions{RotationType: constants.RotationTypeAutomatic})
	require.NoError(t, err)
	require.NotNil(t, result.NewKey)
	require.NotNil(t, result.PreviousKey)
	assert.Equal(t, prev.KeyID, result.PreviousKey.KeyID)
	assert.Empty(t, result.NewKey.Secret)

	demoted, err := repo.FindByID(ctx, prev.KeyID)
	require.NoError(t, err)
	assert.Equal(t, constants.KeyStatusValid, demoted.Status)
	assert.NotNil(t, demoted.DeactivatedAt)

	active, err := repo.FindActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.NewKey.KeyID, active.KeyID)
	assert.Equal(t, constants.RotationTypeAutomatic, active.RotationType)

	require.Len(t, audit.byType(constants.AuditEventKeyRotated), 1)
}

func TestRotateKeysReportsSweptPreviousAsRevoked(t *testing.T) {
	svc, repo, _ := newTestRotationService(t)
	ctx := context.Background()

	// An expired key still marked active: the rotation demotes it and the
	// same-transaction sweep revokes it. The reported previous key must
	// reflect the committed state, not the pre-sweep snapshot.
	prev := seedKey(constants.KeyStatusActive, -time.Hour)
	require.NoError(t, repo.Create(ctx, prev))

	result, err := svc.RotateKeys(ctx, models.RotationOptions{RotationType: constants.RotationTypeManual})
	require.NoError(t, err)
	require.NotNil(t, result.PreviousKey)
	assert.Equal(t, prev.KeyID, result.PreviousKey.KeyID)
	assert.Equal(t, constants.KeyStatusRevoked, result.PreviousKey.Status)

	stored, err := repo.FindByID(ctx, prev.KeyID)
	require.NoError(t, err)
	assert.Equal(t, constants.KeyStatusRevoked, stored.Status)
	assert.Equal(t, stored.Status, result.PreviousKey.Status)
}

func TestRotateKeysSweepsExpiredRecords(t *testing.T) {
	svc, repo, _ := newTestRotationService(t)
	ctx := context.Background()

	expired := seedKey(constants.KeyStatusValid, -time.Hour)
	require.NoError(t, repo.Create(ctx, expired))

	result, err := svc.RotateKeys(ctx, models.RotationOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.RevokedCount)

	swept, err := repo.FindByID(ctx, expired.KeyID)
	require.NoError(t, err)
	assert.Equal(t, constants.KeyStatusRevoked, swept.Status)
}

func TestRotateKeysLifetimeOverride(t *testing.T) {
	svc, _, _ := newTestRotationService(t)

	result, err := svc.RotateKeys(context.Background(), models.RotationOptions{KeyLifetimeDays: 30})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), result.NewKey.ExpiresAt, 5*time.Second)
}

func TestRotateKeysRejectsConcurrentRotation(t *testing.T) {
	svc, _, _ := newTestRotationService(t)

	svc.inFlight.Store(true)
	_, err := svc.RotateKeys(context.Background(), models.RotationOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))

	svc.inFlight.Store(false)
	_, err = svc.RotateKeys(context.Background(), models.RotationOptions{})
	assert.NoError(t, err)
}

type flakyRepo struct {
	repository.KeyRepository
	failures int
	attempts int
}

func (f *flakyRepo) Transaction(ctx context.Context, fn func(tx repository.KeyRepository) error) error {
	f.attempts++
	if f.attempts <= f.failures {
		return errors.ErrTransientStore(assert.AnError)
	}
	return f.KeyRepository.Transaction(ctx, fn)
}

func TestRotateKeysRetriesTransientConflicts(t *testing.T) {
	repo := &flakyRepo{KeyRepository: newTestRepo(t), failures: 2}
	svc := NewRotationService(repo, nil, nil, nil, 0, 0, constants.AlgorithmHS256,
		logger.NewNoopLogger(), nil)
	svc.sleep = func(time.Duration) {}

	result, err := svc.RotateKeys(context.Background(), models.RotationOptions{})
	require.NoError(t, err)
	assert.NotNil(t, result.NewKey)
	assert.Equal(t, 3, repo.attempts)
}

func TestRotateKeysSurfacesExhaustedRetries(t *testing.T) {
	repo := &flakyRepo{KeyRepository: newTestRepo(t), failures: 10}
	svc := NewRotationService(repo, nil, nil, nil, 0, 0, constants.AlgorithmHS256,
		logger.NewNoopLogger(), nil)
	svc.sleep = func(time.Duration) {}

	_, err := svc.RotateKeys(context.Background(), models.RotationOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, constants.RotationMaxRetries, repo.attempts)
}

func TestEmergencyRotationRevokesEverything(t *testing.T) {
	svc, repo, audit := newTestRotationService(t)
	ctx := context.Background()

	active := seedKey(constants.KeyStatusActive, 48*time.Hour)
	valid := seedKey(constants.KeyStatusValid, 48*time.Hour)
	require.NoError(t, repo.Create(ctx, active))
	require.NoError(t, repo.Create(ctx, valid))

	result, err := svc.EmergencyRotation(ctx, "secret material leaked", models.RotationOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.RevokedCount)
	require.NotNil(t, result.PreviousKey)
	assert.Equal(t, active.KeyID, result.PreviousKey.KeyID)
	assert.Equal(t, constants.RotationTypeEmergency, result.NewKey.RotationType)

	for _, id := range []string{active.KeyID, valid.KeyID} {
		key, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, constants.KeyStatusRevoked, key.Status)
		require.NotNil(t, key.RevocationReason)
		assert.Contains(t, *key.RevocationReason, "secret material leaked")
	}

	newActive, err := repo.FindActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.NewKey.KeyID, newActive.KeyID)

	require.Len(t, audit.byType(constants.AuditEventEmergencyRotation), 1)
}

func TestEmergencyRotationRequiresReason(t *testing.T) {
	svc, _, _ := newTestRotationService(t)

	_, err := svc.EmergencyRotation(context.Background(), "", models.RotationOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestRevokeKeyRejectsActiveKey(t *testing.T) {
	svc, repo, _ := newTestRotationService(t)
	ctx := context.Background()

	active := seedKey(constants.KeyStatusActive, 48*time.Hour)
	require.NoError(t, repo.Create(ctx, active))

	_, err := svc.RevokeKey(ctx, active.KeyID, "cleanup")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	// Untouched.
	key, err := repo.FindByID(ctx, active.KeyID)
	require.NoError(t, err)
	assert.Equal(t, constants.KeyStatusActive, key.Status)
}

func TestRevokeKeyRevokesValidKey(t *testing.T) {
	svc, repo, audit := newTestRotationService(t)
	ctx := context.Background()

	valid := seedKey(constants.KeyStatusValid, 48*time.Hour)
	require.NoError(t, repo.Create(ctx, valid))

	revoked, err := svc.RevokeKey(ctx, valid.KeyID, "superseded")
	require.NoError(t, err)
	assert.Equal(t, constants.KeyStatusRevoked, revoked.Status)
	assert.Empty(t, revoked.Secret)

	// Revocation is absorbing: a second revoke is a no-op success.
	again, err := svc.RevokeKey(ctx, valid.KeyID, "duplicate")
	require.NoError(t, err)
	require.NotNil(t, again.RevocationReason)
	assert.Equal(t, "superseded", *again.RevocationReason)

	require.Len(t, audit.byType(constants.AuditEventKeyRevoked), 1)
}

func TestActivateKeyPromotesAndDemotes(t *testing.T) {
	svc, repo, _ := newTestRotationService(t)
	ctx := context.Background()

	current := seedKey(constants.KeyStatusActive, 48*time.Hour)
	candidate := seedKey(constants.KeyStatusValid, 48*time.Hour)
	require.NoError(t, repo.Create(ctx, current))
	require.NoError(t, repo.Create(ctx, candidate))

	promoted, err := svc.ActivateKey(ctx, candidate.KeyID)
	require.NoError(t, err)
	assert.Equal(t, constants.KeyStatusActive, promoted.Status)

	demoted, err := repo.FindByID(ctx, current.KeyID)
	require.NoError(t, err)
	assert.Equal(t, constants.KeyStatusValid, demoted.Status)
	assert.NotNil(t, demoted.DeactivatedAt)
}

func TestActivateKeyRejectsRevokedAndExpired(t *testing.T) {
	svc, repo, _ := newTestRotationService(t)
	ctx := context.Background()

	revoked := seedKey(constants.KeyStatusRevoked, 48*time.Hour)
	expired := seedKey(constants.KeyStatusValid, -time.Hour)
	require.NoError(t, repo.Create(ctx, revoked))
	require.NoError(t, repo.Create(ctx, expired))

	_, err := svc.ActivateKey(ctx, revoked.KeyID)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	_, err = svc.ActivateKey(ctx, expired.KeyID)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestCleanupRevokedHonorsRetentionWindow(t *testing.T) {
	svc, repo, _ := newTestRotationService(t)
	ctx := context.Background()
	now := time.Now()

	old := seedKey(constants.KeyStatusRevoked, time.Hour)
	oldRevokedAt := now.Add(-200 * 24 * time.Hour)
	old.RevokedAt = &oldRevokedAt
	recent := seedKey(constants.KeyStatusRevoked, time.Hour)
	recentRevokedAt := now.Add(-time.Hour)
	recent.RevokedAt = &recentRevokedAt
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, recent))

	deleted, err := svc.CleanupRevoked(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.FindByID(ctx, old.KeyID)
	assert.True(t, errors.IsNotFound(err))
	_, err = repo.FindByID(ctx, recent.KeyID)
	assert.NoError(t, err)
}

func TestRotationRefreshesCache(t *testing.T) {
	repo := newTestRepo(t)
	keyCache := cache.NewKeyCache(repo, nil, time.Hour, logger.NewNoopLogger(), nil)
	svc := NewRotationService(repo, keyCache, nil, nil, 0, 0, constants.AlgorithmHS256,
		logger.NewNoopLogger(), nil)
	svc.sleep = func(time.Duration) {}
	ctx := context.Background()

	first := seedKey(constants.KeyStatusActive, 48*time.Hour)
	require.NoError(t, repo.Create(ctx, first))
	cached, err := keyCache.ActiveKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.KeyID, cached.KeyID)

	result, err := svc.RotateKeys(ctx, models.RotationOptions{})
	require.NoError(t, err)

	// The TTL has not elapsed; only the forced post-rotation refresh can
	// explain the cache already serving the new key.
	cached, err = keyCache.ActiveKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.NewKey.KeyID, cached.KeyID)
}

func TestListKeysRedactsSecrets(t *testing.T) {
	svc, repo, _ := newTestRotationService(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, seedKey(constants.KeyStatusActive, 48*time.Hour)))

	keys, err := svc.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Empty(t, keys[0].Secret)
}
