package application

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/crewbill/keysvc/internal/domain/models"
	"github.com/crewbill/keysvc/internal/domain/repository"
	"github.com/crewbill/keysvc/internal/domain/service"
	"github.com/crewbill/keysvc/internal/infrastructure/cache"
	"github.com/crewbill/keysvc/internal/infrastructure/crypto"
	"github.com/crewbill/keysvc/internal/infrastructure/monitoring"
	"github.com/crewbill/keysvc/pkg/constants"
	"github.com/crewbill/keysvc/pkg/errors"
	"github.com/crewbill/keysvc/pkg/logger"
)

// RotationService coordinates every mutation of the key set: scheduled and
// manual rotations, emergency rotation, admin revoke/activate and retention
// cleanup. Exactly one rotation runs at a time per process; cross-process
// races are handled by the store transaction plus retries, not by a global
// lock.
type RotationService struct {
	repo        repository.KeyRepository
	cache       *cache.KeyCache
	audit       service.AuditService
	invalidator service.CacheInvalidator
	logger      logger.Logger
	metrics     *monitoring.Metrics

	defaultLifetime time.Duration
	retention       time.Duration
	algorithm       constants.SigningAlgorithm

	inFlight atomic.Bool

	now   func() time.Time
	sleep func(time.Duration)
}

func NewRotationService(
	repo repository.KeyRepository,
	keyCache *cache.KeyCache,
	audit service.AuditService,
	invalidator service.CacheInvalidator,
	defaultLifetime, retention time.Duration,
	algorithm constants.SigningAlgorithm,
	log logger.Logger,
	metrics *monitoring.Metrics,
) *RotationService {
	if defaultLifetime <= 0 {
		defaultLifetime = constants.DefaultKeyLifetime
	}
	if retention <= 0 {
		retention = constants.DefaultRetentionWindow
	}
	if algorithm == "" {
		algorithm = constants.DefaultSigningAlgorithm
	}
	return &RotationService{
		repo:            repo,
		cache:           keyCache,
		audit:           audit,
		invalidator:     invalidator,
		logger:          log.WithComponent("rotation_service"),
		metrics:         metrics,
		defaultLifetime: defaultLifetime,
		retention:       retention,
		algorithm:       algorithm,
		now:             time.Now,
		sleep:           time.Sleep,
	}
}

// RotateKeys performs a normal rotation: demote the current active key,
// create and activate a new one, and sweep-revoke anything already expired,
// all inside one store transaction. Transient write conflicts are retried
// with linear backoff before the error surfaces.
func (s *RotationService) RotateKeys(ctx context.Context, opts models.RotationOptions) (*models.RotationResult, error) {
	ctx, span := monitoring.StartSpan(ctx, "rotation.rotate")
	defer span.End()

	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, errors.ErrRotationInProgress()
	}
	defer s.inFlight.Store(false)

	rotationType := opts.RotationType
	if rotationType == "" {
		rotationType = constants.RotationTypeManual
	}

	start := s.now()
	var result *models.RotationResult
	var err error
	for attempt := 1; attempt <= constants.RotationMaxRetries; attempt++ {
		result, err = s.rotateOnce(ctx, rotationType, opts)
		if err == nil || !errors.IsTransient(err) {
			break
		}
		s.logger.Warn(ctx, "rotation hit transient store conflict, retrying",
			logger.Int("attempt", attempt),
			logger.Err(err))
		if attempt < constants.RotationMaxRetries {
			s.sleep(constants.RotationRetryBackoff * time.Duration(attempt))
		}
	}

	// The cache is refreshed even on failure: a conflicting rotation in
	// another process may have changed the active key underneath us.
	s.refreshCache(ctx)

	if err != nil {
		s.metrics.RecordRotation(rotationType, "error", s.now().Sub(start))
		return nil, err
	}
	s.metrics.RecordRotation(rotationType, "success", s.now().Sub(start))

	event := models.RotationEvent{
		EventID:      uuid.NewString(),
		EventType:    constants.AuditEventKeyRotated,
		NewKeyID:     result.NewKey.KeyID,
		RotationType: rotationType,
		Actor:        actorOf(opts),
		OccurredAt:   s.now(),
	}
	if result.PreviousKey != nil {
		event.PreviousKeyID = result.PreviousKey.KeyID
	}
	s.emit(ctx, event)

	s.logger.Info(ctx, "key rotation completed",
		logger.String("new_key_id", result.NewKey.KeyID),
		logger.String("rotation_type", string(rotationType)),
		logger.Int64("revoked", result.RevokedCount))
	return result, nil
}

func (s *RotationService) rotateOnce(ctx context.Context, rotationType constants.RotationType, opts models.RotationOptions) (*models.RotationResult, error) {
	var result *models.RotationResult
	err := s.repo.Transaction(ctx, func(tx repository.KeyRepository) error {
		now := s.now()

		prev, err := tx.FindActive(ctx)
		if err != nil && !isAbsence(err) {
			return err
		}
		if prev != nil {
			prev.Status = constants.KeyStatusValid
			prev.DeactivatedAt = &now
			if err := tx.Save(ctx, prev); err != nil {
				return err
			}
		}

		newKey, err := s.buildKey(rotationType, opts, now)
		if err != nil {
			return err
		}
		if err := tx.Create(ctx, newKey); err != nil {
			return err
		}

		swept, err := tx.RevokeExpired(ctx, now, constants.RevocationReasonRotationSweep)
		if err != nil {
			return err
		}

		// A previous key that was already past its expiry gets demoted above
		// and then caught by the sweep in the same transaction. Re-read it so
		// the reported snapshot matches what was committed.
		if prev != nil && prev.IsExpired(now) {
			prev, err = tx.FindByID(ctx, prev.KeyID)
			if err != nil {
				return err
			}
		}

		result = &models.RotationResult{
			NewKey:       newKey.Redacted(),
			RevokedCount: swept,
		}
		if prev != nil {
			result.PreviousKey = prev.Redacted()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// EmergencyRotation revokes every non-revoked key and activates a fresh one.
// Every outstanding token becomes unverifiable as soon as caches refresh;
// that is the point of the operation.
func (s *RotationService) EmergencyRotation(ctx context.Context, reason string, opts models.RotationOptions) (*models.RotationResult, error) {
	ctx, span := monitoring.StartSpan(ctx, "rotation.emergency")
	defer span.End()

	if reason == "" {
		return nil, errors.ErrMissingReason()
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, errors.ErrRotationInProgress()
	}
	defer s.inFlight.Store(false)

	start := s.now()
	now := s.now()

	prev, err := s.repo.FindActive(ctx)
	if err != nil && !isAbsence(err) {
		return nil, err
	}

	revoked, err := s.repo.RevokeAll(ctx, now, constants.RevocationReasonEmergency+": "+reason)
	if err != nil {
		s.metrics.RecordRotation(constants.RotationTypeEmergency, "error", s.now().Sub(start))
		return nil, err
	}

	opts.RotationType = constants.RotationTypeEmergency
	newKey, err := s.buildKey(constants.RotationTypeEmergency, opts, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, newKey); err != nil {
		s.refreshCache(ctx)
		s.metrics.RecordRotation(constants.RotationTypeEmergency, "error", s.now().Sub(start))
		return nil, err
	}

	s.refreshCache(ctx)
	s.metrics.RecordRotation(constants.RotationTypeEmergency, "success", s.now().Sub(start))

	result := &models.RotationResult{NewKey: newKey.Redacted(), RevokedCount: revoked}
	event := models.RotationEvent{
		EventID:      uuid.NewString(),
		EventType:    constants.AuditEventEmergencyRotation,
		NewKeyID:     newKey.KeyID,
		RotationType: constants.RotationTypeEmergency,
		Reason:       reason,
		Actor:        actorOf(opts),
		OccurredAt:   s.now(),
	}
	if prev != nil {
		result.PreviousKey = prev.Redacted()
		event.PreviousKeyID = prev.KeyID
	}
	s.emit(ctx, event)

	s.logger.Warn(ctx, "emergency rotation completed, all prior keys revoked",
		logger.String("new_key_id", newKey.KeyID),
		logger.String("reason", reason),
		logger.Int64("revoked", revoked))
	return result, nil
}

// RevokeKey revokes one non-active key. Revoking the active key directly is
// rejected; a replacement must exist atomically, which only the rotation
// paths guarantee. Revoking an already revoked key is a no-op.
func (s *RotationService) RevokeKey(ctx context.Context, keyID, reason string) (*models.SigningKey, error) {
	key, err := s.repo.FindByID(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if key.Status == constants.KeyStatusRevoked {
		return key.Redacted(), nil
	}
	if key.Status == constants.KeyStatusActive {
		return nil, errors.ErrRevokeActiveKey(keyID)
	}

	now := s.now()
	key.Status = constants.KeyStatusRevoked
	key.RevokedAt = &now
	if reason == "" {
		reason = "revoked by administrator"
	}
	key.RevocationReason = &reason
	if err := s.repo.Save(ctx, key); err != nil {
		return nil, err
	}

	s.refreshCache(ctx)
	s.emit(ctx, models.RotationEvent{
		EventID:       uuid.NewString(),
		EventType:     constants.AuditEventKeyRevoked,
		PreviousKeyID: keyID,
		Reason:        reason,
		OccurredAt:    now,
	})

	s.logger.Info(ctx, "key revoked",
		logger.String("key_id", keyID),
		logger.String("reason", reason))
	return key.Redacted(), nil
}

// ActivateKey promotes a valid key to active, demoting the current active
// key. Revoked and expired keys are rejected; activating the already active
// key is a no-op.
func (s *RotationService) ActivateKey(ctx context.Context, keyID string) (*models.SigningKey, error) {
	var promoted *models.SigningKey
	err := s.repo.Transaction(ctx, func(tx repository.KeyRepository) error {
		now := s.now()

		key, err := tx.FindByID(ctx, keyID)
		if err != nil {
			return err
		}
		switch {
		case key.Status == constants.KeyStatusRevoked:
			return errors.ErrKeyNotActivatable(keyID, "key is revoked")
		case key.IsExpired(now):
			return errors.ErrKeyNotActivatable(keyID, "key has expired")
		case key.Status == constants.KeyStatusActive:
			promoted = key
			return nil
		}

		prev, err := tx.FindActive(ctx)
		if err != nil && !isAbsence(err) {
			return err
		}
		if prev != nil {
			prev.Status = constants.KeyStatusValid
			prev.DeactivatedAt = &now
			if err := tx.Save(ctx, prev); err != nil {
				return err
			}
		}

		key.Status = constants.KeyStatusActive
		key.ActivatedAt = &now
		if err := tx.Save(ctx, key); err != nil {
			return err
		}
		promoted = key
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.refreshCache(ctx)
	s.emit(ctx, models.RotationEvent{
		EventID:    uuid.NewString(),
		EventType:  constants.AuditEventKeyActivated,
		NewKeyID:   keyID,
		OccurredAt: s.now(),
	})

	s.logger.Info(ctx, "key activated", logger.String("key_id", keyID))
	return promoted.Redacted(), nil
}

// CleanupRevoked deletes revoked records older than the retention window.
// This is the only deletion path in the system.
func (s *RotationService) CleanupRevoked(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	deleted, err := s.repo.DeleteRevokedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.emit(ctx, models.RotationEvent{
			EventID:    uuid.NewString(),
			EventType:  constants.AuditEventRetentionCleanup,
			OccurredAt: s.now(),
		})
		s.logger.Info(ctx, "retention cleanup removed revoked keys",
			logger.Int64("deleted", deleted),
			logger.Time("cutoff", cutoff))
	}
	return deleted, nil
}

// ListKeys returns every key with secret material redacted.
func (s *RotationService) ListKeys(ctx context.Context) ([]*models.SigningKey, error) {
	keys, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	redacted := make([]*models.SigningKey, len(keys))
	for idx, k := range keys {
		redacted[idx] = k.Redacted()
	}
	return redacted, nil
}

// GetKey returns one key by id with secret material redacted.
func (s *RotationService) GetKey(ctx context.Context, keyID string) (*models.SigningKey, error) {
	key, err := s.repo.FindByID(ctx, keyID)
	if err != nil {
		return nil, err
	}
	return key.Redacted(), nil
}

func (s *RotationService) buildKey(rotationType constants.RotationType, opts models.RotationOptions, now time.Time) (*models.SigningKey, error) {
	secret, err := crypto.GenerateSecret()
	if err != nil {
		return nil, err
	}
	lifetime := s.defaultLifetime
	if opts.KeyLifetimeDays > 0 {
		lifetime = time.Duration(opts.KeyLifetimeDays) * 24 * time.Hour
	}
	return &models.SigningKey{
		KeyID:        uuid.NewString(),
		Secret:       secret,
		Status:       constants.KeyStatusActive,
		Algorithm:    s.algorithm,
		CreatedAt:    now,
		ActivatedAt:  &now,
		ExpiresAt:    now.Add(lifetime),
		RotationType: rotationType,
		CreatedBy:    actorOf(opts),
	}, nil
}

func (s *RotationService) refreshCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Refresh(ctx); err != nil {
		s.logger.Error(ctx, "post-rotation cache refresh failed", err)
	}
}

// emit delivers the event to the audit sink and fans the invalidation out to
// other instances. Both are best-effort; failures are logged, never allowed
// to fail the rotation that already committed.
func (s *RotationService) emit(ctx context.Context, event models.RotationEvent) {
	if s.audit != nil {
		if err := s.audit.LogRotation(ctx, event); err != nil {
			s.logger.Error(ctx, "failed to emit rotation audit event", err,
				logger.String("event_type", string(event.EventType)))
		}
	}
	if s.invalidator != nil {
		if err := s.invalidator.PublishInvalidation(ctx, event); err != nil {
			s.logger.Error(ctx, "failed to publish cache invalidation", err,
				logger.String("event_type", string(event.EventType)))
		}
	}
}

func actorOf(opts models.RotationOptions) string {
	if opts.CreatedBy != "" {
		return opts.CreatedBy
	}
	return constants.ActorSystem
}
