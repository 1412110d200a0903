// Package application provides the application layer services that
// orchestrate the signing key lifecycle.
package application

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/crewbill/keysvc/internal/domain/models"
	"github.com/crewbill/keysvc/internal/domain/repository"
	"github.com/crewbill/keysvc/internal/infrastructure/crypto"
	"github.com/crewbill/keysvc/internal/infrastructure/monitoring"
	"github.com/crewbill/keysvc/internal/infrastructure/secrets"
	"github.com/crewbill/keysvc/pkg/constants"
	"github.com/crewbill/keysvc/pkg/errors"
	"github.com/crewbill/keysvc/pkg/logger"
)

// Initializer guarantees that exactly one usable active key exists after it
// runs, regardless of prior crash state. It runs at process start and
// opportunistically on cache misses; every path through it is idempotent.
type Initializer struct {
	repo      repository.KeyRepository
	bootstrap secrets.StaticSecretSource
	lifetime  time.Duration
	algorithm constants.SigningAlgorithm
	logger    logger.Logger
	metrics   *monitoring.Metrics

	now func() time.Time
}

func NewInitializer(
	repo repository.KeyRepository,
	bootstrap secrets.StaticSecretSource,
	lifetime time.Duration,
	algorithm constants.SigningAlgorithm,
	log logger.Logger,
	metrics *monitoring.Metrics,
) *Initializer {
	if lifetime <= 0 {
		lifetime = constants.DefaultKeyLifetime
	}
	if algorithm == "" {
		algorithm = constants.DefaultSigningAlgorithm
	}
	return &Initializer{
		repo:      repo,
		bootstrap: bootstrap,
		lifetime:  lifetime,
		algorithm: algorithm,
		logger:    log.WithComponent("initializer"),
		metrics:   metrics,
		now:       time.Now,
	}
}

// EnsureActiveKey sweeps expired active keys, then reuses, promotes or
// creates a key so that exactly one unexpired active key remains. The whole
// repair runs in one store transaction.
func (i *Initializer) EnsureActiveKey(ctx context.Context) (*models.SigningKey, error) {
	var result *models.SigningKey
	err := i.repo.Transaction(ctx, func(tx repository.KeyRepository) error {
		key, err := i.ensure(ctx, tx)
		if err != nil {
			return err
		}
		result = key
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (i *Initializer) ensure(ctx context.Context, tx repository.KeyRepository) (*models.SigningKey, error) {
	now := i.now()

	swept, err := tx.RevokeExpiredActive(ctx, now, constants.RevocationReasonExpired)
	if err != nil {
		return nil, err
	}
	if swept > 0 {
		i.logger.Warn(ctx, "revoked expired active keys during self-heal",
			logger.Int64("count", swept))
		i.metrics.RecordSelfHeal("sweep")
	}

	active, err := tx.FindActive(ctx)
	if err == nil && !active.IsExpired(now) {
		return active, nil
	}
	if err != nil && !isAbsence(err) {
		return nil, err
	}

	candidate, err := tx.FindNewestValid(ctx, now)
	if err == nil {
		candidate.Status = constants.KeyStatusActive
		candidate.ActivatedAt = &now
		if err := tx.Save(ctx, candidate); err != nil {
			return nil, err
		}
		i.logger.Info(ctx, "promoted newest valid key to active",
			logger.String("key_id", candidate.KeyID))
		i.metrics.RecordSelfHeal("promote")
		return candidate, nil
	}
	if !isAbsence(err) {
		return nil, err
	}

	key, err := i.createInitialKey(ctx, tx, now)
	if err != nil {
		return nil, err
	}
	i.logger.Info(ctx, "created initial active key",
		logger.String("key_id", key.KeyID),
		logger.Time("expires_at", key.ExpiresAt))
	i.metrics.RecordSelfHeal("create")
	return key, nil
}

func (i *Initializer) createInitialKey(ctx context.Context, tx repository.KeyRepository, now time.Time) (*models.SigningKey, error) {
	secret, fromEnv, err := i.resolveSecret(ctx, tx)
	if err != nil {
		return nil, err
	}
	if fromEnv {
		i.logger.Info(ctx, "seeding first key from deployment-provided secret")
	}

	key := &models.SigningKey{
		KeyID:        uuid.NewString(),
		Secret:       secret,
		Status:       constants.KeyStatusActive,
		Algorithm:    i.algorithm,
		CreatedAt:    now,
		ActivatedAt:  &now,
		ExpiresAt:    now.Add(i.lifetime),
		RotationType: constants.RotationTypeInitial,
		CreatedBy:    constants.ActorSystem,
	}
	if err := tx.Create(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

// resolveSecret prefers the deployment-provided secret on the very first run
// only; once any record exists the deterministic seed has done its job and
// fresh keys always get random material.
func (i *Initializer) resolveSecret(ctx context.Context, tx repository.KeyRepository) (string, bool, error) {
	count, err := tx.Count(ctx)
	if err != nil {
		return "", false, err
	}
	if count > 0 || i.bootstrap == nil {
		secret, err := crypto.GenerateSecret()
		return secret, false, err
	}

	provided, err := i.bootstrap.StaticSecret(ctx)
	if err != nil {
		i.logger.Warn(ctx, "bootstrap secret source unavailable, generating random secret",
			logger.Err(err))
		provided = ""
	}
	return crypto.ResolveBootstrapSecret(provided)
}

// isAbsence distinguishes "no such key" results from real store failures.
func isAbsence(err error) bool {
	return errors.IsNotFound(err) || errors.IsNoActiveKey(err)
}
