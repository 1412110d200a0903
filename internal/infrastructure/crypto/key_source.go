package crypto

import (
	"context"
	"time"

	"github.com/crewbill/keysvc/internal/domain/models"
	"github.com/crewbill/keysvc/internal/domain/service"
	"github.com/crewbill/keysvc/pkg/constants"
)

// StaticKeyID is the key id embedded in tokens signed by the static fallback
// source, so fallback-signed tokens are identifiable on the wire.
const StaticKeyID = "static-fallback"

// KeyProvider is the slice of the key cache the rotation-backed source needs.
type KeyProvider interface {
	ActiveKey(ctx context.Context) (*models.SigningKey, error)
	VerificationKeys(ctx context.Context) ([]*models.SigningKey, error)
}

// rotationBackedSource serves keys from the cache-backed rotation subsystem.
type rotationBackedSource struct {
	provider KeyProvider
}

// NewRotationBackedSource wraps the key cache as the normal-mode KeySource.
func NewRotationBackedSource(provider KeyProvider) service.KeySource {
	return &rotationBackedSource{provider: provider}
}

func (s *rotationBackedSource) SigningKey(ctx context.Context) (*models.SigningKey, error) {
	return s.provider.ActiveKey(ctx)
}

func (s *rotationBackedSource) VerificationKeys(ctx context.Context) ([]*models.SigningKey, error) {
	return s.provider.VerificationKeys(ctx)
}

func (s *rotationBackedSource) Mode() service.KeySourceMode {
	return service.KeySourceRotation
}

// staticSource serves a single statically configured secret. It exists so the
// degraded mode is an explicit source variant rather than an error-recovery
// branch inside the token service.
type staticSource struct {
	key *models.SigningKey
}

// NewStaticSource builds the fallback KeySource from the deployment-provided
// secret. The secret must pass the same strength checks as stored material.
func NewStaticSource(secret string, algorithm constants.SigningAlgorithm) (service.KeySource, error) {
	if err := ValidateSecret(secret); err != nil {
		return nil, err
	}
	if algorithm == "" {
		algorithm = constants.DefaultSigningAlgorithm
	}
	now := time.Now()
	return &staticSource{
		key: &models.SigningKey{
			KeyID:     StaticKeyID,
			Secret:    secret,
			Status:    constants.KeyStatusActive,
			Algorithm: algorithm,
			CreatedAt: now,
			// Never expires on its own; the tolerance window bounds its use.
			ExpiresAt: now.AddDate(100, 0, 0),
			CreatedBy: constants.ActorSystem,
		},
	}, nil
}

func (s *staticSource) SigningKey(ctx context.Context) (*models.SigningKey, error) {
	return s.key, nil
}

func (s *staticSource) VerificationKeys(ctx context.Context) ([]*models.SigningKey, error) {
	return []*models.SigningKey{s.key}, nil
}

func (s *staticSource) Mode() service.KeySourceMode {
	return service.KeySourceStatic
}

var _ service.KeySource = (*rotationBackedSource)(nil)
var _ service.KeySource = (*staticSource)(nil)
