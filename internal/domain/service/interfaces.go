// Package service defines the domain service interfaces of the key service.
package service

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/crewbill/keysvc/internal/domain/models"
)

// KeySourceMode identifies which key source variant produced a key.
type KeySourceMode string

const (
	// KeySourceRotation is the normal, store-backed mode.
	KeySourceRotation KeySourceMode = "rotation"

	// KeySourceStatic is the degraded fallback mode backed by a single
	// statically configured secret.
	KeySourceStatic KeySourceMode = "static"
)

// KeySource supplies signing and verification keys to the token service.
// Modelling the fallback as a second KeySource variant (rather than a recover
// path around the rotation-backed one) makes the degraded mode an explicit,
// testable configuration.
type KeySource interface {
	// SigningKey returns the key to sign new tokens with.
	SigningKey(ctx context.Context) (*models.SigningKey, error)

	// VerificationKeys returns every key a token may verify against, most
	// recently activated first.
	VerificationKeys(ctx context.Context) ([]*models.SigningKey, error)

	// Mode identifies the variant.
	Mode() KeySourceMode
}

// TokenService is the signing/verification facade consumed by the rest of
// the platform. It reads keys from the cache-backed source and never touches
// the store on the hot path.
type TokenService interface {
	// Generate signs the claims with the current active key and embeds the
	// key id in the token header.
	Generate(ctx context.Context, claims jwt.MapClaims, opts models.TokenOptions) (string, error)

	// Verify checks the token against the embedded key id first, then
	// against every valid key in most-recently-activated order.
	Verify(ctx context.Context, tokenString string) (*models.VerifiedToken, error)

	// IsExpired inspects only the token's own exp claim; key validity is
	// not consulted.
	IsExpired(tokenString string) (bool, error)

	// Expiration returns the token's exp claim.
	Expiration(tokenString string) (time.Time, error)
}

// AuditService delivers structured rotation events to monitoring. Delivery is
// best-effort: a failed emit is logged, never allowed to fail the rotation.
type AuditService interface {
	LogRotation(ctx context.Context, event models.RotationEvent) error
	Close() error
}

// CacheInvalidator fans a rotation out to other service instances so their
// key caches refresh before their TTL elapses. Best-effort; the TTL remains
// the correctness backstop.
type CacheInvalidator interface {
	PublishInvalidation(ctx context.Context, event models.RotationEvent) error
	Close() error
}
