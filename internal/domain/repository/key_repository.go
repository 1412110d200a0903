// Package repository defines the persistence interfaces of the key service.
package repository

import (
	"context"
	"time"

	"github.com/crewbill/keysvc/internal/domain/models"
)

// KeyRepository is the abstract transactional store for signing key records.
// The store is the single source of truth; the key cache is only a read
// optimization on top of it. Implementations must return pkg/errors codes:
// key_not_found for lookup misses and transient_store_error for retryable
// write conflicts, so the rotation coordinator's retry policy can react.
type KeyRepository interface {
	// Create inserts a new key record. The key id must be unique.
	Create(ctx context.Context, key *models.SigningKey) error

	// Save persists all mutable fields of an existing record.
	Save(ctx context.Context, key *models.SigningKey) error

	// FindByID returns the record with the given key id.
	FindByID(ctx context.Context, keyID string) (*models.SigningKey, error)

	// FindActive returns the single active record regardless of expiry.
	// Expiry is the caller's concern: the initializer must see an expired
	// active key to sweep it.
	FindActive(ctx context.Context) (*models.SigningKey, error)

	// FindNewestValid returns the most recently created valid record whose
	// expiry is after now.
	FindNewestValid(ctx context.Context, now time.Time) (*models.SigningKey, error)

	// ListAll returns every record, newest first.
	ListAll(ctx context.Context) ([]*models.SigningKey, error)

	// ListVerification returns all verification-eligible records (active or
	// valid, unexpired), most recently activated first.
	ListVerification(ctx context.Context, now time.Time) ([]*models.SigningKey, error)

	// RevokeExpiredActive bulk-transitions active records whose expiry has
	// elapsed to revoked with the given reason. Returns the affected count.
	RevokeExpiredActive(ctx context.Context, now time.Time, reason string) (int64, error)

	// RevokeExpired bulk-transitions every non-revoked record whose expiry
	// has elapsed to revoked with the given reason.
	RevokeExpired(ctx context.Context, now time.Time, reason string) (int64, error)

	// RevokeAll bulk-transitions every non-revoked record to revoked with
	// the given reason. Used only by emergency rotation.
	RevokeAll(ctx context.Context, now time.Time, reason string) (int64, error)

	// DeleteRevokedBefore removes revoked records whose revocation is older
	// than the cutoff. This is storage reclamation, not a lifecycle
	// transition, and the only deletion path in the system.
	DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Count returns the total number of records.
	Count(ctx context.Context) (int64, error)

	// Transaction runs fn inside a store-level atomic transaction. The
	// repository passed to fn operates within that transaction. A write
	// conflict surfaces as a transient_store_error for the caller to retry.
	Transaction(ctx context.Context, fn func(tx KeyRepository) error) error
}
