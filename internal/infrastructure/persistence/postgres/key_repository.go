package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/crewbill/keysvc/internal/domain/models"
	"github.com/crewbill/keysvc/internal/domain/repository"
	"github.com/crewbill/keysvc/pkg/constants"
	"github.com/crewbill/keysvc/pkg/errors"
)

// KeyRepository is the GORM-backed implementation of the key repository.
type KeyRepository struct {
	db *gorm.DB
}

// NewKeyRepository creates a new KeyRepository.
func NewKeyRepository(db *gorm.DB) repository.KeyRepository {
	return &KeyRepository{db: db}
}

// Create inserts a new key record.
func (r *KeyRepository) Create(ctx context.Context, key *models.SigningKey) error {
	if err := r.db.WithContext(ctx).Create(key).Error; err != nil {
		return translate(err, key.KeyID)
	}
	return nil
}

// Save persists all fields of an existing record.
func (r *KeyRepository) Save(ctx context.Context, key *models.SigningKey) error {
	if err := r.db.WithContext(ctx).Save(key).Error; err != nil {
		return translate(err, key.KeyID)
	}
	return nil
}

// FindByID returns the record with the given key id.
func (r *KeyRepository) FindByID(ctx context.Context, keyID string) (*models.SigningKey, error) {
	var key models.SigningKey
	err := r.db.WithContext(ctx).Where("key_id = ?", keyID).First(&key).Error
	if err != nil {
		return nil, translate(err, keyID)
	}
	return &key, nil
}

// FindActive returns the single active record regardless of expiry.
func (r *KeyRepository) FindActive(ctx context.Context) (*models.SigningKey, error) {
	var key models.SigningKey
	err := r.db.WithContext(ctx).
		Where("status = ?", constants.KeyStatusActive).
		First(&key).Error
	if err != nil {
		return nil, translate(err, "")
	}
	return &key, nil
}

// FindNewestValid returns the most recently created unexpired valid record.
func (r *KeyRepository) FindNewestValid(ctx context.Context, now time.Time) (*models.SigningKey, error) {
	var key models.SigningKey
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at > ?", constants.KeyStatusValid, now).
		Order("created_at DESC").
		First(&key).Error
	if err != nil {
		return nil, translate(err, "")
	}
	return &key, nil
}

// ListAll returns every record, newest first.
func (r *KeyRepository) ListAll(ctx context.Context) ([]*models.SigningKey, error) {
	var keys []*models.SigningKey
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&keys).Error
	if err != nil {
		return nil, translate(err, "")
	}
	return keys, nil
}

// ListVerification returns all verification-eligible records, most recently
// activated first. Records that never activated sort last by creation time.
func (r *KeyRepository) ListVerification(ctx context.Context, now time.Time) ([]*models.SigningKey, error) {
	var keys []*models.SigningKey
	err := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at > ?",
			[]constants.KeyStatus{constants.KeyStatusActive, constants.KeyStatusValid}, now).
		Order("activated_at DESC NULLS LAST").
		Order("created_at DESC").
		Find(&keys).Error
	if err != nil {
		return nil, translate(err, "")
	}
	return keys, nil
}

// RevokeExpiredActive bulk-revokes active records whose expiry has elapsed.
func (r *KeyRepository) RevokeExpiredActive(ctx context.Context, now time.Time, reason string) (int64, error) {
	return r.bulkRevoke(ctx, r.db.WithContext(ctx).
		Model(&models.SigningKey{}).
		Where("status = ? AND expires_at <= ?", constants.KeyStatusActive, now),
		now, reason)
}

// RevokeExpired bulk-revokes every non-revoked record whose expiry has elapsed.
func (r *KeyRepository) RevokeExpired(ctx context.Context, now time.Time, reason string) (int64, error) {
	return r.bulkRevoke(ctx, r.db.WithContext(ctx).
		Model(&models.SigningKey{}).
		Where("status <> ? AND expires_at <= ?", constants.KeyStatusRevoked, now),
		now, reason)
}

// RevokeAll bulk-revokes every non-revoked record. Emergency rotation only.
func (r *KeyRepository) RevokeAll(ctx context.Context, now time.Time, reason string) (int64, error) {
	return r.bulkRevoke(ctx, r.db.WithContext(ctx).
		Model(&models.SigningKey{}).
		Where("status <> ?", constants.KeyStatusRevoked),
		now, reason)
}

func (r *KeyRepository) bulkRevoke(ctx context.Context, query *gorm.DB, now time.Time, reason string) (int64, error) {
	res := query.Updates(map[string]interface{}{
		"status":            constants.KeyStatusRevoked,
		"revoked_at":        now,
		"revocation_reason": reason,
	})
	if res.Error != nil {
		return 0, translate(res.Error, "")
	}
	return res.RowsAffected, nil
}

// DeleteRevokedBefore removes revoked records older than the cutoff.
func (r *KeyRepository) DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND revoked_at < ?", constants.KeyStatusRevoked, cutoff).
		Delete(&models.SigningKey{})
	if res.Error != nil {
		return 0, translate(res.Error, "")
	}
	return res.RowsAffected, nil
}

// Count returns the total number of records.
func (r *KeyRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.SigningKey{}).Count(&count).Error
	if err != nil {
		return 0, translate(err, "")
	}
	return count, nil
}

// Transaction runs fn inside a database transaction; fn receives a repository
// bound to that transaction.
func (r *KeyRepository) Transaction(ctx context.Context, fn func(tx repository.KeyRepository) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&KeyRepository{db: tx})
	})
	if err != nil {
		return translate(err, "")
	}
	return nil
}

// translate maps driver errors onto the service error taxonomy so the
// rotation coordinator's retry policy can distinguish transient conflicts.
func translate(err error, keyID string) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}

	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.ErrKeyNotFound(keyID)
	}
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.ErrTransientStore(err)
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization failure, deadlock
			return errors.ErrTransientStore(err)
		case "23505": // unique violation, e.g. two concurrent activations
			return errors.ErrTransientStore(err)
		}
	}

	return errors.ErrStoreUnavailable(err)
}
