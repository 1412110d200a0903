package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/crewbill/keysvc/internal/domain/models"
	"github.com/crewbill/keysvc/internal/domain/repository"
	"github.com/crewbill/keysvc/pkg/constants"
	"github.com/crewbill/keysvc/pkg/errors"
)

func setupRepo(t *testing.T) repository.KeyRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return NewKeyRepository(db)
}

var keySeq int

func testKey(status constants.KeyStatus, expiresIn time.Duration) *models.SigningKey {
	keySeq++
	now := time.Now()
	key := &models.SigningKey{
		KeyID:        fmt.Sprintf("key-%d-%d", keySeq, now.UnixNano()),
		Secret:       "0123456789abcdef0123456789abcdef",
		Status:       status,
		Algorithm:    constants.AlgorithmHS256,
		CreatedAt:    now,
		ExpiresAt:    now.Add(expiresIn),
		RotationType: constants.RotationTypeManual,
		CreatedBy:    constants.ActorSystem,
	}
	if status == constants.KeyStatusActive {
		key.ActivatedAt = &now
	}
	return key
}

func TestKeyRepositoryCreateAndFind(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	key := testKey(constants.KeyStatusActive, time.Hour)
	require.NoError(t, repo.Create(ctx, key))

	found, err := repo.FindByID(ctx, key.KeyID)
	require.NoError(t, err)
	assert.Equal(t, key.KeyID, found.KeyID)
	assert.Equal(t, constants.KeyStatusActive, found.Status)

	_, err = repo.FindByID(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestKeyRepositoryFindActive(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	_, err := repo.FindActive(ctx)
	assert.True(t, errors.IsNotFound(err))

	require.NoError(t, repo.Create(ctx, testKey(constants.KeyStatusValid, time.Hour)))
	active := testKey(constants.KeyStatusActive, time.Hour)
	require.NoError(t, repo.Create(ctx, active))

	found, err := repo.FindActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, active.KeyID, found.KeyID)
}

func TestKeyRepositoryFindNewestValid(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	older := testKey(constants.KeyStatusValid, time.Hour)
	older.CreatedAt = time.Now().Add(-2 * time.Hour)
	newer := testKey(constants.KeyStatusValid, time.Hour)
	expired := testKey(constants.KeyStatusValid, -time.Hour)
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))
	require.NoError(t, repo.Create(ctx, expired))

	found, err := repo.FindNewestValid(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, newer.KeyID, found.KeyID)
}

func TestKeyRepositoryListVerification(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	now := time.Now()

	active := testKey(constants.KeyStatusActive, time.Hour)
	demotedEarlier := testKey(constants.KeyStatusValid, time.Hour)
	earlier := now.Add(-time.Hour)
	demotedEarlier.ActivatedAt = &earlier
	expiredValid := testKey(constants.KeyStatusValid, -time.Minute)
	revoked := testKey(constants.KeyStatusRevoked, time.Hour)

	for _, k := range []*models.SigningKey{demotedEarlier, active, expiredValid, revoked} {
		require.NoError(t, repo.Create(ctx, k))
	}

	keys, err := repo.ListVerification(ctx, now)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	// Most recently activated first.
	assert.Equal(t, active.KeyID, keys[0].KeyID)
	assert.Equal(t, demotedEarlier.KeyID, keys[1].KeyID)
}

func TestKeyRepositoryRevokeExpiredActive(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	expiredActive := testKey(constants.KeyStatusActive, -time.Minute)
	expiredValid := testKey(constants.KeyStatusValid, -time.Minute)
	require.NoError(t, repo.Create(ctx, expiredActive))
	require.NoError(t, repo.Create(ctx, expiredValid))

	n, err := repo.RevokeExpiredActive(ctx, time.Now(), constants.RevocationReasonExpired)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	swept, err := repo.FindByID(ctx, expiredActive.KeyID)
	require.NoError(t, err)
	assert.Equal(t, constants.KeyStatusRevoked, swept.Status)
	require.NotNil(t, swept.RevocationReason)
	assert.Equal(t, constants.RevocationReasonExpired, *swept.RevocationReason)
	assert.NotNil(t, swept.RevokedAt)

	// The expired valid key is untouched by the active-only sweep.
	untouched, err := repo.FindByID(ctx, expiredValid.KeyID)
	require.NoError(t, err)
	assert.Equal(t, constants.KeyStatusValid, untouched.Status)
}

func TestKeyRepositoryRevokeAll(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testKey(constants.KeyStatusActive, time.Hour)))
	require.NoError(t, repo.Create(ctx, testKey(constants.KeyStatusValid, time.Hour)))
	alreadyRevoked := testKey(constants.KeyStatusRevoked, time.Hour)
	require.NoError(t, repo.Create(ctx, alreadyRevoked))

	n, err := repo.RevokeAll(ctx, time.Now(), "emergency rotation: compromise suspected")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	keys, err := repo.ListAll(ctx)
	require.NoError(t, err)
	for _, k := range keys {
		assert.Equal(t, constants.KeyStatusRevoked, k.Status)
	}
}

func TestKeyRepositoryDeleteRevokedBefore(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	now := time.Now()

	old := testKey(constants.KeyStatusRevoked, time.Hour)
	oldRevokedAt := now.Add(-200 * 24 * time.Hour)
	old.RevokedAt = &oldRevokedAt
	recent := testKey(constants.KeyStatusRevoked, time.Hour)
	recentRevokedAt := now.Add(-24 * time.Hour)
	recent.RevokedAt = &recentRevokedAt
	live := testKey(constants.KeyStatusActive, time.Hour)

	for _, k := range []*models.SigningKey{old, recent, live} {
		require.NoError(t, repo.Create(ctx, k))
	}

	n, err := repo.DeleteRevokedBefore(ctx, now.Add(-constants.DefaultRetentionWindow))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	_, err = repo.FindByID(ctx, old.KeyID)
	assert.True(t, errors.IsNotFound(err))
}

func TestKeyRepositoryTransactionRollback(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	sentinel := fmt.Errorf("boom")
	err := repo.Transaction(ctx, func(tx repository.KeyRepository) error {
		if err := tx.Create(ctx, testKey(constants.KeyStatusActive, time.Hour)); err != nil {
			return err
		}
		return sentinel
	})
	require.Error(t, err)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestKeyRepositoryDuplicateKeyIsTransient(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	key := testKey(constants.KeyStatusValid, time.Hour)
	require.NoError(t, repo.Create(ctx, key))

	dup := *key
	err := repo.Create(ctx, &dup)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestKeyRepositorySecondActiveIsTransient(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testKey(constants.KeyStatusActive, time.Hour)))

	// A second insert racing for active status loses to the partial unique
	// index and surfaces as transient, so the caller retries.
	err := repo.Create(ctx, testKey(constants.KeyStatusActive, time.Hour))
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestKeyRepositoryPromoteSecondActiveIsTransient(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testKey(constants.KeyStatusActive, time.Hour)))
	candidate := testKey(constants.KeyStatusValid, time.Hour)
	require.NoError(t, repo.Create(ctx, candidate))

	now := time.Now()
	candidate.Status = constants.KeyStatusActive
	candidate.ActivatedAt = &now
	err := repo.Save(ctx, candidate)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}
