//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/crewbill/keysvc/internal/domain/models"
	"github.com/crewbill/keysvc/internal/domain/repository"
	"github.com/crewbill/keysvc/pkg/constants"
	"github.com/crewbill/keysvc/pkg/errors"
)

func setupPostgresRepo(t *testing.T) repository.KeyRepository {
	t.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "true" {
		t.Skip("Skipping Docker-dependent tests")
	}

	ctx := context.Background()
	pgContainer, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("keysvc_test"),
		tcpostgres.WithUsername("keysvc"),
		tcpostgres.WithPassword("keysvc"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(context.Background()))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(connStr), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	return NewKeyRepository(db)
}

func TestKeyRepositoryAgainstPostgres(t *testing.T) {
	repo := setupPostgresRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	active := &models.SigningKey{
		KeyID:        "itg-active",
		Secret:       "integration-secret-material-000000000001",
		Status:       constants.KeyStatusActive,
		Algorithm:    constants.AlgorithmHS256,
		CreatedAt:    now,
		ExpiresAt:    now.Add(90 * 24 * time.Hour),
		RotationType: constants.RotationTypeInitial,
		CreatedBy:    constants.ActorSystem,
	}
	require.NoError(t, repo.Create(ctx, active))

	t.Run("find active", func(t *testing.T) {
		found, err := repo.FindActive(ctx)
		require.NoError(t, err)
		assert.Equal(t, "itg-active", found.KeyID)
	})

	t.Run("duplicate key id is transient", func(t *testing.T) {
		err := repo.Create(ctx, active)
		require.Error(t, err)
		assert.True(t, errors.IsTransient(err))
	})

	t.Run("transaction rollback leaves no trace", func(t *testing.T) {
		sentinel := errors.ErrInternal("rollback", nil)
		err := repo.Transaction(ctx, func(tx repository.KeyRepository) error {
			if err := tx.Create(ctx, &models.SigningKey{
				KeyID:        "itg-rollback",
				Secret:       "integration-secret-material-000000000002",
				Status:       constants.KeyStatusValid,
				Algorithm:    constants.AlgorithmHS256,
				CreatedAt:    now,
				ExpiresAt:    now.Add(time.Hour),
				RotationType: constants.RotationTypeManual,
				CreatedBy:    "itg",
			}); err != nil {
				return err
			}
			return sentinel
		})
		require.ErrorIs(t, err, sentinel)

		_, err = repo.FindByID(ctx, "itg-rollback")
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("second active row is rejected", func(t *testing.T) {
		err := repo.Create(ctx, &models.SigningKey{
			KeyID:        "itg-second-active",
			Secret:       "integration-secret-material-000000000004",
			Status:       constants.KeyStatusActive,
			Algorithm:    constants.AlgorithmHS256,
			CreatedAt:    now,
			ExpiresAt:    now.Add(time.Hour),
			RotationType: constants.RotationTypeManual,
			CreatedBy:    "itg",
		})
		require.Error(t, err)
		assert.True(t, errors.IsTransient(err))
	})

	t.Run("expiry sweep under real timestamps", func(t *testing.T) {
		demoted, err := repo.FindByID(ctx, "itg-active")
		require.NoError(t, err)
		demoted.Status = constants.KeyStatusValid
		require.NoError(t, repo.Save(ctx, demoted))

		expired := &models.SigningKey{
			KeyID:        "itg-expired",
			Secret:       "integration-secret-material-000000000003",
			Status:       constants.KeyStatusActive,
			Algorithm:    constants.AlgorithmHS256,
			CreatedAt:    now.Add(-48 * time.Hour),
			ExpiresAt:    now.Add(-time.Hour),
			RotationType: constants.RotationTypeAutomatic,
			CreatedBy:    constants.ActorSystem,
		}
		require.NoError(t, repo.Create(ctx, expired))

		swept, err := repo.RevokeExpiredActive(ctx, now, constants.RevocationReasonExpired)
		require.NoError(t, err)
		assert.Equal(t, int64(1), swept)

		record, err := repo.FindByID(ctx, "itg-expired")
		require.NoError(t, err)
		assert.Equal(t, constants.KeyStatusRevoked, record.Status)
		require.NotNil(t, record.RevocationReason)
		assert.Equal(t, constants.RevocationReasonExpired, *record.RevocationReason)
	})
}
