package application

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/crewbill/keysvc/internal/domain/models"
	"github.com/crewbill/keysvc/internal/domain/repository"
	"github.com/crewbill/keysvc/internal/infrastructure/persistence/postgres"
	"github.com/crewbill/keysvc/pkg/constants"
)

func newTestRepo(t *testing.T) repository.KeyRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, postgres.Migrate(db))
	return postgres.NewKeyRepository(db)
}

func seedKey(status constants.KeyStatus, expiresIn time.Duration) *models.SigningKey {
	now := time.Now()
	key := &models.SigningKey{
		KeyID:        uuid.NewString(),
		Secret:       "qmQ2vX9cL0pR7sT4uW1yZ8aB5dE3fG6h",
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
