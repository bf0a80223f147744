package repository

import (
	"path/filepath"
	"testing"
	"time"

	"daybrief-backend/internal/integration/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a throwaway file-backed sqlite database. A file, not
// :memory:, because gorm pools connections and each in-memory connection
// would see its own empty database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&domain.Integration{},
		&domain.IntegrationToken{},
		&domain.OAuthState{},
		&domain.EmailMessage{},
		&domain.EmailSyncState{},
	))
	return db
}

func seedIntegration(t *testing.T, db *gorm.DB, userID string, provider domain.ProviderType, status domain.IntegrationStatus) *domain.Integration {
	t.Helper()

	integration := &domain.Integration{
		ID:           uuid.New().String(),
		UserID:       userID,
		ProviderType: provider,
		Status:       status,
		AccountEmail: userID + "@example.com",
		Config:       domain.JSONMap{},
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	require.NoError(t, db.Create(integration).Error)
	return integration
}
