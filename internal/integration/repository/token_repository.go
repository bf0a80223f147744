package repository

import (
	"errors"
	"time"

	"daybrief-backend/internal/integration/domain"

	"gorm.io/gorm"
)

// TokenRepository defines the interface for encrypted token record operations
type TokenRepository interface {
	FindByIntegration(integrationID string) (*domain.IntegrationToken, error)
	// Save persists a rotated token record after a refresh
	Save(token *domain.IntegrationToken) error
}

// tokenRepository implements TokenRepository interface
type tokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository creates a new instance of tokenRepository
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{
		db: db,
	}
}

func (r *tokenRepository) FindByIntegration(integrationID string) (*domain.IntegrationToken, error) {
	var token domain.IntegrationToken
	err := r.db.Where("integration_id = ?", integrationID).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &token, nil
}

func (r *tokenRepository) Save(token *domain.IntegrationToken) error {
	token.UpdatedAt = time.Now()
	return r.db.Save(token).Error
}
