package repository

import (
	"errors"
	"time"

	"daybrief-backend/internal/integration/domain"

	"gorm.io/gorm"
)

// OAuthStateRepository defines the interface for anti-CSRF state operations
type OAuthStateRepository interface {
	// Replace deletes any prior state for the (user, provider) pair and
	// persists the new one, atomically. Starting a fresh authorization
	// invalidates the previous state string.
	Replace(state *domain.OAuthState) error
	FindByState(state string) (*domain.OAuthState, error)
	Delete(state string) error
	DeleteExpired(now time.Time) (int64, error)
}

// oauthStateRepository implements OAuthStateRepository interface
type oauthStateRepository struct {
	db *gorm.DB
}

// NewOAuthStateRepository creates a new instance of oauthStateRepository
func NewOAuthStateRepository(db *gorm.DB) OAuthStateRepository {
	return &oauthStateRepository{
		db: db,
	}
}

func (r *oauthStateRepository) Replace(state *domain.OAuthState) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND provider_type = ?", state.UserID, state.ProviderType).
			Delete(&domain.OAuthState{}).Error; err != nil {
			return err
		}
		state.CreatedAt = time.Now()
		return tx.Create(state).Error
	})
}

func (r *oauthStateRepository) FindByState(state string) (*domain.OAuthState, error) {
	var record domain.OAuthState
	err := r.db.Where("state = ?", state).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *oauthStateRepository) Delete(state string) error {
	return r.db.Where("state = ?", state).Delete(&domain.OAuthState{}).Error
}

func (r *oauthStateRepository) DeleteExpired(now time.Time) (int64, error) {
	res := r.db.Where("expires_at < ?", now).Delete(&domain.OAuthState{})
	return res.RowsAffected, res.Error
}
