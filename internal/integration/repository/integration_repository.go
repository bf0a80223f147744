package repository

import (
	"errors"
	"time"

	"daybrief-backend/internal/integration/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IntegrationRepository defines the interface for integration aggregate operations
type IntegrationRepository interface {
	FindByID(id string) (*domain.Integration, error)
	FindByUserAndID(userID, id string) (*domain.Integration, error)
	FindByUser(userID string) ([]*domain.Integration, error)
	FindByUserAndProvider(userID string, provider domain.ProviderType) (*domain.Integration, error)
	FindByAccountEmail(provider domain.ProviderType, accountEmail string) (*domain.Integration, error)
	FindStale(provider domain.ProviderType, olderThan time.Time) ([]*domain.Integration, error)
	Update(integration *domain.Integration) error
	UpdateStatus(id string, status domain.IntegrationStatus) error
	// Delete removes the integration and everything it owns: token record,
	// cached messages, and sync state go in the same transaction.
	Delete(id string) error
	// CommitAuthorization persists the outcome of an OAuth callback as one
	// unit: integration find-or-create, token upsert, and consumption of the
	// state record. A failure partway leaves nothing applied.
	CommitAuthorization(integration *domain.Integration, token *domain.IntegrationToken, consumedState string) error
}

// integrationRepository implements IntegrationRepository interface
type integrationRepository struct {
	db *gorm.DB
}

// NewIntegrationRepository creates a new instance of integrationRepository
func NewIntegrationRepository(db *gorm.DB) IntegrationRepository {
	return &integrationRepository{
		db: db,
	}
}

func (r *integrationRepository) FindByID(id string) (*domain.Integration, error) {
	var integration domain.Integration
	err := r.db.Where("id = ?", id).First(&integration).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &integration, nil
}

func (r *integrationRepository) FindByUserAndID(userID, id string) (*domain.Integration, error) {
	var integration domain.Integration
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&integration).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &integration, nil
}

func (r *integrationRepository) FindByUser(userID string) ([]*domain.Integration, error) {
	var integrations []*domain.Integration
	err := r.db.Where("user_id = ?", userID).Order("created_at asc").Find(&integrations).Error
	if err != nil {
		return nil, err
	}
	return integrations, nil
}

func (r *integrationRepository) FindByUserAndProvider(userID string, provider domain.ProviderType) (*domain.Integration, error) {
	var integration domain.Integration
	err := r.db.Where("user_id = ? AND provider_type = ?", userID, provider).First(&integration).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &integration, nil
}

func (r *integrationRepository) FindByAccountEmail(provider domain.ProviderType, accountEmail string) (*domain.Integration, error) {
	var integration domain.Integration
	err := r.db.Where("provider_type = ? AND account_email = ? AND status = ?", provider, accountEmail, domain.StatusActive).
		First(&integration).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &integration, nil
}

// FindStale returns active integrations whose sync state is missing or whose
// last successful sync is older than the cutoff. Drives the background
// scheduler sweep.
func (r *integrationRepository) FindStale(provider domain.ProviderType, olderThan time.Time) ([]*domain.Integration, error) {
	var integrations []*domain.Integration
	err := r.db.
		Joins("LEFT JOIN email_sync_states ON email_sync_states.integration_id = integrations.id").
		Where("integrations.provider_type = ? AND integrations.status = ?", provider, domain.StatusActive).
		Where("email_sync_states.last_synced_at IS NULL OR email_sync_states.last_synced_at < ?", olderThan).
		Find(&integrations).Error
	if err != nil {
		return nil, err
	}
	return integrations, nil
}

func (r *integrationRepository) Update(integration *domain.Integration) error {
	integration.UpdatedAt = time.Now()
	return r.db.Save(integration).Error
}

func (r *integrationRepository) UpdateStatus(id string, status domain.IntegrationStatus) error {
	return r.db.Model(&domain.Integration{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()}).Error
}

func (r *integrationRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("integration_id = ?", id).Delete(&domain.EmailMessage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("integration_id = ?", id).Delete(&domain.EmailSyncState{}).Error; err != nil {
			return err
		}
		if err := tx.Where("integration_id = ?", id).Delete(&domain.IntegrationToken{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.Integration{}).Error
	})
}

func (r *integrationRepository) CommitAuthorization(integration *domain.Integration, token *domain.IntegrationToken, consumedState string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		if integration.ID == "" {
			integration.ID = uuid.New().String()
			integration.CreatedAt = now
			integration.UpdatedAt = now
			if err := tx.Create(integration).Error; err != nil {
				return err
			}
		} else {
			integration.UpdatedAt = now
			if err := tx.Save(integration).Error; err != nil {
				return err
			}
		}

		token.IntegrationID = integration.ID
		if token.ID == "" {
			token.ID = uuid.New().String()
			token.CreatedAt = now
		}
		token.UpdatedAt = now
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "integration_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "expires_at", "token_type", "updated_at"}),
		}).Create(token).Error; err != nil {
			return err
		}

		return tx.Where("state = ?", consumedState).Delete(&domain.OAuthState{}).Error
	})
}
