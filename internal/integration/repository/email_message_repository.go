package repository

import (
	"strings"
	"time"

	"daybrief-backend/internal/integration/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CachedEmailFilter narrows a read of the local message cache.
type CachedEmailFilter struct {
	Keyword string
	Labels  []string
	Limit   int
	Offset  int
}

// EmailMessageRepository defines the interface for the local message cache
type EmailMessageRepository interface {
	FindByProviderMessageIDs(integrationID string, providerMessageIDs []string) ([]*domain.EmailMessage, error)
	// SaveBatch applies one reconcile pass in a single transaction: new rows
	// inserted, changed rows rewritten in place.
	SaveBatch(toCreate []*domain.EmailMessage, toUpdate []*domain.EmailMessage) error
	ListCached(integrationID string, filter CachedEmailFilter) ([]*domain.EmailMessage, int64, error)
	FindMissingSummaries(integrationID string, limit int) ([]*domain.EmailMessage, error)
	// SaveSummaries persists a backfill batch in one commit.
	SaveSummaries(messages []*domain.EmailMessage) error
	FindByIDs(ids []string) ([]*domain.EmailMessage, error)
	FindSummariesByProviderMessageIDs(integrationID string, providerMessageIDs []string) (map[string]*string, error)
}

// emailMessageRepository implements EmailMessageRepository interface
type emailMessageRepository struct {
	db *gorm.DB
}

// NewEmailMessageRepository creates a new instance of emailMessageRepository
func NewEmailMessageRepository(db *gorm.DB) EmailMessageRepository {
	return &emailMessageRepository{
		db: db,
	}
}

func (r *emailMessageRepository) FindByProviderMessageIDs(integrationID string, providerMessageIDs []string) ([]*domain.EmailMessage, error) {
	if len(providerMessageIDs) == 0 {
		return nil, nil
	}
	var messages []*domain.EmailMessage
	err := r.db.Where("integration_id = ? AND provider_message_id IN ?", integrationID, providerMessageIDs).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *emailMessageRepository) SaveBatch(toCreate []*domain.EmailMessage, toUpdate []*domain.EmailMessage) error {
	if len(toCreate) == 0 && len(toUpdate) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		if len(toCreate) > 0 {
			now := time.Now()
			for _, message := range toCreate {
				if message.ID == "" {
					message.ID = uuid.New().String()
				}
				message.CreatedAt = now
				message.UpdatedAt = now
			}
			if err := tx.Create(&toCreate).Error; err != nil {
				return err
			}
		}
		for _, message := range toUpdate {
			if err := tx.Save(message).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *emailMessageRepository) ListCached(integrationID string, filter CachedEmailFilter) ([]*domain.EmailMessage, int64, error) {
	query := r.db.Model(&domain.EmailMessage{}).Where("integration_id = ?", integrationID)

	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		pattern := "%" + strings.ToLower(keyword) + "%"
		query = query.Where(
			"LOWER(subject) LIKE ? OR LOWER(from_address) LIKE ? OR LOWER(snippet) LIKE ?",
			pattern, pattern, pattern,
		)
	}
	for _, label := range filter.Labels {
		// Labels are stored as a JSON array in a text column; match the
		// quoted element.
		query = query.Where("labels LIKE ?", `%"`+label+`"%`)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var messages []*domain.EmailMessage
	err := query.
		Order("date_ts DESC NULLS LAST").
		Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&messages).Error
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

func (r *emailMessageRepository) FindMissingSummaries(integrationID string, limit int) ([]*domain.EmailMessage, error) {
	var messages []*domain.EmailMessage
	err := r.db.
		Where("integration_id = ? AND summary IS NULL", integrationID).
		Order("date_ts DESC NULLS LAST").
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *emailMessageRepository) SaveSummaries(messages []*domain.EmailMessage) error {
	if len(messages) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, message := range messages {
			err := tx.Model(&domain.EmailMessage{}).
				Where("id = ?", message.ID).
				Updates(map[string]interface{}{
					"summary":            message.Summary,
					"summary_updated_at": message.SummaryUpdatedAt,
					"updated_at":         time.Now(),
				}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *emailMessageRepository) FindByIDs(ids []string) ([]*domain.EmailMessage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var messages []*domain.EmailMessage
	err := r.db.Where("id IN ?", ids).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *emailMessageRepository) FindSummariesByProviderMessageIDs(integrationID string, providerMessageIDs []string) (map[string]*string, error) {
	messages, err := r.FindByProviderMessageIDs(integrationID, providerMessageIDs)
	if err != nil {
		return nil, err
	}
	summaries := make(map[string]*string, len(messages))
	for _, message := range messages {
		if message.Summary != nil {
			summaries[message.ProviderMessageID] = message.Summary
		}
	}
	return summaries, nil
}
