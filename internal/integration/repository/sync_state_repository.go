package repository

import (
	"errors"
	"time"

	"daybrief-backend/internal/integration/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// reclaimedMessage is recorded on sync states whose worker never finished.
const reclaimedMessage = "sync reclaimed: previous pass did not finish"

// SyncStateRepository defines the interface for the per-integration sync
// state machine. AcquireSlot is the concurrency gate: the syncing flag lives
// in the database, so mutual exclusion holds across process restarts.
type SyncStateRepository interface {
	Find(integrationID string) (*domain.EmailSyncState, error)
	// AcquireSlot atomically flips the state to syncing and clears the prior
	// error. Returns false when another pass already holds the slot. The
	// check-and-set is a single guarded UPDATE, not a read-then-write, so two
	// concurrent callers can never both acquire.
	AcquireSlot(integrationID string) (bool, error)
	// MarkIdle finalizes a successful pass: cursor stored, last_synced_at
	// set, status back to idle.
	MarkIdle(integrationID, pageToken string, syncedAt time.Time) error
	MarkError(integrationID, message string) error
	// ReclaimStuck flips syncing states untouched since the cutoff to error.
	// Covers workers that died without reaching a terminal transition.
	ReclaimStuck(olderThan time.Time) (int64, error)
}

// syncStateRepository implements SyncStateRepository interface
type syncStateRepository struct {
	db *gorm.DB
}

// NewSyncStateRepository creates a new instance of syncStateRepository
func NewSyncStateRepository(db *gorm.DB) SyncStateRepository {
	return &syncStateRepository{
		db: db,
	}
}

func (r *syncStateRepository) Find(integrationID string) (*domain.EmailSyncState, error) {
	var state domain.EmailSyncState
	err := r.db.Where("integration_id = ?", integrationID).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

func (r *syncStateRepository) AcquireSlot(integrationID string) (bool, error) {
	now := time.Now()

	// Lazily create the state row; a concurrent insert loses silently.
	state := &domain.EmailSyncState{
		IntegrationID: integrationID,
		Status:        domain.SyncIdle,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(state).Error; err != nil {
		return false, err
	}

	res := r.db.Model(&domain.EmailSyncState{}).
		Where("integration_id = ? AND status <> ?", integrationID, domain.SyncSyncing).
		Updates(map[string]interface{}{
			"status":        domain.SyncSyncing,
			"error_message": "",
			"updated_at":    now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *syncStateRepository) MarkIdle(integrationID, pageToken string, syncedAt time.Time) error {
	return r.db.Model(&domain.EmailSyncState{}).
		Where("integration_id = ?", integrationID).
		Updates(map[string]interface{}{
			"status":          domain.SyncIdle,
			"last_page_token": pageToken,
			"last_synced_at":  syncedAt,
			"updated_at":      time.Now(),
		}).Error
}

func (r *syncStateRepository) MarkError(integrationID, message string) error {
	return r.db.Model(&domain.EmailSyncState{}).
		Where("integration_id = ?", integrationID).
		Updates(map[string]interface{}{
			"status":        domain.SyncError,
			"error_message": message,
			"updated_at":    time.Now(),
		}).Error
}

func (r *syncStateRepository) ReclaimStuck(olderThan time.Time) (int64, error) {
	res := r.db.Model(&domain.EmailSyncState{}).
		Where("status = ? AND updated_at < ?", domain.SyncSyncing, olderThan).
		Updates(map[string]interface{}{
			"status":        domain.SyncError,
			"error_message": reclaimedMessage,
			"updated_at":    time.Now(),
		})
	return res.RowsAffected, res.Error
}
