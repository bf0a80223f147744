package domain

import "time"

// SyncStatus is the per-integration sync state machine flag. The persisted
// syncing value doubles as the mutual-exclusion gate: a pass only starts by
// flipping idle/error to syncing inside a locking transaction.
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncSyncing SyncStatus = "syncing"
	SyncError   SyncStatus = "error"
)

// EmailSyncState tracks the sync state machine for one integration (1:1).
// Created lazily on the first sync attempt.
type EmailSyncState struct {
	IntegrationID string     `json:"integration_id" gorm:"primaryKey"`
	LastSyncedAt  *time.Time `json:"last_synced_at"`
	LastPageToken string     `json:"last_page_token" gorm:"size:512"`
	Status        SyncStatus `json:"status" gorm:"not null;default:'idle'"`
	ErrorMessage  string     `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (EmailSyncState) TableName() string {
	return "email_sync_states"
}
