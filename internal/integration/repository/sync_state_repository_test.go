package repository

import (
	"testing"
	"time"

	"daybrief-backend/internal/integration/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireSlotCreatesStateAndLocks(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncStateRepository(db)

	before, err := repo.Find("integration-1")
	require.NoError(t, err)
	assert.Nil(t, before)

	acquired, err := repo.AcquireSlot("integration-1")
	require.NoError(t, err)
	assert.True(t, acquired)

	state, err := repo.Find("integration-1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, domain.SyncSyncing, state.Status)

	// The slot is held; a second acquire loses.
	acquired, err = repo.AcquireSlot("integration-1")
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestAcquireSlotReopensAfterError(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncStateRepository(db)

	acquired, err := repo.AcquireSlot("integration-1")
	require.NoError(t, err)
	require.True(t, acquired)
	require.NoError(t, repo.MarkError("integration-1", "provider list failed"))

	acquired, err = repo.AcquireSlot("integration-1")
	require.NoError(t, err)
	assert.True(t, acquired)

	state, err := repo.Find("integration-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncSyncing, state.Status)
	assert.Empty(t, state.ErrorMessage)
}

func TestMarkIdleStoresCursorAndTimestamp(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncStateRepository(db)

	acquired, err := repo.AcquireSlot("integration-1")
	require.NoError(t, err)
	require.True(t, acquired)

	syncedAt := time.Now().Truncate(time.Second)
	require.NoError(t, repo.MarkIdle("integration-1", "cursor-7", syncedAt))

	state, err := repo.Find("integration-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncIdle, state.Status)
	assert.Equal(t, "cursor-7", state.LastPageToken)
	require.NotNil(t, state.LastSyncedAt)
	assert.WithinDuration(t, syncedAt, *state.LastSyncedAt, time.Second)
}

func TestReclaimStuckFlipsOnlyOldSyncingStates(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncStateRepository(db)

	for _, id := range []string{"stuck", "fresh", "idle"} {
		acquired, err := repo.AcquireSlot(id)
		require.NoError(t, err)
		require.True(t, acquired)
	}
	require.NoError(t, repo.MarkIdle("idle", "", time.Now()))

	// Age the stuck row past the cutoff. UpdateColumn skips gorm's
	// auto-timestamping, which would otherwise reset updated_at to now.
	old := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&domain.EmailSyncState{}).
		Where("integration_id = ?", "stuck").
		UpdateColumn("updated_at", old).Error)

	reclaimed, err := repo.ReclaimStuck(time.Now().Add(-15 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), reclaimed)

	stuck, err := repo.Find("stuck")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncError, stuck.Status)
	assert.Equal(t, reclaimedMessage, stuck.ErrorMessage)

	fresh, err := repo.Find("fresh")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncSyncing, fresh.Status)

	idle, err := repo.Find("idle")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncIdle, idle.Status)
}
