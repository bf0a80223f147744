package scheduler

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"daybrief-backend/internal/integration/domain"
	"daybrief-backend/internal/integration/repository"
	"daybrief-backend/pkg/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordingRequester struct {
	mu       sync.Mutex
	requests []string
}

func (r *recordingRequester) RequestSync(integrationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, integrationID)
	return true
}

func (r *recordingRequester) requested() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.requests))
	copy(out, r.requests)
	return out
}

type schedulerHarness struct {
	db        *gorm.DB
	scheduler *SyncScheduler
	requester *recordingRequester
	stateRepo repository.SyncStateRepository
	oauthRepo repository.OAuthStateRepository
}

func newSchedulerHarness(t *testing.T) *schedulerHarness {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Integration{},
		&domain.OAuthState{},
		&domain.EmailSyncState{},
	))

	cfg := &config.Config{
		SyncInterval:   time.Minute,
		SyncStaleTTL:   5 * time.Minute,
		SyncStuckAfter: 15 * time.Minute,
	}
	requester := &recordingRequester{}
	integRepo := repository.NewIntegrationRepository(db)
	stateRepo := repository.NewSyncStateRepository(db)
	oauthRepo := repository.NewOAuthStateRepository(db)

	return &schedulerHarness{
		db:        db,
		scheduler: NewSyncScheduler(integRepo, stateRepo, oauthRepo, requester, cfg),
		requester: requester,
		stateRepo: stateRepo,
		oauthRepo: oauthRepo,
	}
}

func seedIntegration(t *testing.T, db *gorm.DB, status domain.IntegrationStatus) *domain.Integration {
	t.Helper()

	integration := &domain.Integration{
		ID:           uuid.New().String(),
		UserID:       "user-1",
		ProviderType: domain.ProviderGmail,
		Status:       status,
		Config:       domain.JSONMap{},
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	require.NoError(t, db.Create(integration).Error)
	return integration
}

func TestSweepRequestsStaleSyncs(t *testing.T) {
	h := newSchedulerHarness(t)

	neverSynced := seedIntegration(t, h.db, domain.StatusActive)
	fresh := seedIntegration(t, h.db, domain.StatusActive)
	seedIntegration(t, h.db, domain.StatusDisconnected)

	acquired, err := h.stateRepo.AcquireSlot(fresh.ID)
	require.NoError(t, err)
	require.True(t, acquired)
	require.NoError(t, h.stateRepo.MarkIdle(fresh.ID, "", time.Now()))

	h.scheduler.sweep()

	assert.Equal(t, []string{neverSynced.ID}, h.requester.requested())
}

func TestSweepReclaimsStuckPasses(t *testing.T) {
	h := newSchedulerHarness(t)
	integration := seedIntegration(t, h.db, domain.StatusActive)

	acquired, err := h.stateRepo.AcquireSlot(integration.ID)
	require.NoError(t, err)
	require.True(t, acquired)

	// Age the held slot past the stuck cutoff; UpdateColumn bypasses gorm's
	// auto-timestamping.
	require.NoError(t, h.db.Model(&domain.EmailSyncState{}).
		Where("integration_id = ?", integration.ID).
		UpdateColumn("updated_at", time.Now().Add(-time.Hour)).Error)

	h.scheduler.sweep()

	state, err := h.stateRepo.Find(integration.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncError, state.Status)

	// The reclaimed integration has no last_synced_at, so the same sweep
	// already queued it for another attempt.
	assert.Contains(t, h.requester.requested(), integration.ID)
}

func TestSweepReapsExpiredOAuthStates(t *testing.T) {
	h := newSchedulerHarness(t)

	require.NoError(t, h.oauthRepo.Replace(&domain.OAuthState{
		State:        "expired",
		UserID:       "user-1",
		ProviderType: domain.ProviderGmail,
		ExpiresAt:    time.Now().Add(-time.Minute),
	}))
	require.NoError(t, h.oauthRepo.Replace(&domain.OAuthState{
		State:        "live",
		UserID:       "user-2",
		ProviderType: domain.ProviderGmail,
		ExpiresAt:    time.Now().Add(10 * time.Minute),
	}))

	h.scheduler.sweep()

	gone, err := h.oauthRepo.FindByState("expired")
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := h.oauthRepo.FindByState("live")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestSchedulerStartStop(t *testing.T) {
	h := newSchedulerHarness(t)
	integration := seedIntegration(t, h.db, domain.StatusActive)

	h.scheduler.Start()
	defer h.scheduler.Stop()

	// The initial sweep runs on start, before the first tick.
	deadline := time.After(2 * time.Second)
	for {
		if len(h.requester.requested()) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("initial sweep never requested a sync")
		case <-time.After(10 * time.Millisecond):
		}
	}
	assert.Equal(t, []string{integration.ID}, h.requester.requested())
}
