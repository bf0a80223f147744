package scheduler

import (
	"log"
	"time"

	"daybrief-backend/internal/integration/domain"
	"daybrief-backend/internal/integration/repository"
	"daybrief-backend/internal/integration/usecase"
	"daybrief-backend/pkg/config"
)

// SyncScheduler keeps the mailbox cache moving without user traffic. Every
// interval it requests syncs for stale integrations, reclaims passes whose
// worker died mid-flight, and reaps expired OAuth state records.
type SyncScheduler struct {
	integrationRepo repository.IntegrationRepository
	syncStateRepo   repository.SyncStateRepository
	oauthStateRepo  repository.OAuthStateRepository
	requester       usecase.SyncRequester
	cfg             *config.Config
	stopChan        chan struct{}
}

func NewSyncScheduler(
	integrationRepo repository.IntegrationRepository,
	syncStateRepo repository.SyncStateRepository,
	oauthStateRepo repository.OAuthStateRepository,
	requester usecase.SyncRequester,
	cfg *config.Config,
) *SyncScheduler {
	return &SyncScheduler{
		integrationRepo: integrationRepo,
		syncStateRepo:   syncStateRepo,
		oauthStateRepo:  oauthStateRepo,
		requester:       requester,
		cfg:             cfg,
		stopChan:        make(chan struct{}),
	}
}

// Start begins the scheduler loop
func (s *SyncScheduler) Start() {
	log.Printf("[SyncScheduler] Starting background sync scheduler (interval: %s)", s.cfg.SyncInterval)

	go func() {
		// Run immediately on start
		s.sweep()

		ticker := time.NewTicker(s.cfg.SyncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopChan:
				log.Println("[SyncScheduler] Scheduler stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the scheduler
func (s *SyncScheduler) Stop() {
	close(s.stopChan)
}

func (s *SyncScheduler) sweep() {
	now := time.Now()
	s.reclaimStuck(now)
	s.reapExpiredStates(now)
	s.requestStaleSyncs(now)
}

// reclaimStuck resets syncing rows that have not moved since the cutoff. A
// pass that long-running is a worker that died before its terminal
// transition; resetting frees the slot for the next request.
func (s *SyncScheduler) reclaimStuck(now time.Time) {
	reclaimed, err := s.syncStateRepo.ReclaimStuck(now.Add(-s.cfg.SyncStuckAfter))
	if err != nil {
		log.Printf("[SyncScheduler] Error reclaiming stuck syncs: %v", err)
		return
	}
	if reclaimed > 0 {
		log.Printf("[SyncScheduler] Reclaimed %d stuck sync states", reclaimed)
	}
}

func (s *SyncScheduler) reapExpiredStates(now time.Time) {
	reaped, err := s.oauthStateRepo.DeleteExpired(now)
	if err != nil {
		log.Printf("[SyncScheduler] Error reaping expired OAuth states: %v", err)
		return
	}
	if reaped > 0 {
		log.Printf("[SyncScheduler] Reaped %d expired OAuth states", reaped)
	}
}

func (s *SyncScheduler) requestStaleSyncs(now time.Time) {
	integrations, err := s.integrationRepo.FindStale(domain.ProviderGmail, now.Add(-s.cfg.SyncStaleTTL))
	if err != nil {
		log.Printf("[SyncScheduler] Error finding stale integrations: %v", err)
		return
	}
	if len(integrations) == 0 {
		return
	}

	queued := 0
	for _, integration := range integrations {
		if s.requester.RequestSync(integration.ID) {
			queued++
		}
	}
	log.Printf("[SyncScheduler] Queued %d of %d stale integrations for sync", queued, len(integrations))
}
