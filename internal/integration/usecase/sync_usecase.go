package usecase

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"daybrief-backend/internal/integration/domain"
	"daybrief-backend/internal/integration/repository"
	"daybrief-backend/pkg/ai"
	"daybrief-backend/pkg/config"
)

// maxErrorLength bounds the error text recorded on a failed sync state.
const maxErrorLength = 500

// EmailIndexer maintains the semantic search index over cached messages.
// Every method is best-effort from the sync pipeline's point of view.
type EmailIndexer interface {
	UpsertEmailEmbedding(ctx context.Context, messageID, integrationID, subject, body string) error
	DeleteEmailEmbedding(ctx context.Context, messageID string) error
	DeleteByIntegration(ctx context.Context, integrationID string) error
	SemanticSearch(ctx context.Context, integrationID, query string, limit int) ([]string, []float64, error)
}

// SyncService drives background mailbox synchronization. Requests go through
// a bounded worker pool; each integration is additionally serialized by the
// persisted syncing flag, so two workers can never run the same integration
// at once even across processes.
type SyncService struct {
	integrationRepo repository.IntegrationRepository
	messageRepo     repository.EmailMessageRepository
	syncStateRepo   repository.SyncStateRepository
	oauth           OAuthUsecase
	registry        *Registry
	summarizer      ai.SummarizerService
	indexer         EmailIndexer
	notifier        Notifier
	cfg             *config.Config

	queue    chan string
	workerWg sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

func NewSyncService(
	integrationRepo repository.IntegrationRepository,
	messageRepo repository.EmailMessageRepository,
	syncStateRepo repository.SyncStateRepository,
	oauth OAuthUsecase,
	registry *Registry,
	summarizer ai.SummarizerService,
	indexer EmailIndexer,
	notifier Notifier,
	cfg *config.Config,
) *SyncService {
	workers := cfg.SyncWorkers
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.SyncQueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	return &SyncService{
		integrationRepo: integrationRepo,
		messageRepo:     messageRepo,
		syncStateRepo:   syncStateRepo,
		oauth:           oauth,
		registry:        registry,
		summarizer:      summarizer,
		indexer:         indexer,
		notifier:        notifier,
		cfg:             cfg,
		queue:           make(chan string, queueSize),
	}
}

// Start launches the worker pool.
func (s *SyncService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}

	workers := s.cfg.SyncWorkers
	if workers <= 0 {
		workers = 4
	}
	for i := 0; i < workers; i++ {
		s.workerWg.Add(1)
		go s.worker(i)
	}
	s.started = true
	log.Printf("[Sync] Started %d sync workers", workers)
}

// Stop drains the queue and waits for in-flight passes to finish.
func (s *SyncService) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.queue)
	s.workerWg.Wait()
	log.Println("[Sync] All sync workers stopped")
}

// RequestSync submits a sync for one integration without blocking the caller.
// Returns false when the queue is full and the request was dropped; dropped
// requests are safe to drop because syncs are periodic and best-effort.
func (s *SyncService) RequestSync(integrationID string) bool {
	select {
	case s.queue <- integrationID:
		return true
	default:
		log.Printf("[Sync] Queue full, dropping sync request for integration %s", integrationID)
		return false
	}
}

func (s *SyncService) worker(id int) {
	defer s.workerWg.Done()

	for integrationID := range s.queue {
		s.syncPass(integrationID)
	}

	log.Printf("[Sync] Worker %d stopped", id)
}

// syncPass runs one fetch-reconcile-finalize cycle for one integration. It
// never returns an error: background syncs record failures on the sync state
// and stop.
func (s *SyncService) syncPass(integrationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SyncTimeout)
	defer cancel()

	integration, err := s.integrationRepo.FindByID(integrationID)
	if err != nil {
		log.Printf("[Sync] Failed to load integration %s: %v", integrationID, err)
		return
	}
	// Disconnected or expired integrations are simply not synced.
	if integration == nil || integration.Status != domain.StatusActive {
		return
	}

	// The exclusivity gate: flip idle/error to syncing in the database. If
	// another pass holds the slot the request is dropped, not queued.
	acquired, err := s.syncStateRepo.AcquireSlot(integrationID)
	if err != nil {
		log.Printf("[Sync] Failed to acquire sync slot for %s: %v", integrationID, err)
		return
	}
	if !acquired {
		return
	}

	created, pageToken, err := s.runPass(ctx, integration)
	if err != nil {
		s.failPass(integration, err)
		return
	}

	if err := s.syncStateRepo.MarkIdle(integrationID, pageToken, time.Now()); err != nil {
		log.Printf("[Sync] Failed to finalize sync state for %s: %v", integrationID, err)
	}

	if created > 0 {
		s.notifyNewMail(integration, created)
	}

	// Backfill runs after the status transition and never gates on it.
	s.backfillSummaries(ctx, integrationID)
}

// runPass executes token -> fetch -> reconcile strictly in order and returns
// how many new messages appeared plus the provider cursor for the next page.
func (s *SyncService) runPass(ctx context.Context, integration *domain.Integration) (int, string, error) {
	provider, ok := s.registry.Get(integration.ProviderType)
	if !ok {
		return 0, "", fmt.Errorf("unknown provider: %s", integration.ProviderType)
	}

	accessToken, err := s.oauth.GetValidAccessToken(ctx, integration.ID)
	if err != nil {
		return 0, "", err
	}

	result, err := provider.FetchMessages(ctx, accessToken, fetchParamsFromConfig(integration.Config))
	if err != nil {
		return 0, "", err
	}

	created, _, err := s.reconcile(ctx, integration.ID, result.Messages)
	if err != nil {
		return 0, "", err
	}

	log.Printf("[Sync] Integration %s: fetched %d messages, %d new", integration.ID, len(result.Messages), created)
	return created, result.NextPageToken, nil
}

// failPass records the failure on the sync state. An auth-shaped failure also
// expires the integration itself: the credential is unusable, not just this
// attempt, and only a fresh consent can recover it.
func (s *SyncService) failPass(integration *domain.Integration, err error) {
	if domain.IsAuthError(err) {
		if updateErr := s.integrationRepo.UpdateStatus(integration.ID, domain.StatusExpired); updateErr != nil {
			log.Printf("[Sync] Failed to expire integration %s: %v", integration.ID, updateErr)
		}
	}
	if markErr := s.syncStateRepo.MarkError(integration.ID, truncateError(err)); markErr != nil {
		log.Printf("[Sync] Failed to record sync error for %s: %v", integration.ID, markErr)
	}
	log.Printf("[Sync] Sync failed for integration %s: %v", integration.ID, err)
}

func (s *SyncService) notifyNewMail(integration *domain.Integration, created int) {
	if s.notifier == nil {
		return
	}

	body := fmt.Sprintf("You have %d new emails", created)
	if created == 1 {
		body = "You have 1 new email"
	}
	if integration.AccountEmail != "" {
		body = fmt.Sprintf("%s in %s", body, integration.AccountEmail)
	}

	// Push delivery must never delay the pass.
	go s.notifier.NotifyUser(context.Background(), integration.UserID, "New mail", body, map[string]string{
		"type":           "email_sync",
		"integration_id": integration.ID,
	})
}

// fetchParamsFromConfig builds fetch parameters from the integration's stored
// config. Caller overrides are already merged into the config by the API
// layer before a sync is requested; the orchestrator only reads config.
func fetchParamsFromConfig(config domain.JSONMap) FetchParams {
	params := FetchParams{MaxResults: 20}
	if config == nil {
		return params
	}
	if query, ok := config["query"].(string); ok {
		params.Query = query
	}
	if labels := configStringSlice(config["label_ids"]); len(labels) > 0 {
		params.LabelIDs = labels
	}
	if n, ok := numberParam(config["max_results"]); ok && n > 0 {
		params.MaxResults = n
	}
	return params
}

func truncateError(err error) string {
	message := err.Error()
	if len(message) > maxErrorLength {
		message = message[:maxErrorLength]
	}
	return message
}
