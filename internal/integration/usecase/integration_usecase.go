package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"daybrief-backend/internal/integration/domain"
	"daybrief-backend/internal/integration/repository"
	"daybrief-backend/pkg/config"
)

const (
	defaultCachedLimit = 20
	maxCachedLimit     = 100
)

// emailFilters maps the named filters the email endpoints accept to provider
// query fragments. The keys are the public contract; anything else is
// rejected before a provider call happens.
var emailFilters = map[string]string{
	"all":    "",
	"unread": "is:unread",
	"tasks":  "label:tasks",
}

// providerCatalog carries the display metadata for the available listing.
var providerCatalog = map[domain.ProviderType]ProviderInfo{
	domain.ProviderGmail: {
		ProviderType: domain.ProviderGmail,
		Name:         "Gmail",
		Description:  "Read, search and summarize your Gmail inbox",
	},
	domain.ProviderMicrosoft: {
		ProviderType: domain.ProviderMicrosoft,
		Name:         "Outlook Mail",
		Description:  "Read and search your Outlook inbox",
	},
}

type integrationUsecase struct {
	integrationRepo repository.IntegrationRepository
	messageRepo     repository.EmailMessageRepository
	syncStateRepo   repository.SyncStateRepository
	oauth           OAuthUsecase
	registry        *Registry
	syncRequester   SyncRequester
	indexer         EmailIndexer
	cfg             *config.Config
}

func NewIntegrationUsecase(
	integrationRepo repository.IntegrationRepository,
	messageRepo repository.EmailMessageRepository,
	syncStateRepo repository.SyncStateRepository,
	oauth OAuthUsecase,
	registry *Registry,
	syncRequester SyncRequester,
	indexer EmailIndexer,
	cfg *config.Config,
) IntegrationUsecase {
	return &integrationUsecase{
		integrationRepo: integrationRepo,
		messageRepo:     messageRepo,
		syncStateRepo:   syncStateRepo,
		oauth:           oauth,
		registry:        registry,
		syncRequester:   syncRequester,
		indexer:         indexer,
		cfg:             cfg,
	}
}

func (u *integrationUsecase) AvailableProviders() []ProviderInfo {
	providers := u.registry.Available()
	infos := make([]ProviderInfo, 0, len(providers))
	for _, provider := range providers {
		info, ok := providerCatalog[provider.Type()]
		if !ok {
			info = ProviderInfo{ProviderType: provider.Type(), Name: string(provider.Type())}
		}
		infos = append(infos, info)
	}
	return infos
}

func (u *integrationUsecase) ListForUser(userID string) ([]*domain.Integration, error) {
	return u.integrationRepo.FindByUser(userID)
}

func (u *integrationUsecase) GetForUser(userID, integrationID string) (*domain.Integration, error) {
	integration, err := u.integrationRepo.FindByUserAndID(userID, integrationID)
	if err != nil {
		return nil, err
	}
	if integration == nil {
		return nil, domain.ErrIntegrationNotFound
	}
	return integration, nil
}

// Update applies a status change and/or a shallow config merge. Only the
// active and disconnected statuses can be set from the outside; expired is
// reserved for the sync pipeline.
func (u *integrationUsecase) Update(userID, integrationID string, status *string, config map[string]interface{}) (*domain.Integration, error) {
	integration, err := u.GetForUser(userID, integrationID)
	if err != nil {
		return nil, err
	}

	if status != nil {
		next := domain.IntegrationStatus(*status)
		if next != domain.StatusActive && next != domain.StatusDisconnected {
			return nil, domain.ErrInvalidStatus
		}
		integration.Status = next
	}

	if len(config) > 0 {
		if integration.Config == nil {
			integration.Config = domain.JSONMap{}
		}
		for key, value := range config {
			if value == nil {
				continue
			}
			integration.Config[key] = value
		}
	}

	if err := u.integrationRepo.Update(integration); err != nil {
		return nil, err
	}
	return integration, nil
}

// Disconnect removes the integration and everything hanging off it. The
// vector index cleanup is best-effort; orphaned documents only cost storage.
func (u *integrationUsecase) Disconnect(ctx context.Context, userID, integrationID string) error {
	integration, err := u.GetForUser(userID, integrationID)
	if err != nil {
		return err
	}

	if err := u.integrationRepo.Delete(integration.ID); err != nil {
		return err
	}

	if u.indexer != nil {
		if err := u.indexer.DeleteByIntegration(ctx, integration.ID); err != nil {
			log.Printf("[Integration] Failed to drop index documents for %s: %v", integration.ID, err)
		}
	}

	log.Printf("[Integration] Disconnected integration %s for user %s", integration.ID, userID)
	return nil
}

func (u *integrationUsecase) Execute(ctx context.Context, userID, integrationID, action string, params map[string]interface{}) (interface{}, error) {
	integration, provider, err := u.activeProvider(userID, integrationID)
	if err != nil {
		return nil, err
	}

	accessToken, err := u.accessToken(ctx, integration)
	if err != nil {
		return nil, err
	}

	return provider.Execute(ctx, accessToken, action, params)
}

// ListEmails fetches one live page from the provider. Caller parameters win
// over stored config field by field; the named filter contributes a query
// fragment that prefixes any free-text query.
func (u *integrationUsecase) ListEmails(ctx context.Context, userID, integrationID string, query EmailQuery) (*EmailPage, error) {
	integration, provider, err := u.activeEmailProvider(userID, integrationID)
	if err != nil {
		return nil, err
	}

	params := fetchParamsFromConfig(integration.Config)
	if query.Query != nil {
		params.Query = *query.Query
	}
	if len(query.LabelIDs) > 0 {
		params.LabelIDs = query.LabelIDs
	}
	if query.MaxResults != nil && *query.MaxResults > 0 {
		params.MaxResults = *query.MaxResults
	}
	params.PageToken = query.PageToken

	if query.Filter != "" {
		filterQuery, known := emailFilters[query.Filter]
		if !known {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownFilter, query.Filter)
		}
		params.Query = joinQueries(filterQuery, params.Query)
	}

	accessToken, err := u.accessToken(ctx, integration)
	if err != nil {
		return nil, err
	}

	result, err := provider.FetchMessages(ctx, accessToken, params)
	if err != nil {
		if domain.IsAuthError(err) {
			u.markExpired(integration.ID)
			return nil, domain.ErrIntegrationExpired
		}
		return nil, err
	}

	page := &EmailPage{
		Items:         result.Messages,
		NextPageToken: result.NextPageToken,
	}
	if query.Summarize {
		page.Summaries = u.attachSummaries(integration.ID, result.Messages)
	}
	return page, nil
}

// ListCachedEmails reads the local cache. Reading works in any integration
// status; the stale-cache sync trigger only fires for active integrations.
func (u *integrationUsecase) ListCachedEmails(userID, integrationID string, query CachedQuery) (*CachedPage, error) {
	integration, err := u.GetForUser(userID, integrationID)
	if err != nil {
		return nil, err
	}
	if !integration.ProviderType.IsEmailProvider() {
		return nil, domain.ErrNotEmailProvider
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultCachedLimit
	}
	if limit > maxCachedLimit {
		limit = maxCachedLimit
	}
	offset := DecodePageOffset(query.PageToken)

	messages, total, err := u.messageRepo.ListCached(integration.ID, repository.CachedEmailFilter{
		Keyword: query.Keyword,
		Labels:  query.Labels,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		return nil, err
	}

	state, err := u.syncStateRepo.Find(integration.ID)
	if err != nil {
		return nil, err
	}

	page := &CachedPage{
		Items:     messages,
		Total:     total,
		SyncState: synthesizeState(integration.ID, state),
	}
	if offset+len(messages) < int(total) {
		page.NextPageToken = EncodePageOffset(offset + len(messages))
	}

	if integration.Status == domain.StatusActive && (query.Force || u.stale(state)) {
		page.SyncQueued = u.syncRequester.RequestSync(integration.ID)
	}
	return page, nil
}

func (u *integrationUsecase) SyncStatus(userID, integrationID string) (*domain.EmailSyncState, error) {
	integration, err := u.GetForUser(userID, integrationID)
	if err != nil {
		return nil, err
	}
	state, err := u.syncStateRepo.Find(integration.ID)
	if err != nil {
		return nil, err
	}
	return synthesizeState(integration.ID, state), nil
}

func (u *integrationUsecase) QueueSync(userID, integrationID string) (bool, error) {
	integration, err := u.GetForUser(userID, integrationID)
	if err != nil {
		return false, err
	}
	if integration.Status != domain.StatusActive {
		return false, domain.ErrIntegrationNotActive
	}
	return u.syncRequester.RequestSync(integration.ID), nil
}

// WatchMailbox registers the integration's mailbox for push notifications on
// the deployment's Pub/Sub topic.
func (u *integrationUsecase) WatchMailbox(ctx context.Context, userID, integrationID string) error {
	integration, provider, err := u.activeEmailProvider(userID, integrationID)
	if err != nil {
		return err
	}
	if u.cfg.GoogleProjectID == "" || u.cfg.GooglePubSubTopic == "" {
		return fmt.Errorf("push notifications are not configured")
	}

	accessToken, err := u.accessToken(ctx, integration)
	if err != nil {
		return err
	}

	topic := fmt.Sprintf("projects/%s/topics/%s", u.cfg.GoogleProjectID, u.cfg.GooglePubSubTopic)
	if err := provider.Watch(ctx, accessToken, topic); err != nil {
		if domain.IsAuthError(err) {
			u.markExpired(integration.ID)
			return domain.ErrIntegrationExpired
		}
		return err
	}

	log.Printf("[Integration] Watch registered for integration %s on %s", integration.ID, topic)
	return nil
}

// SemanticSearch answers a natural-language query from the vector index and
// hydrates the hits from the message cache, preserving the index's ranking.
func (u *integrationUsecase) SemanticSearch(ctx context.Context, userID, integrationID, query string, limit int) ([]*domain.EmailMessage, []float64, error) {
	if u.indexer == nil {
		return nil, nil, domain.ErrSearchUnavailable
	}
	integration, err := u.GetForUser(userID, integrationID)
	if err != nil {
		return nil, nil, err
	}

	ids, distances, err := u.indexer.SemanticSearch(ctx, integration.ID, query, limit)
	if err != nil {
		return nil, nil, err
	}
	if len(ids) == 0 {
		return nil, nil, nil
	}

	rows, err := u.messageRepo.FindByIDs(ids)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[string]*domain.EmailMessage, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	// Rows can lag behind the index when messages were deleted; drop holes
	// and keep distances aligned with the rows that survive.
	messages := make([]*domain.EmailMessage, 0, len(ids))
	kept := make([]float64, 0, len(ids))
	for i, id := range ids {
		row, ok := byID[id]
		if !ok {
			continue
		}
		messages = append(messages, row)
		if i < len(distances) {
			kept = append(kept, distances[i])
		}
	}
	return messages, kept, nil
}

// activeProvider resolves the integration for the user and its registered
// provider, enforcing the shared guard order: unknown, inactive,
// unimplemented.
func (u *integrationUsecase) activeProvider(userID, integrationID string) (*domain.Integration, Provider, error) {
	integration, err := u.GetForUser(userID, integrationID)
	if err != nil {
		return nil, nil, err
	}
	if integration.Status != domain.StatusActive {
		return nil, nil, domain.ErrIntegrationNotActive
	}
	provider, ok := u.registry.Get(integration.ProviderType)
	if !ok {
		return nil, nil, domain.ErrProviderNotImplemented
	}
	return integration, provider, nil
}

// activeEmailProvider additionally rejects integrations outside the email
// provider set before touching the registry.
func (u *integrationUsecase) activeEmailProvider(userID, integrationID string) (*domain.Integration, Provider, error) {
	integration, err := u.GetForUser(userID, integrationID)
	if err != nil {
		return nil, nil, err
	}
	if integration.Status != domain.StatusActive {
		return nil, nil, domain.ErrIntegrationNotActive
	}
	if !integration.ProviderType.IsEmailProvider() {
		return nil, nil, domain.ErrNotEmailProvider
	}
	provider, ok := u.registry.Get(integration.ProviderType)
	if !ok {
		return nil, nil, domain.ErrProviderNotImplemented
	}
	return integration, provider, nil
}

// accessToken fetches a usable token and translates credential failures into
// the expired contract: the integration flips to expired and the caller gets
// the reconnect error.
func (u *integrationUsecase) accessToken(ctx context.Context, integration *domain.Integration) (string, error) {
	accessToken, err := u.oauth.GetValidAccessToken(ctx, integration.ID)
	if err != nil {
		if domain.IsAuthError(err) {
			u.markExpired(integration.ID)
			return "", domain.ErrIntegrationExpired
		}
		return "", err
	}
	return accessToken, nil
}

func (u *integrationUsecase) markExpired(integrationID string) {
	if err := u.integrationRepo.UpdateStatus(integrationID, domain.StatusExpired); err != nil {
		log.Printf("[Integration] Failed to expire integration %s: %v", integrationID, err)
	}
}

// attachSummaries maps provider message IDs on the live page to stored
// summaries. Best-effort: a failed lookup just yields a page without them.
func (u *integrationUsecase) attachSummaries(integrationID string, messages []*ProviderMessage) map[string]*string {
	if len(messages) == 0 {
		return nil
	}
	ids := make([]string, 0, len(messages))
	for _, message := range messages {
		if message.ID != "" {
			ids = append(ids, message.ID)
		}
	}
	summaries, err := u.messageRepo.FindSummariesByProviderMessageIDs(integrationID, ids)
	if err != nil {
		log.Printf("[Integration] Failed to load summaries for %s: %v", integrationID, err)
		return nil
	}
	return summaries
}

// stale reports whether the cache is old enough to ask for a background
// refresh. A missing state or a state that never completed counts as stale.
func (u *integrationUsecase) stale(state *domain.EmailSyncState) bool {
	if state == nil || state.LastSyncedAt == nil {
		return true
	}
	return time.Since(*state.LastSyncedAt) > u.cfg.SyncStaleTTL
}

func synthesizeState(integrationID string, state *domain.EmailSyncState) *domain.EmailSyncState {
	if state != nil {
		return state
	}
	// No row yet means no sync has ever been attempted; report that as idle
	// rather than making callers handle absence.
	return &domain.EmailSyncState{
		IntegrationID: integrationID,
		Status:        domain.SyncIdle,
	}
}

func joinQueries(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, " ")
}
