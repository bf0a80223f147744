package usecase

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"daybrief-backend/internal/integration/domain"
	"daybrief-backend/internal/integration/repository"
	"daybrief-backend/pkg/ai"
	"daybrief-backend/pkg/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a throwaway file-backed sqlite database. A file, not
// :memory:, because gorm pools connections and each in-memory connection
// would see its own empty database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&domain.Integration{},
		&domain.IntegrationToken{},
		&domain.OAuthState{},
		&domain.EmailMessage{},
		&domain.EmailSyncState{},
	))
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		OAuthCallbackURL:   "http://localhost:8080/api/integrations/callback",
		SyncWorkers:        1,
		SyncQueueSize:      8,
		SyncTimeout:        5 * time.Second,
		SyncStaleTTL:       5 * time.Minute,
		SyncStuckAfter:     15 * time.Minute,
		SyncInterval:       10 * time.Minute,
		SummaryBatchSize:   50,
		SummaryConcurrency: 2,
	}
}

func seedIntegration(t *testing.T, db *gorm.DB, userID string, status domain.IntegrationStatus) *domain.Integration {
	t.Helper()

	integration := &domain.Integration{
		ID:           uuid.New().String(),
		UserID:       userID,
		ProviderType: domain.ProviderGmail,
		Status:       status,
		AccountEmail: "owner@example.com",
		Config:       domain.JSONMap{},
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	require.NoError(t, db.Create(integration).Error)
	return integration
}

// fakeProvider is a scriptable Provider. Fields left nil fall back to benign
// defaults.
type fakeProvider struct {
	providerType domain.ProviderType
	fetchResult  *FetchResult
	fetchErr     error
	profileEmail string
	tokenURL     string
	authURL      string

	mu          sync.Mutex
	fetchCalls  int
	lastFetch   FetchParams
	watchTopics []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		providerType: domain.ProviderGmail,
		profileEmail: "owner@example.com",
		fetchResult:  &FetchResult{},
	}
}

func (p *fakeProvider) Type() domain.ProviderType {
	if p.providerType == "" {
		return domain.ProviderGmail
	}
	return p.providerType
}

func (p *fakeProvider) Configured() bool { return true }

func (p *fakeProvider) OAuthConfig(callbackURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  callbackURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.authURL,
			TokenURL: p.tokenURL,
		},
		Scopes: []string{"scope-a"},
	}
}

func (p *fakeProvider) AuthCodeOptions() []oauth2.AuthCodeOption {
	return []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
}

func (p *fakeProvider) Profile(ctx context.Context, accessToken string) (string, error) {
	return p.profileEmail, nil
}

func (p *fakeProvider) FetchMessages(ctx context.Context, accessToken string, params FetchParams) (*FetchResult, error) {
	p.mu.Lock()
	p.fetchCalls++
	p.lastFetch = params
	p.mu.Unlock()

	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	return p.fetchResult, nil
}

func (p *fakeProvider) Execute(ctx context.Context, accessToken, action string, params map[string]interface{}) (interface{}, error) {
	return map[string]string{"action": action}, nil
}

func (p *fakeProvider) Watch(ctx context.Context, accessToken, topic string) error {
	p.mu.Lock()
	p.watchTopics = append(p.watchTopics, topic)
	p.mu.Unlock()
	return nil
}

func (p *fakeProvider) fetchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetchCalls
}

func (p *fakeProvider) lastParams() FetchParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastFetch
}

// fakeOAuth hands out a fixed access token or a scripted error.
type fakeOAuth struct {
	token string
	err   error
}

func (f *fakeOAuth) BeginAuthorization(ctx context.Context, userID string, providerType domain.ProviderType, redirectURI string) (string, string, error) {
	return "http://auth.example.com", "state", nil
}

func (f *fakeOAuth) CompleteAuthorization(ctx context.Context, code, state string) (*domain.Integration, string, error) {
	return nil, "", nil
}

func (f *fakeOAuth) GetValidAccessToken(ctx context.Context, integrationID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.token == "" {
		return "test-access-token", nil
	}
	return f.token, nil
}

// fakeSummarizer answers with a deterministic summary and records its inputs.
type fakeSummarizer struct {
	mu      sync.Mutex
	inputs  []string
	failFor map[string]bool
	emptied map[string]bool
}

func newFakeSummarizer() *fakeSummarizer {
	return &fakeSummarizer{
		failFor: make(map[string]bool),
		emptied: make(map[string]bool),
	}
}

func (f *fakeSummarizer) SummarizeEmail(ctx context.Context, email ai.EmailInput) (string, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, email.Body)
	f.mu.Unlock()

	if f.failFor[email.Subject] {
		return "", context.DeadlineExceeded
	}
	if f.emptied[email.Subject] {
		return "", nil
	}
	return "Summary of " + email.Subject, nil
}

func (f *fakeSummarizer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func (f *fakeSummarizer) bodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.inputs))
	copy(out, f.inputs)
	return out
}

// fakeIndexer records vector index writes.
type fakeIndexer struct {
	mu        sync.Mutex
	upserts   []string
	searchIDs []string
	distances []float64
	searchErr error
}

func (f *fakeIndexer) UpsertEmailEmbedding(ctx context.Context, messageID, integrationID, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, messageID)
	return nil
}

func (f *fakeIndexer) DeleteEmailEmbedding(ctx context.Context, messageID string) error { return nil }

func (f *fakeIndexer) DeleteByIntegration(ctx context.Context, integrationID string) error {
	return nil
}

func (f *fakeIndexer) SemanticSearch(ctx context.Context, integrationID, query string, limit int) ([]string, []float64, error) {
	if f.searchErr != nil {
		return nil, nil, f.searchErr
	}
	return f.searchIDs, f.distances, nil
}

func (f *fakeIndexer) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

// fakeRequester records sync requests and answers with a fixed verdict.
type fakeRequester struct {
	mu       sync.Mutex
	accept   bool
	requests []string
}

func (f *fakeRequester) RequestSync(integrationID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, integrationID)
	return f.accept
}

func (f *fakeRequester) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	copy(out, f.requests)
	return out
}

// syncHarness bundles a SyncService with its backing repositories.
type syncHarness struct {
	db          *gorm.DB
	service     *SyncService
	provider    *fakeProvider
	oauth       *fakeOAuth
	summarizer  *fakeSummarizer
	indexer     *fakeIndexer
	integRepo   repository.IntegrationRepository
	messageRepo repository.EmailMessageRepository
	stateRepo   repository.SyncStateRepository
	cfg         *config.Config
}

func newSyncHarness(t *testing.T) *syncHarness {
	t.Helper()

	db := newTestDB(t)
	cfg := testConfig()
	provider := newFakeProvider()
	registry := NewRegistry()
	registry.Register(provider)

	oauth := &fakeOAuth{}
	summarizer := newFakeSummarizer()
	indexer := &fakeIndexer{}

	integRepo := repository.NewIntegrationRepository(db)
	messageRepo := repository.NewEmailMessageRepository(db)
	stateRepo := repository.NewSyncStateRepository(db)

	service := NewSyncService(integRepo, messageRepo, stateRepo, oauth, registry, summarizer, indexer, nil, cfg)

	return &syncHarness{
		db:          db,
		service:     service,
		provider:    provider,
		oauth:       oauth,
		summarizer:  summarizer,
		indexer:     indexer,
		integRepo:   integRepo,
		messageRepo: messageRepo,
		stateRepo:   stateRepo,
		cfg:         cfg,
	}
}
