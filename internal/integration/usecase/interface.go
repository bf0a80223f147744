package usecase

import (
	"context"

	"daybrief-backend/internal/integration/domain"
)

// OAuthUsecase drives the three-step credential lifecycle: start consent,
// complete the callback, and hand out usable access tokens afterwards.
type OAuthUsecase interface {
	// BeginAuthorization stores an anti-CSRF state record and returns the
	// provider consent URL plus the state it embeds.
	BeginAuthorization(ctx context.Context, userID string, providerType domain.ProviderType, redirectURI string) (authURL string, state string, err error)
	// CompleteAuthorization consumes the callback code+state, persists the
	// integration and its encrypted tokens, and returns the integration with
	// the frontend redirect URI captured at the start of the flow.
	CompleteAuthorization(ctx context.Context, code, state string) (*domain.Integration, string, error)
	// GetValidAccessToken returns a decrypted access token, refreshing it
	// first when it is at or past the expiry buffer.
	GetValidAccessToken(ctx context.Context, integrationID string) (string, error)
}

// SyncRequester submits background sync work without blocking. False means
// the queue was full and the request was dropped.
type SyncRequester interface {
	RequestSync(integrationID string) bool
}

// Notifier pushes a notification to every registered device of a user.
// Implementations must not block the caller on delivery failures.
type Notifier interface {
	NotifyUser(ctx context.Context, userID, title, body string, data map[string]string)
}

// ProviderInfo describes one connectable provider for the available listing.
type ProviderInfo struct {
	ProviderType domain.ProviderType
	Name         string
	Description  string
}

// EmailQuery narrows a live provider listing. Nil pointer fields mean the
// caller did not send the parameter and the stored config value applies.
type EmailQuery struct {
	Query      *string
	Filter     string
	LabelIDs   []string
	MaxResults *int64
	PageToken  string
	Summarize  bool
}

// EmailPage is one live provider page. Summaries maps provider message IDs
// to cached summaries for the rows the sync pipeline has already processed.
type EmailPage struct {
	Items         []*ProviderMessage
	Summaries     map[string]*string
	NextPageToken string
}

// CachedQuery narrows a read of the local message cache.
type CachedQuery struct {
	Keyword   string
	Labels    []string
	Limit     int
	PageToken string
	Force     bool
}

// CachedPage is one page of cached messages plus the sync state that tells
// the caller how fresh the cache is.
type CachedPage struct {
	Items         []*domain.EmailMessage
	NextPageToken string
	Total         int64
	SyncState     *domain.EmailSyncState
	SyncQueued    bool
}

// IntegrationUsecase covers every integration operation the API surface
// exposes. All lookups are scoped to the requesting user.
type IntegrationUsecase interface {
	AvailableProviders() []ProviderInfo
	ListForUser(userID string) ([]*domain.Integration, error)
	GetForUser(userID, integrationID string) (*domain.Integration, error)
	Update(userID, integrationID string, status *string, config map[string]interface{}) (*domain.Integration, error)
	Disconnect(ctx context.Context, userID, integrationID string) error
	Execute(ctx context.Context, userID, integrationID, action string, params map[string]interface{}) (interface{}, error)
	ListEmails(ctx context.Context, userID, integrationID string, query EmailQuery) (*EmailPage, error)
	ListCachedEmails(userID, integrationID string, query CachedQuery) (*CachedPage, error)
	SyncStatus(userID, integrationID string) (*domain.EmailSyncState, error)
	QueueSync(userID, integrationID string) (bool, error)
	WatchMailbox(ctx context.Context, userID, integrationID string) error
	SemanticSearch(ctx context.Context, userID, integrationID, query string, limit int) ([]*domain.EmailMessage, []float64, error)
}
