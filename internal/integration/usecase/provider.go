package usecase

import (
	"context"

	"daybrief-backend/internal/integration/domain"

	"golang.org/x/oauth2"
)

// ProviderMessage is one provider email reduced to the normalized shape the
// message cache stores. Date carries the raw RFC 2822 header value.
type ProviderMessage struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"thread_id"`
	Subject  string   `json:"subject"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Date     string   `json:"date"`
	Snippet  string   `json:"snippet"`
	Body     string   `json:"body"`
	Labels   []string `json:"labels"`
}

// FetchParams narrows one page fetch. Zero MaxResults lets the provider
// apply its own default.
type FetchParams struct {
	Query      string
	LabelIDs   []string
	MaxResults int64
	PageToken  string
}

// FetchResult is one fetched page plus the provider cursor for the next.
type FetchResult struct {
	Messages      []*ProviderMessage
	NextPageToken string
}

// Provider is one connectable external service. Data methods take a ready
// access token on every call; credential storage and refresh stay with the
// OAuth flow.
type Provider interface {
	Type() domain.ProviderType
	// Configured reports whether the deployment carries credentials for this
	// provider. Unconfigured providers are hidden from the available listing.
	Configured() bool
	// OAuthConfig returns the provider's OAuth2 client bound to the backend
	// callback URL.
	OAuthConfig(callbackURL string) *oauth2.Config
	// AuthCodeOptions are the extra authorization-URL parameters the provider
	// needs (offline access, consent prompts).
	AuthCodeOptions() []oauth2.AuthCodeOption
	// Profile resolves the address of the account the token belongs to.
	Profile(ctx context.Context, accessToken string) (string, error)
	FetchMessages(ctx context.Context, accessToken string, params FetchParams) (*FetchResult, error)
	// Execute runs one named provider action with free-form parameters.
	Execute(ctx context.Context, accessToken, action string, params map[string]interface{}) (interface{}, error)
	// Watch subscribes the account's mailbox to the given push topic.
	Watch(ctx context.Context, accessToken, topic string) error
}

// Registry is the closed set of providers, assembled once at startup.
type Registry struct {
	providers map[domain.ProviderType]Provider
	order     []domain.ProviderType
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[domain.ProviderType]Provider),
	}
}

func (r *Registry) Register(provider Provider) {
	if _, exists := r.providers[provider.Type()]; !exists {
		r.order = append(r.order, provider.Type())
	}
	r.providers[provider.Type()] = provider
}

func (r *Registry) Get(providerType domain.ProviderType) (Provider, bool) {
	provider, ok := r.providers[providerType]
	return provider, ok
}

// Available returns the registered providers that are configured, in
// registration order.
func (r *Registry) Available() []Provider {
	available := make([]Provider, 0, len(r.order))
	for _, providerType := range r.order {
		provider := r.providers[providerType]
		if provider.Configured() {
			available = append(available, provider)
		}
	}
	return available
}

// numberParam reads a numeric parameter that may arrive as a JSON float or a
// native int.
func numberParam(value interface{}) (int64, bool) {
	switch n := value.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

// configStringSlice reads a string list out of a decoded JSON config value.
func configStringSlice(value interface{}) []string {
	switch values := value.(type) {
	case []string:
		return values
	case []interface{}:
		out := make([]string, 0, len(values))
		for _, item := range values {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
