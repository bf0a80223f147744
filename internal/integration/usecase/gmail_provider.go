package usecase

import (
	"context"
	"fmt"

	"daybrief-backend/internal/integration/domain"
	"daybrief-backend/pkg/gmail"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// gmailOAuthScopes limits access to read-only mail.
var gmailOAuthScopes = []string{"https://www.googleapis.com/auth/gmail.readonly"}

// defaultExecuteResults caps list-style execute actions when the caller does
// not pass max_results.
const defaultExecuteResults = 10

// gmailProvider adapts the Gmail REST client to the Provider interface.
type gmailProvider struct {
	clientID     string
	clientSecret string
	enabled      bool
	service      *gmail.Service
}

func NewGmailProvider(clientID, clientSecret string, enabled bool, service *gmail.Service) Provider {
	return &gmailProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		enabled:      enabled,
		service:      service,
	}
}

func (p *gmailProvider) Type() domain.ProviderType {
	return domain.ProviderGmail
}

func (p *gmailProvider) Configured() bool {
	return p.enabled && p.clientID != "" && p.clientSecret != ""
}

func (p *gmailProvider) OAuthConfig(callbackURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  callbackURL,
		Scopes:       gmailOAuthScopes,
	}
}

// AuthCodeOptions requests offline access so a refresh token is issued, and
// forces the consent prompt so reconnects get one as well.
func (p *gmailProvider) AuthCodeOptions() []oauth2.AuthCodeOption {
	return []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	}
}

func (p *gmailProvider) Profile(ctx context.Context, accessToken string) (string, error) {
	profile, err := p.service.GetProfile(ctx, accessToken)
	if err != nil {
		return "", err
	}
	return profile.EmailAddress, nil
}

func (p *gmailProvider) FetchMessages(ctx context.Context, accessToken string, params FetchParams) (*FetchResult, error) {
	page, err := p.service.ListMessagesPage(ctx, accessToken, gmail.ListParams{
		Query:      params.Query,
		LabelIDs:   params.LabelIDs,
		MaxResults: params.MaxResults,
		PageToken:  params.PageToken,
	})
	if err != nil {
		return nil, err
	}

	messages := make([]*ProviderMessage, 0, len(page.Messages))
	for _, msg := range page.Messages {
		messages = append(messages, providerMessage(msg))
	}
	return &FetchResult{
		Messages:      messages,
		NextPageToken: page.NextPageToken,
	}, nil
}

func (p *gmailProvider) Execute(ctx context.Context, accessToken, action string, params map[string]interface{}) (interface{}, error) {
	switch action {
	case "list_emails", "search":
		return p.executeList(ctx, accessToken, params)
	case "get_email":
		messageID, _ := params["message_id"].(string)
		if messageID == "" {
			return nil, fmt.Errorf("message_id is required")
		}
		msg, err := p.service.GetMessage(ctx, accessToken, messageID)
		if err != nil {
			return nil, err
		}
		return providerMessage(msg), nil
	case "get_threads":
		threadID, _ := params["thread_id"].(string)
		if threadID == "" {
			return nil, fmt.Errorf("thread_id is required")
		}
		return p.service.GetThread(ctx, accessToken, threadID)
	default:
		return nil, fmt.Errorf("unknown action: %s", action)
	}
}

func (p *gmailProvider) executeList(ctx context.Context, accessToken string, params map[string]interface{}) (interface{}, error) {
	fetch := FetchParams{MaxResults: defaultExecuteResults}
	if query, ok := params["query"].(string); ok {
		fetch.Query = query
	}
	if n, ok := numberParam(params["max_results"]); ok {
		fetch.MaxResults = n
	}

	result, err := p.FetchMessages(ctx, accessToken, fetch)
	if err != nil {
		return nil, err
	}
	return result.Messages, nil
}

func (p *gmailProvider) Watch(ctx context.Context, accessToken, topic string) error {
	return p.service.Watch(ctx, accessToken, topic)
}

func providerMessage(msg *gmail.Message) *ProviderMessage {
	return &ProviderMessage{
		ID:       msg.ID,
		ThreadID: msg.ThreadID,
		Subject:  msg.Subject,
		From:     msg.From,
		To:       msg.To,
		Date:     msg.Date,
		Snippet:  msg.Snippet,
		Body:     msg.Body,
		Labels:   msg.Labels,
	}
}
