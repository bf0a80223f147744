package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"daybrief-backend/internal/integration/domain"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	defaultPageSize = 20
	maxPageSize     = 500 // Gmail API maximum
	fetchParallel   = 10
)

// Message is a provider message flattened to the fields the message store
// keeps. Body is the decoded text part, Date the raw RFC 2822 header value.
type Message struct {
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

// MessagePage is one page of normalized messages plus the provider's cursor.
type MessagePage struct {
	Messages      []*Message
	NextPageToken string
	SizeEstimate  int64
}

// ListParams narrows a message or thread listing.
type ListParams struct {
	Query      string
	LabelIDs   []string
	MaxResults int64
	PageToken  string
}

// Thread is one conversation with every message hydrated.
type Thread struct {
	ID        string     `json:"id"`
	HistoryID uint64     `json:"history_id"`
	Messages  []*Message `json:"messages"`
}

type Profile struct {
	EmailAddress  string
	MessagesTotal int64
	HistoryID     uint64
}

// Service wraps the Gmail REST API. Callers pass a ready access token on
// every call; refresh lives upstream where the stored credentials are.
type Service struct {
	base *http.Client
}

// NewService creates a Gmail client. baseClient carries the shared timeout
// and retry transport; nil falls back to http.DefaultClient.
func NewService(baseClient *http.Client) *Service {
	return &Service{
		base: baseClient,
	}
}

func (s *Service) api(ctx context.Context, accessToken string) (*gmail.Service, error) {
	if s.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.base)
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	})
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, src)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %v", err)
	}
	return srv, nil
}

// ListMessagesPage fetches one page of message IDs and hydrates each one with
// a format=full get. Messages come back in the API's listing order.
func (s *Service) ListMessagesPage(ctx context.Context, accessToken string, params ListParams) (*MessagePage, error) {
	srv, err := s.api(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	user := "me"
	call := srv.Users.Messages.List(user).Context(ctx)
	if params.Query != "" {
		call = call.Q(params.Query)
	}
	if len(params.LabelIDs) > 0 {
		call = call.LabelIds(params.LabelIDs...)
	}
	call = call.MaxResults(pageSize(params.MaxResults))
	if params.PageToken != "" {
		call = call.PageToken(params.PageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, wrapAPIError("list messages", err)
	}

	page := &MessagePage{
		Messages:      make([]*Message, len(resp.Messages)),
		NextPageToken: resp.NextPageToken,
		SizeEstimate:  resp.ResultSizeEstimate,
	}

	// Hydrate in parallel but keep the listing order by index.
	semaphore := make(chan struct{}, fetchParallel)
	fetchErrs := make([]error, len(resp.Messages))
	var wg sync.WaitGroup

	for i, msg := range resp.Messages {
		wg.Add(1)
		go func(idx int, msgID string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			fullMsg, err := srv.Users.Messages.Get(user, msgID).Format("full").Context(ctx).Do()
			if err != nil {
				fetchErrs[idx] = wrapAPIError("get message "+msgID, err)
				return
			}
			page.Messages[idx] = normalizeMessage(fullMsg)
		}(i, msg.Id)
	}
	wg.Wait()

	for _, err := range fetchErrs {
		if err != nil {
			return nil, err
		}
	}

	return page, nil
}

// GetMessage retrieves a single message with its full payload.
func (s *Service) GetMessage(ctx context.Context, accessToken, messageID string) (*Message, error) {
	srv, err := s.api(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	msg, err := srv.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("get message "+messageID, err)
	}
	return normalizeMessage(msg), nil
}

// GetThread retrieves one conversation thread with full message payloads.
func (s *Service) GetThread(ctx context.Context, accessToken, threadID string) (*Thread, error) {
	srv, err := s.api(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	resp, err := srv.Users.Threads.Get("me", threadID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("get thread "+threadID, err)
	}

	thread := &Thread{
		ID:        resp.Id,
		HistoryID: resp.HistoryId,
		Messages:  make([]*Message, 0, len(resp.Messages)),
	}
	for _, msg := range resp.Messages {
		thread.Messages = append(thread.Messages, normalizeMessage(msg))
	}
	return thread, nil
}

// GetProfile returns the mailbox profile of the token's account.
func (s *Service) GetProfile(ctx context.Context, accessToken string) (*Profile, error) {
	srv, err := s.api(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	resp, err := srv.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("get profile", err)
	}
	return &Profile{
		EmailAddress:  resp.EmailAddress,
		MessagesTotal: resp.MessagesTotal,
		HistoryID:     resp.HistoryId,
	}, nil
}

// Watch sets up push notifications for the user's mailbox
func (s *Service) Watch(ctx context.Context, accessToken, topicName string) error {
	srv, err := s.api(ctx, accessToken)
	if err != nil {
		return err
	}

	// Gmail allows a single push client per user; clear an existing watch
	// first so re-registration does not fail.
	_ = srv.Users.Stop("me").Context(ctx).Do()

	req := &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{"INBOX"},
	}

	log.Printf("[Gmail] Starting watch on topic: %s", topicName)
	resp, err := srv.Users.Watch("me", req).Context(ctx).Do()
	if err != nil {
		return wrapAPIError("watch mailbox", err)
	}
	log.Printf("[Gmail] Watch registered. Expiration: %d, HistoryId: %d", resp.Expiration, resp.HistoryId)

	return nil
}

// Stop stops push notifications for the user's mailbox
func (s *Service) Stop(ctx context.Context, accessToken string) error {
	srv, err := s.api(ctx, accessToken)
	if err != nil {
		return err
	}

	if err := srv.Users.Stop("me").Context(ctx).Do(); err != nil {
		return wrapAPIError("stop mailbox watch", err)
	}
	return nil
}

func pageSize(requested int64) int64 {
	if requested <= 0 {
		return defaultPageSize
	}
	if requested > maxPageSize {
		return maxPageSize
	}
	return requested
}

func wrapAPIError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &domain.ProviderError{Op: op, StatusCode: apiErr.Code, Err: err}
	}
	return &domain.ProviderError{Op: op, Err: err}
}

// Helper functions

func normalizeMessage(msg *gmail.Message) *Message {
	headers := headerMap(msg.Payload)
	return &Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Subject:  headers["subject"],
		From:     headers["from"],
		To:       headers["to"],
		Date:     headers["date"],
		Snippet:  msg.Snippet,
		Body:     extractBody(msg.Payload),
		Labels:   msg.LabelIds,
	}
}

func headerMap(payload *gmail.MessagePart) map[string]string {
	headers := make(map[string]string)
	if payload == nil {
		return headers
	}
	for _, h := range payload.Headers {
		headers[strings.ToLower(h.Name)] = h.Value
	}
	return headers
}

// extractBody walks the part tree and returns the decoded text body,
// preferring text/plain over text/html. A part that fails to decode
// contributes nothing; the page is never aborted over one bad part.
func extractBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}

	// Single-part messages carry the body directly.
	if payload.Body != nil && payload.Body.Data != "" {
		return decodeBody(payload.Body.Data)
	}

	var plainBody string
	var htmlBody string

	var findBody func(parts []*gmail.MessagePart)
	findBody = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Body != nil && part.Body.Data != "" {
				switch part.MimeType {
				case "text/plain":
					if plainBody == "" {
						plainBody = decodeBody(part.Body.Data)
					}
				case "text/html":
					if htmlBody == "" {
						htmlBody = decodeBody(part.Body.Data)
					}
				}
			}
			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}
	findBody(payload.Parts)

	if plainBody != "" {
		return plainBody
	}
	return htmlBody
}

func decodeBody(data string) string {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(data)
	}
	if err != nil {
		return ""
	}
	return string(decoded)
}
