package delivery

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"daybrief-backend/internal/integration/domain"
	integrationdto "daybrief-backend/internal/integration/dto"
	"daybrief-backend/internal/integration/usecase"

	"github.com/gin-gonic/gin"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

type IntegrationHandler struct {
	integrationUsecase usecase.IntegrationUsecase
	oauthUsecase       usecase.OAuthUsecase
}

func NewIntegrationHandler(integrationUsecase usecase.IntegrationUsecase, oauthUsecase usecase.OAuthUsecase) *IntegrationHandler {
	return &IntegrationHandler{
		integrationUsecase: integrationUsecase,
		oauthUsecase:       oauthUsecase,
	}
}

// respondError maps domain sentinels onto HTTP statuses. Anything unmapped
// is a server-side failure.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrIntegrationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrIntegrationExpired):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Integration expired. Please reconnect to refresh access.",
			"code":  "reconnect_required",
		})
	case errors.Is(err, domain.ErrIntegrationNotActive),
		errors.Is(err, domain.ErrNotEmailProvider),
		errors.Is(err, domain.ErrUnknownFilter),
		errors.Is(err, domain.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrProviderNotImplemented):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrSearchUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		var providerErr *domain.ProviderError
		if errors.As(err, &providerErr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// isGuardError separates contract violations from action-level failures in
// Execute, which reports the latter inside a 200 envelope.
func isGuardError(err error) bool {
	return errors.Is(err, domain.ErrIntegrationNotFound) ||
		errors.Is(err, domain.ErrIntegrationNotActive) ||
		errors.Is(err, domain.ErrIntegrationExpired) ||
		errors.Is(err, domain.ErrNotEmailProvider) ||
		errors.Is(err, domain.ErrProviderNotImplemented)
}

func (h *IntegrationHandler) AvailableProviders(c *gin.Context) {
	infos := h.integrationUsecase.AvailableProviders()
	providers := make([]integrationdto.AvailableProviderResponse, 0, len(infos))
	for _, info := range infos {
		providers = append(providers, integrationdto.AvailableProviderResponse{
			ProviderType: string(info.ProviderType),
			Name:         info.Name,
			Description:  info.Description,
		})
	}
	c.JSON(http.StatusOK, gin.H{"providers": providers})
}

func (h *IntegrationHandler) List(c *gin.Context) {
	userID := c.GetString("userID")
	integrations, err := h.integrationUsecase.ListForUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, integrationdto.IntegrationListResponse{Items: integrations})
}

func (h *IntegrationHandler) Get(c *gin.Context) {
	userID := c.GetString("userID")
	integration, err := h.integrationUsecase.GetForUser(userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, integration)
}

// Connect starts the OAuth flow. The path parameter names the provider, not
// an integration ID.
func (h *IntegrationHandler) Connect(c *gin.Context) {
	userID := c.GetString("userID")
	providerType := domain.ProviderType(c.Param("id"))

	var req integrationdto.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "redirect_uri is required"})
		return
	}

	authURL, state, err := h.oauthUsecase.BeginAuthorization(c.Request.Context(), userID, providerType, req.RedirectURI)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, integrationdto.ConnectResponse{
		AuthorizationURL: authURL,
		State:            state,
	})
}

// Callback completes the OAuth flow. The provider redirects the browser here,
// so on success the answer is another redirect back to the frontend URI
// captured when the flow started.
func (h *IntegrationHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "OAuth error: missing code or state"})
		return
	}

	integration, redirectURI, err := h.oauthUsecase.CompleteAuthorization(c.Request.Context(), code, state)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "OAuth error: " + err.Error()})
		return
	}

	if redirectURI == "" {
		c.JSON(http.StatusOK, integration)
		return
	}
	c.Redirect(http.StatusFound, fmt.Sprintf("%s?integration_id=%s&status=connected", redirectURI, integration.ID))
}

func (h *IntegrationHandler) Disconnect(c *gin.Context) {
	userID := c.GetString("userID")
	if err := h.integrationUsecase.Disconnect(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "integration disconnected"})
}

func (h *IntegrationHandler) Update(c *gin.Context) {
	userID := c.GetString("userID")

	var req integrationdto.IntegrationUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	integration, err := h.integrationUsecase.Update(userID, c.Param("id"), req.Status, req.Config)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, integration)
}

func (h *IntegrationHandler) Execute(c *gin.Context) {
	userID := c.GetString("userID")

	var req integrationdto.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action is required"})
		return
	}

	result, err := h.integrationUsecase.Execute(c.Request.Context(), userID, c.Param("id"), req.Action, req.Params)
	if err != nil {
		if isGuardError(err) {
			respondError(c, err)
			return
		}
		// Action-level failures are part of the envelope, not transport errors.
		c.JSON(http.StatusOK, integrationdto.ExecuteResponse{Success: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, integrationdto.ExecuteResponse{Success: true, Data: result})
}

func (h *IntegrationHandler) ListEmails(c *gin.Context) {
	userID := c.GetString("userID")

	query := usecase.EmailQuery{
		Filter:    c.Query("filter"),
		PageToken: c.Query("page_token"),
		Summarize: true,
	}
	if raw, ok := c.GetQuery("query"); ok {
		value := raw
		query.Query = &value
	}
	if raw := c.Query("label_ids"); raw != "" {
		query.LabelIDs = splitCSV(raw)
	}
	if raw, ok := c.GetQuery("max_results"); ok {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			query.MaxResults = &parsed
		}
	}
	if raw, ok := c.GetQuery("summarize"); ok {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			query.Summarize = parsed
		}
	}

	page, err := h.integrationUsecase.ListEmails(c.Request.Context(), userID, c.Param("id"), query)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]*integrationdto.EmailResponse, 0, len(page.Items))
	for _, message := range page.Items {
		item := &integrationdto.EmailResponse{
			ID:       message.ID,
			ThreadID: message.ThreadID,
			Subject:  message.Subject,
			From:     message.From,
			To:       message.To,
			Date:     message.Date,
			Snippet:  message.Snippet,
			Body:     message.Body,
			Labels:   message.Labels,
		}
		if summary, ok := page.Summaries[message.ID]; ok {
			item.Summary = summary
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, integrationdto.EmailListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *IntegrationHandler) ListCachedEmails(c *gin.Context) {
	userID := c.GetString("userID")

	query := usecase.CachedQuery{
		Keyword:   c.Query("keyword"),
		PageToken: c.Query("page_token"),
	}
	if raw := c.Query("labels"); raw != "" {
		query.Labels = splitCSV(raw)
	}
	if raw, ok := c.GetQuery("limit"); ok {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			query.Limit = parsed
		}
	}
	if raw, ok := c.GetQuery("force"); ok {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			query.Force = parsed
		}
	}

	page, err := h.integrationUsecase.ListCachedEmails(userID, c.Param("id"), query)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]*integrationdto.EmailResponse, 0, len(page.Items))
	for _, row := range page.Items {
		items = append(items, cachedEmailResponse(row))
	}
	c.JSON(http.StatusOK, integrationdto.CachedEmailListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
		Total:         page.Total,
		SyncStatus:    string(page.SyncState.Status),
		LastSyncedAt:  page.SyncState.LastSyncedAt,
		SyncQueued:    page.SyncQueued,
	})
}

func (h *IntegrationHandler) QueueSync(c *gin.Context) {
	userID := c.GetString("userID")
	queued, err := h.integrationUsecase.QueueSync(userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "queued": queued})
}

func (h *IntegrationHandler) SyncStatus(c *gin.Context) {
	userID := c.GetString("userID")
	state, err := h.integrationUsecase.SyncStatus(userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, integrationdto.SyncStatusResponse{
		Status:        state.Status,
		LastSyncedAt:  state.LastSyncedAt,
		LastPageToken: state.LastPageToken,
		ErrorMessage:  state.ErrorMessage,
	})
}

func (h *IntegrationHandler) Watch(c *gin.Context) {
	userID := c.GetString("userID")
	if err := h.integrationUsecase.WatchMailbox(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "watch registered"})
}

func (h *IntegrationHandler) SemanticSearch(c *gin.Context) {
	userID := c.GetString("userID")

	var req integrationdto.SemanticSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "integration_id and query are required"})
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	messages, distances, err := h.integrationUsecase.SemanticSearch(c.Request.Context(), userID, req.IntegrationID, req.Query, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	results := make([]integrationdto.SemanticSearchResult, 0, len(messages))
	for i, row := range messages {
		result := integrationdto.SemanticSearchResult{Email: cachedEmailResponse(row)}
		if i < len(distances) {
			result.Distance = distances[i]
		}
		results = append(results, result)
	}
	c.JSON(http.StatusOK, integrationdto.SemanticSearchResponse{Results: results})
}

// cachedEmailResponse keys cached rows by provider message ID so live and
// cached listings share one identifier space.
func cachedEmailResponse(row *domain.EmailMessage) *integrationdto.EmailResponse {
	return &integrationdto.EmailResponse{
		ID:       row.ProviderMessageID,
		ThreadID: row.ThreadID,
		Subject:  row.Subject,
		From:     row.FromAddress,
		To:       row.ToAddress,
		Date:     row.Date,
		Snippet:  row.Snippet,
		Body:     row.Body,
		Labels:   row.Labels,
		Summary:  row.Summary,
	}
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
