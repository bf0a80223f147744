package dto

import (
	"time"

	"daybrief-backend/internal/integration/domain"
)

type AvailableProviderResponse struct {
	ProviderType string `json:"provider_type"`
	Name         string `json:"name"`
	Description  string `json:"description"`
}

type IntegrationListResponse struct {
	Items []*domain.Integration `json:"items"`
}

type ConnectRequest struct {
	RedirectURI string `json:"redirect_uri" binding:"required"`
}

type ConnectResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

type IntegrationUpdateRequest struct {
	Status *string        `json:"status"`
	Config map[string]any `json:"config"`
}

type ExecuteRequest struct {
	Action string         `json:"action" binding:"required"`
	Params map[string]any `json:"params"`
}

type ExecuteResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type SyncStatusResponse struct {
	Status        domain.SyncStatus `json:"status"`
	LastSyncedAt  *time.Time        `json:"last_synced_at"`
	LastPageToken string            `json:"last_page_token,omitempty"`
	ErrorMessage  string            `json:"error_message,omitempty"`
}

type SemanticSearchRequest struct {
	IntegrationID string `json:"integration_id" binding:"required"`
	Query         string `json:"query" binding:"required"`
	Limit         int    `json:"limit"`
}

type SemanticSearchResult struct {
	Email    *EmailResponse `json:"email"`
	Distance float64        `json:"distance"`
}

type SemanticSearchResponse struct {
	Results []SemanticSearchResult `json:"results"`
}
