package dto

import "time"

// EmailResponse is one normalized email as returned by a provider fetch or
// read back from the local cache.
type EmailResponse struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"thread_id"`
	Subject  string   `json:"subject"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Date     string   `json:"date"`
	Snippet  string   `json:"snippet"`
	Body     string   `json:"body"`
	Labels   []string `json:"labels"`
	Summary  *string  `json:"summary"`
}

type EmailListResponse struct {
	Items         []*EmailResponse `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

// CachedEmailListResponse serves the local read model, with offset-based
// opaque page tokens and a snapshot of the sync state alongside the rows.
type CachedEmailListResponse struct {
	Items         []*EmailResponse `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
	Total         int64            `json:"total"`
	SyncStatus    string           `json:"sync_status"`
	LastSyncedAt  *time.Time       `json:"last_synced_at"`
	SyncQueued    bool             `json:"sync_queued"`
}
