package domain

import "time"

// OAuthStateTTL bounds how long an authorization request may sit between
// the consent redirect and the provider callback.
const OAuthStateTTL = 15 * time.Minute

// OAuthState is the ephemeral anti-CSRF record correlating an authorization
// redirect with its callback. Unique per (user, provider): starting a new
// authorization deletes the previous state. Consumed exactly once.
type OAuthState struct {
	State        string       `json:"state" gorm:"primaryKey;size:64"`
	UserID       string       `json:"user_id" gorm:"index;not null"`
	ProviderType ProviderType `json:"provider_type" gorm:"not null"`
	RedirectURI  string       `json:"redirect_uri" gorm:"size:512"`
	ExpiresAt    time.Time    `json:"expires_at" gorm:"not null"`
	CreatedAt    time.Time    `json:"created_at"`
}

// TableName specifies the table name for GORM
func (OAuthState) TableName() string {
	return "oauth_states"
}

// Expired reports whether the state can no longer be redeemed.
func (s *OAuthState) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}
