package domain

import "time"

// IntegrationToken holds the encrypted OAuth credentials for one integration
// (1:1). Both token columns store vault ciphertext; plaintext never reaches
// the database. Written only by the OAuth flow: once on callback, again on
// each refresh.
type IntegrationToken struct {
	ID            string     `json:"id" gorm:"primaryKey"`
	IntegrationID string     `json:"integration_id" gorm:"uniqueIndex;not null"`
	AccessToken   string     `json:"-" gorm:"type:text;not null"`
	RefreshToken  *string    `json:"-" gorm:"type:text"`
	ExpiresAt     *time.Time `json:"expires_at"`
	TokenType     string     `json:"token_type" gorm:"default:'bearer'"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (IntegrationToken) TableName() string {
	return "integration_tokens"
}
