package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// ProviderType identifies the external service an integration connects to.
type ProviderType string

const (
	ProviderGmail     ProviderType = "gmail"
	ProviderSlack     ProviderType = "slack"
	ProviderNotion    ProviderType = "notion"
	ProviderMicrosoft ProviderType = "microsoft"
)

// IsEmailProvider reports whether the provider serves mailbox data. Email
// endpoints reject everything else.
func (p ProviderType) IsEmailProvider() bool {
	return p == ProviderGmail || p == ProviderMicrosoft
}

// IntegrationStatus is the credential lifecycle state of an integration.
// active -> expired happens when the refresh path fails; re-entering active
// requires a fresh OAuth consent. disconnected is terminal.
type IntegrationStatus string

const (
	StatusActive       IntegrationStatus = "active"
	StatusExpired      IntegrationStatus = "expired"
	StatusError        IntegrationStatus = "error"
	StatusDisconnected IntegrationStatus = "disconnected"
)

// JSONMap is a free-form JSON object column (provider config such as
// query/label filters and page size).
type JSONMap map[string]interface{}

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	if len(bytes) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// Integration is one user's connection to one external provider. It is the
// aggregate root: its token, cached messages, and sync state are deleted with it.
type Integration struct {
	ID           string            `json:"id" gorm:"primaryKey"`
	UserID       string            `json:"user_id" gorm:"index:idx_user_provider;not null"`
	ProviderType ProviderType      `json:"provider_type" gorm:"index:idx_user_provider;not null"`
	Status       IntegrationStatus `json:"status" gorm:"not null;default:'active'"`
	AccountEmail string            `json:"account_email,omitempty" gorm:"index"` // provider account address, set from the profile at callback
	Config       JSONMap           `json:"config" gorm:"type:text"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Integration) TableName() string {
	return "integrations"
}
