package domain

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// StringArray is a custom type to handle JSON arrays in GORM
type StringArray []string

// Value implements driver.Valuer
func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = []string{}
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
		*a = []string{}
		return nil
	}
	return json.Unmarshal(bytes, a)
}

// EmailMessage is the local cache of one remote message. Rows are created the
// first time a sync observes the provider ID and updated in place afterwards.
// The payload hash detects upstream edits; when it changes the cached summary
// is stale and gets cleared.
type EmailMessage struct {
	ID                string       `json:"id" gorm:"primaryKey"`
	IntegrationID     string       `json:"integration_id" gorm:"uniqueIndex:idx_integration_message;index:idx_integration_date;not null"`
	ProviderMessageID string       `json:"provider_message_id" gorm:"uniqueIndex:idx_integration_message;not null"`
	ThreadID          string       `json:"thread_id"`
	FromAddress       string       `json:"from" gorm:"size:512"`
	ToAddress         string       `json:"to" gorm:"size:1024"`
	Subject           string       `json:"subject" gorm:"size:1024"`
	Date              string       `json:"date" gorm:"size:255"` // raw header value
	DateTS            *time.Time   `json:"date_ts" gorm:"index:idx_integration_date"`
	Snippet           string       `json:"snippet" gorm:"type:text"`
	Body              string       `json:"body" gorm:"type:text"`
	Labels            StringArray  `json:"labels" gorm:"type:text"`
	Summary           *string      `json:"summary" gorm:"type:text"`
	SummaryUpdatedAt  *time.Time   `json:"summary_updated_at"`
	RawPayloadHash    string       `json:"-" gorm:"size:64"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (EmailMessage) TableName() string {
	return "email_messages"
}

// PayloadHash digests the normalized fetched fields. Field order is fixed;
// labels join with commas so the digest is deterministic.
func PayloadHash(subject, from, to, date, snippet, body string, labels []string) string {
	payload := strings.Join([]string{
		subject,
		from,
		to,
		date,
		snippet,
		body,
		strings.Join(labels, ","),
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
