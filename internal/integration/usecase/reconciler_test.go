package usecase

import (
	"context"
	"testing"
	"time"

	"daybrief-backend/internal/integration/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessage(id, subject string) *ProviderMessage {
	return &ProviderMessage{
		ID:       id,
		ThreadID: "thread-" + id,
		Subject:  subject,
		From:     "Alice <alice@example.com>",
		To:       "owner@example.com",
		Date:     "Mon, 02 Jan 2006 15:04:05 -0700",
		Snippet:  "snippet for " + subject,
		Body:     "body for " + subject,
		Labels:   []string{"INBOX", "UNREAD"},
	}
}

func loadMessages(t *testing.T, h *syncHarness, integrationID string) []*domain.EmailMessage {
	t.Helper()
	var rows []*domain.EmailMessage
	require.NoError(t, h.db.Where("integration_id = ?", integrationID).Order("provider_message_id").Find(&rows).Error)
	return rows
}

func TestReconcileInsertsNewMessages(t *testing.T) {
	h := newSyncHarness(t)
	integration := seedIntegration(t, h.db, "user-1", domain.StatusActive)

	created, changed, err := h.service.reconcile(context.Background(), integration.ID,
		[]*ProviderMessage{sampleMessage("m1", "First"), sampleMessage("m2", "Second")})
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 0, changed)

	rows := loadMessages(t, h, integration.ID)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.NotEmpty(t, row.ID)
		assert.NotEmpty(t, row.RawPayloadHash)
		assert.Nil(t, row.Summary)
		require.NotNil(t, row.DateTS)
		assert.Equal(t, 2006, row.DateTS.UTC().Year())
	}
	assert.Equal(t, 2, h.indexer.upsertCount())
}

func TestReconcileIsIdempotent(t *testing.T) {
	h := newSyncHarness(t)
	integration := seedIntegration(t, h.db, "user-1", domain.StatusActive)
	page := []*ProviderMessage{sampleMessage("m1", "First")}

	_, _, err := h.service.reconcile(context.Background(), integration.ID, page)
	require.NoError(t, err)

	created, changed, err := h.service.reconcile(context.Background(), integration.ID, page)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 0, changed)
	assert.Len(t, loadMessages(t, h, integration.ID), 1)
}

func TestReconcileInvalidatesSummaryOnChange(t *testing.T) {
	h := newSyncHarness(t)
	integration := seedIntegration(t, h.db, "user-1", domain.StatusActive)

	_, _, err := h.service.reconcile(context.Background(), integration.ID,
		[]*ProviderMessage{sampleMessage("m1", "First")})
	require.NoError(t, err)

	// Simulate a completed backfill.
	summary := "old summary"
	now := time.Now()
	require.NoError(t, h.db.Model(&domain.EmailMessage{}).
		Where("integration_id = ?", integration.ID).
		Updates(map[string]interface{}{"summary": summary, "summary_updated_at": now}).Error)

	edited := sampleMessage("m1", "First (edited)")
	created, changed, err := h.service.reconcile(context.Background(), integration.ID,
		[]*ProviderMessage{edited})
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 1, changed)

	rows := loadMessages(t, h, integration.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, "First (edited)", rows[0].Subject)
	assert.Nil(t, rows[0].Summary)
	assert.Nil(t, rows[0].SummaryUpdatedAt)
}

func TestReconcileUnchangedMessageKeepsSummary(t *testing.T) {
	h := newSyncHarness(t)
	integration := seedIntegration(t, h.db, "user-1", domain.StatusActive)
	page := []*ProviderMessage{sampleMessage("m1", "First")}

	_, _, err := h.service.reconcile(context.Background(), integration.ID, page)
	require.NoError(t, err)

	summary := "still fresh"
	require.NoError(t, h.db.Model(&domain.EmailMessage{}).
		Where("integration_id = ?", integration.ID).
		Update("summary", summary).Error)

	_, changed, err := h.service.reconcile(context.Background(), integration.ID, page)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)

	rows := loadMessages(t, h, integration.ID)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Summary)
	assert.Equal(t, summary, *rows[0].Summary)
}

func TestReconcileEmptyPageIsNoOp(t *testing.T) {
	h := newSyncHarness(t)
	integration := seedIntegration(t, h.db, "user-1", domain.StatusActive)

	created, changed, err := h.service.reconcile(context.Background(), integration.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 0, changed)
	assert.Empty(t, loadMessages(t, h, integration.ID))
}

func TestReconcileSkipsMessagesWithoutID(t *testing.T) {
	h := newSyncHarness(t)
	integration := seedIntegration(t, h.db, "user-1", domain.StatusActive)

	blank := sampleMessage("", "No ID")
	created, _, err := h.service.reconcile(context.Background(), integration.ID,
		[]*ProviderMessage{blank, sampleMessage("m1", "Real")})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	rows := loadMessages(t, h, integration.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, "m1", rows[0].ProviderMessageID)
}

func TestParseEmailDate(t *testing.T) {
	parsed := parseEmailDate("Mon, 02 Jan 2006 15:04:05 -0700")
	require.NotNil(t, parsed)
	assert.Equal(t, time.January, parsed.UTC().Month())

	assert.Nil(t, parseEmailDate(""))
	assert.Nil(t, parseEmailDate("not a date"))
}
