package usecase

import (
	"context"
	"log"
	"net/mail"
	"time"

	"daybrief-backend/internal/integration/domain"
)

// parseEmailDate parses an RFC 2822 date header into a sortable timestamp.
// Providers emit enough malformed headers that parse failures are expected;
// those rows keep a nil timestamp and sort after dated ones.
func parseEmailDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	parsed, err := mail.ParseDate(raw)
	if err != nil {
		return nil
	}
	return &parsed
}

// reconcile merges one fetched page into the local message cache. New provider
// IDs become rows, known IDs are compared by payload hash: unchanged rows are
// left alone, changed rows are rewritten with the summary cleared so the
// backfill regenerates it. The whole merge commits in one transaction.
func (s *SyncService) reconcile(ctx context.Context, integrationID string, messages []*ProviderMessage) (int, int, error) {
	if len(messages) == 0 {
		return 0, 0, nil
	}

	providerIDs := make([]string, 0, len(messages))
	for _, message := range messages {
		if message.ID == "" {
			continue
		}
		providerIDs = append(providerIDs, message.ID)
	}
	if len(providerIDs) == 0 {
		return 0, 0, nil
	}

	existing, err := s.messageRepo.FindByProviderMessageIDs(integrationID, providerIDs)
	if err != nil {
		return 0, 0, err
	}
	existingByID := make(map[string]*domain.EmailMessage, len(existing))
	for _, row := range existing {
		existingByID[row.ProviderMessageID] = row
	}

	var toCreate []*domain.EmailMessage
	var toUpdate []*domain.EmailMessage

	for _, message := range messages {
		if message.ID == "" {
			continue
		}

		hash := domain.PayloadHash(
			message.Subject,
			message.From,
			message.To,
			message.Date,
			message.Snippet,
			message.Body,
			message.Labels,
		)

		row, known := existingByID[message.ID]
		if !known {
			toCreate = append(toCreate, &domain.EmailMessage{
				IntegrationID:     integrationID,
				ProviderMessageID: message.ID,
				ThreadID:          message.ThreadID,
				FromAddress:       message.From,
				ToAddress:         message.To,
				Subject:           message.Subject,
				Date:              message.Date,
				DateTS:            parseEmailDate(message.Date),
				Snippet:           message.Snippet,
				Body:              message.Body,
				Labels:            message.Labels,
				RawPayloadHash:    hash,
			})
			continue
		}

		if row.RawPayloadHash == hash {
			continue
		}

		row.ThreadID = message.ThreadID
		row.FromAddress = message.From
		row.ToAddress = message.To
		row.Subject = message.Subject
		row.Date = message.Date
		row.DateTS = parseEmailDate(message.Date)
		row.Snippet = message.Snippet
		row.Body = message.Body
		row.Labels = message.Labels
		row.RawPayloadHash = hash
		// The payload changed under the summary, so the summary is stale.
		row.Summary = nil
		row.SummaryUpdatedAt = nil
		row.UpdatedAt = time.Now()
		toUpdate = append(toUpdate, row)
	}

	if err := s.messageRepo.SaveBatch(toCreate, toUpdate); err != nil {
		return 0, 0, err
	}

	s.indexMessages(ctx, integrationID, toCreate, toUpdate)

	return len(toCreate), len(toUpdate), nil
}

// indexMessages pushes created and changed rows into the semantic index.
// Index writes never fail the sync pass; a missed document only degrades
// search until the next change to that message.
func (s *SyncService) indexMessages(ctx context.Context, integrationID string, batches ...[]*domain.EmailMessage) {
	if s.indexer == nil {
		return
	}
	for _, batch := range batches {
		for _, row := range batch {
			err := s.indexer.UpsertEmailEmbedding(ctx, row.ID, integrationID, row.Subject, row.Body)
			if err != nil {
				log.Printf("[Sync] Failed to index message %s: %v", row.ID, err)
			}
		}
	}
}
