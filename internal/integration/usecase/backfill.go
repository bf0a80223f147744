package usecase

import (
	"context"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"daybrief-backend/internal/integration/domain"
	"daybrief-backend/pkg/ai"
)

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// cleanText strips markup and collapses whitespace before text reaches the
// summarizer. Tag stripping only runs when the text actually looks like
// markup; plain text containing a lone angle bracket passes through intact.
func cleanText(text string) string {
	if strings.Contains(text, "<") && strings.Contains(text, ">") {
		text = htmlTagPattern.ReplaceAllString(text, " ")
	}
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}

// backfillSummaries summarizes one bounded batch of cached messages that have
// no summary yet. Calls to the summarizer run under a concurrency cap; a
// message whose call fails or comes back empty keeps a null summary and gets
// retried on a later pass. Successful results are persisted in one commit.
func (s *SyncService) backfillSummaries(ctx context.Context, integrationID string) {
	if s.summarizer == nil {
		return
	}

	batchSize := s.cfg.SummaryBatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	messages, err := s.messageRepo.FindMissingSummaries(integrationID, batchSize)
	if err != nil {
		log.Printf("[Summary] Failed to load backlog for integration %s: %v", integrationID, err)
		return
	}
	if len(messages) == 0 {
		return
	}

	concurrency := s.cfg.SummaryConcurrency
	if concurrency <= 0 {
		concurrency = 3
	}

	var (
		wg        sync.WaitGroup
		semaphore = make(chan struct{}, concurrency)
		mu        sync.Mutex
		completed []*domain.EmailMessage
	)

	for _, message := range messages {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(message *domain.EmailMessage) {
			defer wg.Done()
			defer func() { <-semaphore }()

			summary, err := s.summarizer.SummarizeEmail(ctx, ai.EmailInput{
				Subject: message.Subject,
				From:    message.FromAddress,
				To:      message.ToAddress,
				Date:    message.Date,
				Snippet: cleanText(message.Snippet),
				Body:    cleanText(message.Body),
			})
			if err != nil {
				log.Printf("[Summary] Failed to summarize message %s: %v", message.ID, err)
				return
			}
			summary = strings.TrimSpace(summary)
			if summary == "" {
				return
			}

			now := time.Now()
			message.Summary = &summary
			message.SummaryUpdatedAt = &now

			mu.Lock()
			completed = append(completed, message)
			mu.Unlock()
		}(message)
	}
	wg.Wait()

	if len(completed) == 0 {
		return
	}
	if err := s.messageRepo.SaveSummaries(completed); err != nil {
		log.Printf("[Summary] Failed to persist %d summaries for integration %s: %v", len(completed), integrationID, err)
		return
	}
	log.Printf("[Summary] Backfilled %d of %d summaries for integration %s", len(completed), len(messages), integrationID)
}
