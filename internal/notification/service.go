package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"daybrief-backend/internal/integration/domain"
	"daybrief-backend/internal/integration/repository"
	"daybrief-backend/internal/integration/usecase"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// GmailNotification is the payload Gmail publishes to the watch topic.
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Service consumes Gmail push notifications from Pub/Sub and turns them into
// sync requests for the matching integration. It is the push half of the
// pipeline; the scheduler covers accounts without an active watch.
type Service struct {
	pubsubClient    *pubsub.Client
	integrationRepo repository.IntegrationRepository
	requester       usecase.SyncRequester
	notifier        usecase.Notifier
	projectID       string
	topicName       string
	subName         string

	// Gmail redelivers aggressively; remember the last history ID handled
	// per integration and drop anything at or below it.
	mu            sync.Mutex
	lastHistoryID map[string]uint64
}

func NewService(
	projectID, topicName, credentialsFile string,
	integrationRepo repository.IntegrationRepository,
	requester usecase.SyncRequester,
	notifier usecase.Notifier,
) (*Service, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %v", err)
	}

	return &Service{
		pubsubClient:    client,
		integrationRepo: integrationRepo,
		requester:       requester,
		notifier:        notifier,
		projectID:       projectID,
		topicName:       topicName,
		subName:         topicName + "-sub", // Convention: topic-sub
		lastHistoryID:   make(map[string]uint64),
	}, nil
}

// Start ensures the subscription exists and blocks receiving messages until
// the context is canceled. Run it on its own goroutine.
func (s *Service) Start(ctx context.Context) {
	log.Printf("[PubSub] Starting notification service with topic: %s, subscription: %s", s.topicName, s.subName)

	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.Printf("[PubSub] Error checking subscription existence: %v", err)
		return
	}

	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			log.Printf("[PubSub] Error checking topic existence: %v", err)
			return
		}
		if !topicExists {
			log.Printf("[PubSub] Topic %s does not exist, cannot create subscription", s.topicName)
			return
		}

		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			log.Printf("[PubSub] Failed to create subscription: %v", err)
			return
		}
		log.Printf("[PubSub] Created subscription: %s", s.subName)
	}

	log.Printf("[PubSub] Listening for messages on subscription: %s", s.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(ctx, msg)
		msg.Ack()
	})
	if err != nil {
		log.Printf("[PubSub] Error receiving messages: %v", err)
	}
}

func (s *Service) handleMessage(ctx context.Context, msg *pubsub.Message) {
	var notification GmailNotification
	if err := json.Unmarshal(msg.Data, &notification); err != nil {
		log.Printf("[PubSub] Failed to unmarshal notification: %v", err)
		return
	}

	log.Printf("[PubSub] Notification for %s (historyId: %d)", notification.EmailAddress, notification.HistoryID)

	integration, err := s.integrationRepo.FindByAccountEmail(domain.ProviderGmail, notification.EmailAddress)
	if err != nil {
		log.Printf("[PubSub] Error finding integration for %s: %v", notification.EmailAddress, err)
		return
	}
	if integration == nil {
		log.Printf("[PubSub] No active integration for %s", notification.EmailAddress)
		return
	}

	if !s.advanceHistory(integration.ID, notification.HistoryID) {
		return
	}

	if queued := s.requester.RequestSync(integration.ID); !queued {
		log.Printf("[PubSub] Sync queue full, dropped push-triggered sync for %s", integration.ID)
		return
	}

	if s.notifier != nil {
		go s.notifier.NotifyUser(context.Background(), integration.UserID, "New mail",
			fmt.Sprintf("New activity in %s", notification.EmailAddress),
			map[string]string{
				"type":           "email_update",
				"integration_id": integration.ID,
				"history_id":     fmt.Sprintf("%d", notification.HistoryID),
			})
	}
}

// advanceHistory records the history ID and reports whether it moved forward.
func (s *Service) advanceHistory(integrationID string, historyID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, seen := s.lastHistoryID[integrationID]; seen && historyID <= last {
		return false
	}
	s.lastHistoryID[integrationID] = historyID
	return true
}
