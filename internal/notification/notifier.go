package notification

import (
	"context"
	"log"

	authrepo "daybrief-backend/internal/auth/repository"
	"daybrief-backend/pkg/fcm"
)

// PushNotifier fans one notification out to every registered device of a
// user. Delivery is best-effort: failures are logged, dead device tokens are
// pruned, and nothing propagates back to the caller.
type PushNotifier struct {
	fcmClient *fcm.Client
	fcmRepo   authrepo.FCMTokenRepository
}

func NewPushNotifier(fcmClient *fcm.Client, fcmRepo authrepo.FCMTokenRepository) *PushNotifier {
	return &PushNotifier{
		fcmClient: fcmClient,
		fcmRepo:   fcmRepo,
	}
}

// NotifyUser sends a push to all of the user's devices. A nil FCM client
// turns the whole notifier into a no-op, so deployments without Firebase
// credentials run unchanged.
func (n *PushNotifier) NotifyUser(ctx context.Context, userID, title, body string, data map[string]string) {
	if n.fcmClient == nil || n.fcmRepo == nil {
		return
	}

	tokens, err := n.fcmRepo.GetTokensByUserID(userID)
	if err != nil {
		log.Printf("[FCM] Error getting FCM tokens for user %s: %v", userID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	tokenStrings := make([]string, 0, len(tokens))
	for _, t := range tokens {
		tokenStrings = append(tokenStrings, t.Token)
	}

	failedTokens, err := n.fcmClient.SendToDevices(ctx, tokenStrings, fcm.NotificationData{
		Title: title,
		Body:  body,
		Data:  data,
	})
	if err != nil {
		log.Printf("[FCM] Error sending notification to user %s: %v", userID, err)
		return
	}

	for _, token := range failedTokens {
		if err := n.fcmRepo.DeleteToken(token); err != nil {
			log.Printf("[FCM] Error pruning failed token: %v", err)
		}
	}
	if len(failedTokens) > 0 {
		log.Printf("[FCM] Pruned %d dead tokens for user %s", len(failedTokens), userID)
	}
}
