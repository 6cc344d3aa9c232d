package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"go.uber.org/zap"
)

// Notifier broadcasts real-time events to connected clients.
type Notifier interface {
	MessageNew(msg *domain.Message)
	MessageUpdated(msg *domain.Message)
	MessageDeleted(conversationID, messageID uuid.UUID)
	ConversationDeleted(conversationID uuid.UUID)
	InvitesChanged(userID uuid.UUID, kind string)
	FriendsChanged(userID uuid.UUID)
	ForceLogout(userID uuid.UUID, reason, message string)
}

// Pusher delivers best-effort push notifications. Implementations must
// silently no-op when a recipient has no active destination.
type Pusher interface {
	ChatMessage(ctx context.Context, conversationID, senderID uuid.UUID, preview string)
	ForceLogout(ctx context.Context, userID uuid.UUID, reason, message string)
	// ForceLogoutToken targets a raw device token directly, for devices a
	// registration just displaced and that no longer map to any user row.
	ForceLogoutToken(ctx context.Context, token, reason, message string)
	IncomingCall(ctx context.Context, conversationID, callerID uuid.UUID, kind string)
}

// runHooks executes post-commit side effects. Each hook is fault-isolated: a
// panic or failure in one never reaches the caller or the other hooks.
func runHooks(log *zap.SugaredLogger, hooks ...func()) {
	for _, hook := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorw("post-commit hook panicked", "panic", r)
				}
			}()
			hook()
		}()
	}
}
