package notificator

import (
	"runtime/debug"

	"github.com/sponsio/sponsio/internal/models"
	"github.com/sponsio/sponsio/pkg/logger"
)

// ContactDirectory resolves a user's delivery channels. The real directory
// lives outside the settlement engine; a nil or empty result simply drops
// the notification.
type ContactDirectory interface {
	Contact(userID string) (telegramChatID, email string, err error)
}

// NoopDirectory resolves nobody. Used when no directory is configured.
type NoopDirectory struct{}

func (NoopDirectory) Contact(string) (string, string, error) { return "", "", nil }

// Notificator dispatches settlement events to the user's channels.
// Delivery is best effort: every failure is logged and swallowed so that
// notification problems can never block or roll back settlement.
type Notificator struct {
	logger    *logger.Logger
	directory ContactDirectory

	TelegramNotificator *TelegramNotificator
	EmailNotificator    *EmailNotificator
}

func NewNotificator(logger *logger.Logger, directory ContactDirectory, telNotif *TelegramNotificator, emailNotif *EmailNotificator) *Notificator {
	if directory == nil {
		directory = NoopDirectory{}
	}
	return &Notificator{logger: logger, directory: directory, TelegramNotificator: telNotif, EmailNotificator: emailNotif}
}

// safeCall runs a function with panic recovery (synchronous, no goroutine spawning)
func (n *Notificator) safeCall(fn func(), context string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (n *Notificator) SendNotification(notification *models.Notification) {
	chatID, email, err := n.directory.Contact(notification.UserID)
	if err != nil {
		n.logger.Error("Failed to resolve notification contact", "user", notification.UserID, "error", err)
		return
	}
	if chatID == "" && email == "" {
		n.logger.Debug("No notification channel for user", "user", notification.UserID)
		return
	}

	message := notification.String()
	if chatID != "" && n.TelegramNotificator != nil {
		n.safeCall(func() { n.TelegramNotificator.SendNotification(chatID, message) }, "telegramNotification")
	}
	if email != "" && n.EmailNotificator != nil {
		n.safeCall(func() { n.EmailNotificator.SendNotification(email, message) }, "emailNotification")
	}
}
