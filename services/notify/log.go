package notify

import (
	"context"
	"time"

	"github.com/tech-arch1tect/gatekeep/services/logging"
	"go.uber.org/zap"
)

// LogNotifier writes notifications to the log instead of sending them.
// Bodies carry live links, so they are only emitted at debug level.
type LogNotifier struct {
	composer Composer
	logger   *logging.Service
}

func NewLogNotifier(appName string, logger *logging.Service) *LogNotifier {
	return &LogNotifier{composer: Composer{AppName: appName}, logger: logger}
}

func (n *LogNotifier) SendVerification(_ context.Context, to Recipient, link string, expires time.Time) error {
	n.write(n.composer.Verification(to, link, expires))
	return nil
}

func (n *LogNotifier) SendPasswordReset(_ context.Context, to Recipient, link string, expires time.Time) error {
	n.write(n.composer.PasswordReset(to, link, expires))
	return nil
}

func (n *LogNotifier) SendPasswordChanged(_ context.Context, to Recipient) error {
	n.write(n.composer.PasswordChanged(to))
	return nil
}

func (n *LogNotifier) write(m Message) {
	n.logger.Info("notification",
		zap.String("kind", m.Kind),
		zap.String("email", m.To.Email),
		zap.String("subject", m.Subject))
	n.logger.Debug("notification body", zap.String("kind", m.Kind), zap.String("body", m.Body))
}
