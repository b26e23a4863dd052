package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/tech-arch1tect/gatekeep/config"
	"github.com/tech-arch1tect/gatekeep/services/logging"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Sender is the part of *mail.Client the notifier needs.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type MailNotifier struct {
	config   *config.MailConfig
	sender   Sender
	composer Composer
	logger   *logging.Service
}

func NewMailNotifier(cfg *config.Config, logger *logging.Service) (*MailNotifier, error) {
	mailCfg := &cfg.Mail

	logger.Info("initializing mail notifier",
		zap.String("host", mailCfg.Host),
		zap.Int("port", mailCfg.Port),
		zap.String("encryption", mailCfg.Encryption),
		zap.String("from_address", mailCfg.FromAddress))

	clientOpts := []mail.Option{
		mail.WithPort(mailCfg.Port),
	}

	switch mailCfg.Encryption {
	case "ssl":
		clientOpts = append(clientOpts, mail.WithSSL())
	case "none":
		clientOpts = append(clientOpts, mail.WithTLSPortPolicy(mail.NoTLS))
	default:
		clientOpts = append(clientOpts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}

	if mailCfg.Username != "" {
		clientOpts = append(clientOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(mailCfg.Username),
			mail.WithPassword(mailCfg.Password))
	}

	client, err := mail.NewClient(mailCfg.Host, clientOpts...)
	if err != nil {
		logger.Error("failed to create mail client", zap.Error(err), zap.String("host", mailCfg.Host))
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	return NewMailNotifierWithSender(cfg, logger, client)
}

func NewMailNotifierWithSender(cfg *config.Config, logger *logging.Service, sender Sender) (*MailNotifier, error) {
	if cfg.Mail.FromAddress == "" {
		return nil, fmt.Errorf("MAIL_FROM_ADDRESS is required")
	}

	return &MailNotifier{
		config:   &cfg.Mail,
		sender:   sender,
		composer: Composer{AppName: cfg.App.Name},
		logger:   logger,
	}, nil
}

func (n *MailNotifier) SendVerification(ctx context.Context, to Recipient, link string, expires time.Time) error {
	return n.send(ctx, n.composer.Verification(to, link, expires))
}

func (n *MailNotifier) SendPasswordReset(ctx context.Context, to Recipient, link string, expires time.Time) error {
	return n.send(ctx, n.composer.PasswordReset(to, link, expires))
}

func (n *MailNotifier) SendPasswordChanged(ctx context.Context, to Recipient) error {
	return n.send(ctx, n.composer.PasswordChanged(to))
}

func (n *MailNotifier) newMessage(m Message) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if n.config.FromName != "" {
		if err := msg.FromFormat(n.config.FromName, n.config.FromAddress); err != nil {
			return nil, fmt.Errorf("failed to set FROM address: %w", err)
		}
	} else if err := msg.From(n.config.FromAddress); err != nil {
		return nil, fmt.Errorf("failed to set FROM address: %w", err)
	}

	if m.To.Name != "" {
		if err := msg.AddToFormat(m.To.Name, m.To.Email); err != nil {
			return nil, fmt.Errorf("failed to set TO address: %w", err)
		}
	} else if err := msg.To(m.To.Email); err != nil {
		return nil, fmt.Errorf("failed to set TO address: %w", err)
	}

	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextPlain, m.Body)
	return msg, nil
}

func (n *MailNotifier) send(ctx context.Context, m Message) error {
	msg, err := n.newMessage(m)
	if err != nil {
		n.logger.Error("failed to build email", zap.Error(err), zap.String("kind", m.Kind))
		return err
	}

	start := time.Now()
	if err := n.sender.DialAndSendWithContext(ctx, msg); err != nil {
		n.logger.Error("failed to send email",
			zap.Error(err),
			zap.String("kind", m.Kind),
			zap.String("email", m.To.Email),
			zap.Duration("attempt_duration", time.Since(start)))
		return fmt.Errorf("failed to send %s email: %w", m.Kind, err)
	}

	n.logger.Info("email sent",
		zap.String("kind", m.Kind),
		zap.String("email", m.To.Email),
		zap.Duration("send_duration", time.Since(start)))
	return nil
}
