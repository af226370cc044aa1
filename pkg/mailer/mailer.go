package mailer

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/pkg/config"
)

// Message is a plain outbound email.
type Message struct {
	To       []mail.Address
	Subject  string
	TextBody string
	HTMLBody string
}

// HasRecipients reports whether the message can be delivered to anyone.
func (m Message) HasRecipients() bool { return len(m.To) > 0 }

// HasContent reports whether the message carries a body.
func (m Message) HasContent() bool { return m.TextBody != "" || m.HTMLBody != "" }

// Sender delivers a single message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New selects the driver named in configuration.
func New(cfg config.NotificationConfig, logger *zap.Logger) (Sender, error) {
	from := mail.Address{Name: cfg.FromName, Address: cfg.FromAddress}
	prefix := ""
	if cfg.AppName != "" {
		prefix = "[" + cfg.AppName + "] "
	}
	switch strings.ToLower(cfg.Driver) {
	case "", "console":
		return NewConsoleSender(from, prefix, logger), nil
	case "sendgrid":
		if cfg.SendgridAPIKey == "" {
			return nil, fmt.Errorf("sendgrid driver requires SENDGRID_API_KEY")
		}
		return NewSendgridSender(cfg.SendgridAPIKey, from, prefix), nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
	}
}
