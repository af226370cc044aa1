package mailer

import (
	"context"
	"net/mail"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ConsoleSender logs messages instead of delivering them. Sent messages are kept for inspection.
type ConsoleSender struct {
	from       mail.Address
	subjPrefix string
	logger     *zap.Logger

	mu   sync.Mutex
	sent []Message
}

// NewConsoleSender constructs a console sender.
func NewConsoleSender(from mail.Address, subjPrefix string, logger *zap.Logger) *ConsoleSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleSender{from: from, subjPrefix: subjPrefix, logger: logger}
}

// Send implements Sender.
func (s *ConsoleSender) Send(ctx context.Context, msg Message) error {
	if !msg.HasRecipients() || !msg.HasContent() {
		return nil
	}
	s.logger.Info("email",
		zap.String("from", s.from.String()),
		zap.String("to", joinAddresses(msg.To)),
		zap.String("subject", s.subjPrefix+msg.Subject),
		zap.String("body", msg.TextBody),
	)
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	return nil
}

// Sent returns a copy of every message passed to Send.
func (s *ConsoleSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}

func joinAddresses(addrs []mail.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}
