package mail

import (
	"context"

	"go.uber.org/zap"

	"github.com/zenGate-Global/schoolhub/domains/notifications/be/dispatcher"
)

// LogMailer writes emails to the logger instead of sending them. Used when no SendGrid key is set.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, email dispatcher.Email) error {
	m.logger.Info("email suppressed",
		zap.String("to", email.To.Email),
		zap.String("subject", subject(email)),
		zap.String("severity", string(email.Severity)),
		zap.Int("body_length", len(email.Body)),
	)
	return nil
}

var _ dispatcher.Mailer = (*LogMailer)(nil)
