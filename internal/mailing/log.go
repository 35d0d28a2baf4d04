package mailing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lumail/lumail/internal/domain"
	"github.com/lumail/lumail/internal/pkg/logger"
)

// LogSender logs emails instead of sending them. Used in dev mode and tests.
type LogSender struct{}

// NewLogSender creates a log-only sender.
func NewLogSender() *LogSender {
	return &LogSender{}
}

// Send logs the message and reports success with a synthetic id.
func (s *LogSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	logger.Info("email not sent (log provider)",
		"email", msg.Email,
		"subject", msg.Subject,
		"campaign_id", msg.CampaignID,
	)
	return &domain.SendResult{
		Success:   true,
		MessageID: "log-" + uuid.New().String(),
		ESPType:   domain.ESPLog,
		SentAt:    time.Now(),
	}, nil
}
