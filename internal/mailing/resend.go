package mailing

import (
	"context"
	"fmt"
	"time"

	"github.com/resend/resend-go/v2"

	"github.com/lumail/lumail/internal/domain"
)

// ResendSender delivers email through the Resend API.
type ResendSender struct {
	client  *resend.Client
	timeout time.Duration
}

// NewResendSender creates a Resend-backed sender. A non-positive timeout
// falls back to 30 seconds.
func NewResendSender(apiKey string, timeout time.Duration) *ResendSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ResendSender{client: resend.NewClient(apiKey), timeout: timeout}
}

// Send delivers a single email through Resend.
func (s *ResendSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail),
		To:      []string{msg.Email},
		Subject: msg.Subject,
		Html:    msg.HTMLContent,
		Text:    msg.TextContent,
		Headers: msg.Headers,
	}
	for name, value := range msg.Tags {
		params.Tags = append(params.Tags, resend.Tag{Name: name, Value: value})
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return &domain.SendResult{Success: false, ESPType: domain.ESPResend, Error: err.Error()}, err
	}
	if sent == nil || sent.Id == "" {
		return &domain.SendResult{
			Success: false,
			ESPType: domain.ESPResend,
			Error:   "provider returned no message id",
		}, nil
	}

	return &domain.SendResult{
		Success:   true,
		MessageID: sent.Id,
		ESPType:   domain.ESPResend,
		SentAt:    time.Now(),
	}, nil
}
