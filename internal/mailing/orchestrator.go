package mailing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumail/lumail/internal/domain"
	"github.com/lumail/lumail/internal/pkg/logger"
)

// Batching defaults. Resend's API is rate limited, so recipients go out in
// fixed-size concurrent groups with a pause in between. A static duty cycle
// is enough for campaign sizes in the hundreds.
const (
	DefaultBatchSize      = 10
	DefaultBatchPause     = time.Second
	DefaultErrorReportCap = 10
)

// Suppressor is the unsubscribe lookup consulted before dispatch.
type Suppressor interface {
	IsSuppressed(ctx context.Context, email string) (bool, error)
}

// BulkSender renders and dispatches one campaign send across all
// recipients, aggregating per-recipient outcomes. Per-recipient failures
// never cross its boundary; only pre-flight validation errors do.
type BulkSender struct {
	sender   Sender
	codec    *TokenCodec
	renderer *Renderer

	suppressor    Suppressor // optional
	allowedDomain string
	fromName      string
	batchSize     int
	batchPause    time.Duration
	errorCap      int

	now   func() time.Time
	sleep func(time.Duration)
}

// NewBulkSender creates a bulk sender. allowedDomain is the sending-domain
// suffix every fromEmail must carry.
func NewBulkSender(sender Sender, codec *TokenCodec, renderer *Renderer, allowedDomain, fromName string) *BulkSender {
	return &BulkSender{
		sender:        sender,
		codec:         codec,
		renderer:      renderer,
		allowedDomain: strings.TrimPrefix(allowedDomain, "@"),
		fromName:      fromName,
		batchSize:     DefaultBatchSize,
		batchPause:    DefaultBatchPause,
		errorCap:      DefaultErrorReportCap,
		now:           time.Now,
		sleep:         time.Sleep,
	}
}

// SetSuppressor wires the unsubscribe store. Without it, no suppression
// check happens before dispatch.
func (b *BulkSender) SetSuppressor(s Suppressor) {
	b.suppressor = s
}

// SetBatching overrides the batch size and inter-batch pause.
func (b *BulkSender) SetBatching(size int, pause time.Duration) {
	if size > 0 {
		b.batchSize = size
	}
	if pause >= 0 {
		b.batchPause = pause
	}
}

// SetErrorReportCap overrides the per-recipient error reporting limit.
func (b *BulkSender) SetErrorReportCap(cap int) {
	if cap > 0 {
		b.errorCap = cap
	}
}

// SetClock overrides the time source. Tests only.
func (b *BulkSender) SetClock(now func() time.Time) {
	b.now = now
}

// SetSleep overrides the inter-batch pause function. Tests only.
func (b *BulkSender) SetSleep(sleep func(time.Duration)) {
	b.sleep = sleep
}

// Send validates the request, then processes recipients in arrival order:
// fixed-size groups dispatched concurrently, a pause between groups.
// The returned outcome always satisfies sent + failed == total.
func (b *BulkSender) Send(ctx context.Context, req *domain.SendRequest) (*domain.SendOutcome, error) {
	if err := b.validate(req); err != nil {
		return nil, err
	}

	outcome := &domain.SendOutcome{
		TotalCount:         len(req.Recipients),
		PerRecipientErrors: []domain.RecipientError{},
	}

	for start := 0; start < len(req.Recipients); start += b.batchSize {
		end := start + b.batchSize
		if end > len(req.Recipients) {
			end = len(req.Recipients)
		}
		batch := req.Recipients[start:end]

		// Fan out within the batch; each goroutine writes only its own slot.
		results := make([]recipientResult, len(batch))
		var wg sync.WaitGroup
		for i, rcpt := range batch {
			wg.Add(1)
			go func(i int, rcpt domain.Recipient) {
				defer wg.Done()
				results[i] = b.sendOne(ctx, req, rcpt)
			}(i, rcpt)
		}
		wg.Wait()

		// Counters are folded after the barrier, preserving arrival order.
		for _, res := range results {
			if res.sent {
				outcome.SentCount++
				continue
			}
			outcome.FailedCount++
			if len(outcome.PerRecipientErrors) < b.errorCap {
				outcome.PerRecipientErrors = append(outcome.PerRecipientErrors, domain.RecipientError{
					Email:   res.email,
					Message: res.message,
				})
			}
		}

		if end < len(req.Recipients) {
			b.sleep(b.batchPause)
		}
	}

	logger.Info("campaign send complete",
		"campaign_id", req.CampaignID,
		"sent", outcome.SentCount,
		"failed", outcome.FailedCount,
		"total", outcome.TotalCount,
	)

	return outcome, nil
}

type recipientResult struct {
	email   string
	sent    bool
	message string
}

// sendOne processes a single recipient end to end. All failures are
// converted to data; this function never returns an error.
func (b *BulkSender) sendOne(ctx context.Context, req *domain.SendRequest, rcpt domain.Recipient) recipientResult {
	fail := func(format string, args ...interface{}) recipientResult {
		return recipientResult{email: rcpt.Email, message: fmt.Sprintf(format, args...)}
	}

	if b.suppressor != nil {
		suppressed, err := b.suppressor.IsSuppressed(ctx, rcpt.Email)
		if err != nil {
			// Store unreachable: fail open, the send proceeds.
			logger.Warn("suppression check failed", "email", rcpt.Email, "error", err)
		} else if suppressed {
			return fail("recipient has unsubscribed")
		}
	}

	token, err := b.codec.Create(rcpt.Email, req.CampaignID, b.now())
	if err != nil {
		return fail("invalid recipient address: %v", err)
	}

	rendered, err := b.renderer.Render(req, rcpt, token)
	if err != nil {
		return fail("render failed: %v", err)
	}

	recipientRef := rcpt.ID
	if recipientRef == "" {
		recipientRef = "unknown"
	}
	kind := "campaign"
	if req.IsTest {
		kind = "test"
	}

	msg := &domain.EmailMessage{
		ID:          uuid.New().String(),
		CampaignID:  req.CampaignID,
		RecipientID: rcpt.ID,
		Email:       rcpt.Email,
		FromName:    b.fromName,
		FromEmail:   req.FromEmail,
		Subject:     rendered.Subject,
		HTMLContent: rendered.HTML,
		TextContent: rendered.Text,
		Headers: map[string]string{
			"X-Campaign-ID":    req.CampaignID,
			"X-Entity-Ref-ID":  "subscriber-" + recipientRef,
			"List-Unsubscribe": fmt.Sprintf("<%s/unsubscribe?token=%s>", b.renderer.appBaseURL, token),
		},
		Tags: map[string]string{
			"campaign": req.CampaignID,
			"type":     kind,
		},
	}

	result, err := b.sender.Send(ctx, msg)
	if err != nil {
		logger.Warn("send failed", "email", rcpt.Email, "campaign_id", req.CampaignID, "error", err)
		return fail("failed to send: %v", err)
	}
	if result == nil || !result.Success || result.MessageID == "" {
		reason := "provider returned no message id"
		if result != nil && result.Error != "" {
			reason = result.Error
		}
		return fail("%s", reason)
	}

	return recipientResult{email: rcpt.Email, sent: true}
}

// validate runs the pre-flight checks. Any failure short-circuits with no
// recipient contacted.
func (b *BulkSender) validate(req *domain.SendRequest) error {
	if len(req.Recipients) == 0 {
		return &ValidationError{
			Reason:  ReasonMissingRecipients,
			Message: "recipients array is required and must not be empty",
		}
	}
	if req.Subject == "" || req.Content == "" {
		return &ValidationError{
			Reason:  ReasonMissingFields,
			Message: "subject and content are required",
		}
	}
	if !strings.HasSuffix(req.FromEmail, "@"+b.allowedDomain) {
		return &ValidationError{
			Reason:  ReasonInvalidSenderDomain,
			Message: fmt.Sprintf("valid @%s from email is required", b.allowedDomain),
		}
	}
	return nil
}
