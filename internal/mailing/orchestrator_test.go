package mailing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lumail/lumail/internal/domain"
)

// fakeSender records envelopes and fails addresses listed in failWith.
type fakeSender struct {
	mu       sync.Mutex
	sent     []*domain.EmailMessage
	failWith map[string]error // email -> error to return
	noID     map[string]bool  // email -> succeed but return empty id
}

func (f *fakeSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()

	if err, ok := f.failWith[msg.Email]; ok {
		return &domain.SendResult{Success: false, Error: err.Error()}, err
	}
	if f.noID[msg.Email] {
		return &domain.SendResult{Success: true}, nil
	}
	return &domain.SendResult{Success: true, MessageID: "msg-" + msg.Email, SentAt: time.Now()}, nil
}

func (f *fakeSender) attempted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	emails := make([]string, len(f.sent))
	for i, m := range f.sent {
		emails[i] = m.Email
	}
	return emails
}

type fakeSuppressor struct {
	suppressed map[string]bool
	err        error
}

func (f *fakeSuppressor) IsSuppressed(ctx context.Context, email string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.suppressed[NormalizeEmail(email)], nil
}

func newTestBulkSender(sender Sender) *BulkSender {
	codec := NewTokenCodec("test-secret", 0)
	renderer := NewRenderer("https://app.lumail.co.uk", "Lumail")
	b := NewBulkSender(sender, codec, renderer, "lumail.co.uk", "Lumail")
	b.SetSleep(func(time.Duration) {})
	return b
}

func recipients(n int) []domain.Recipient {
	out := make([]domain.Recipient, n)
	for i := range out {
		out[i] = domain.Recipient{Email: fmt.Sprintf("r%03d@x.com", i), ID: fmt.Sprintf("%d", i)}
	}
	return out
}

func validRequest(rcpts []domain.Recipient) *domain.SendRequest {
	return &domain.SendRequest{
		Recipients: rcpts,
		Subject:    "S",
		Content:    "C",
		FromEmail:  "n@lumail.co.uk",
		CampaignID: "c1",
	}
}

func TestSendValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.SendRequest)
		reason ValidationReason
	}{
		{
			name:   "empty recipients",
			mutate: func(r *domain.SendRequest) { r.Recipients = nil },
			reason: ReasonMissingRecipients,
		},
		{
			name:   "missing subject",
			mutate: func(r *domain.SendRequest) { r.Subject = "" },
			reason: ReasonMissingFields,
		},
		{
			name:   "missing content",
			mutate: func(r *domain.SendRequest) { r.Content = "" },
			reason: ReasonMissingFields,
		},
		{
			name:   "wrong sender domain",
			mutate: func(r *domain.SendRequest) { r.FromEmail = "x@other.com" },
			reason: ReasonInvalidSenderDomain,
		},
		{
			name:   "allowed domain as substring only",
			mutate: func(r *domain.SendRequest) { r.FromEmail = "x@lumail.co.uk.evil.com" },
			reason: ReasonInvalidSenderDomain,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			b := newTestBulkSender(sender)

			req := validRequest(recipients(2))
			tt.mutate(req)

			_, err := b.Send(context.Background(), req)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Send() error = %v, want *ValidationError", err)
			}
			if vErr.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", vErr.Reason, tt.reason)
			}
			if len(sender.attempted()) != 0 {
				t.Error("validation failure must not contact any recipient")
			}
		})
	}
}

func TestSendOutcomeTotalsInvariant(t *testing.T) {
	sender := &fakeSender{failWith: map[string]error{
		"r001@x.com": errors.New("bounce"),
		"r007@x.com": errors.New("timeout"),
		"r013@x.com": errors.New("rejected"),
	}}
	b := newTestBulkSender(sender)

	n := 27
	outcome, err := b.Send(context.Background(), validRequest(recipients(n)))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if outcome.TotalCount != n {
		t.Errorf("TotalCount = %d, want %d", outcome.TotalCount, n)
	}
	if outcome.SentCount+outcome.FailedCount != outcome.TotalCount {
		t.Errorf("sent %d + failed %d != total %d", outcome.SentCount, outcome.FailedCount, outcome.TotalCount)
	}
	if outcome.FailedCount != 3 {
		t.Errorf("FailedCount = %d, want 3", outcome.FailedCount)
	}
}

func TestSendFailureIsolation(t *testing.T) {
	// Recipient in the first batch fails; everyone after is still attempted.
	sender := &fakeSender{failWith: map[string]error{"r002@x.com": errors.New("boom")}}
	b := newTestBulkSender(sender)

	rcpts := recipients(25)
	outcome, err := b.Send(context.Background(), validRequest(rcpts))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if got := len(sender.attempted()); got != len(rcpts) {
		t.Errorf("attempted %d recipients, want %d", got, len(rcpts))
	}
	if outcome.SentCount != 24 || outcome.FailedCount != 1 {
		t.Errorf("outcome = %d sent / %d failed, want 24/1", outcome.SentCount, outcome.FailedCount)
	}
	if len(outcome.PerRecipientErrors) != 1 || outcome.PerRecipientErrors[0].Email != "r002@x.com" {
		t.Errorf("PerRecipientErrors = %+v", outcome.PerRecipientErrors)
	}
}

func TestSendErrorCap(t *testing.T) {
	failWith := make(map[string]error)
	rcpts := recipients(30)
	for _, r := range rcpts {
		failWith[r.Email] = errors.New("hard bounce")
	}
	sender := &fakeSender{failWith: failWith}
	b := newTestBulkSender(sender)

	outcome, err := b.Send(context.Background(), validRequest(rcpts))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if outcome.FailedCount != 30 {
		t.Errorf("FailedCount = %d, want 30", outcome.FailedCount)
	}
	if len(outcome.PerRecipientErrors) != DefaultErrorReportCap {
		t.Errorf("len(PerRecipientErrors) = %d, want exactly %d",
			len(outcome.PerRecipientErrors), DefaultErrorReportCap)
	}
}

func TestSendEmptyMessageIDIsFailure(t *testing.T) {
	sender := &fakeSender{noID: map[string]bool{"r000@x.com": true}}
	b := newTestBulkSender(sender)

	outcome, err := b.Send(context.Background(), validRequest(recipients(2)))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if outcome.SentCount != 1 || outcome.FailedCount != 1 {
		t.Fatalf("outcome = %d sent / %d failed, want 1/1", outcome.SentCount, outcome.FailedCount)
	}
	if outcome.PerRecipientErrors[0].Message != "provider returned no message id" {
		t.Errorf("Message = %q", outcome.PerRecipientErrors[0].Message)
	}
}

func TestSendPartialFailureScenario(t *testing.T) {
	sender := &fakeSender{failWith: map[string]error{"b@x.com": errors.New("mailbox full")}}
	b := newTestBulkSender(sender)

	req := &domain.SendRequest{
		Recipients: []domain.Recipient{{Email: "a@x.com"}, {Email: "b@x.com"}},
		Subject:    "S",
		Content:    "C",
		FromEmail:  "n@lumail.co.uk",
		CampaignID: "c1",
	}

	outcome, err := b.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if outcome.SentCount != 1 || outcome.FailedCount != 1 || outcome.TotalCount != 2 {
		t.Errorf("outcome = %+v, want 1 sent / 1 failed / 2 total", outcome)
	}
	if len(outcome.PerRecipientErrors) != 1 {
		t.Fatalf("PerRecipientErrors = %+v", outcome.PerRecipientErrors)
	}
	if outcome.PerRecipientErrors[0].Email != "b@x.com" {
		t.Errorf("error email = %q, want b@x.com", outcome.PerRecipientErrors[0].Email)
	}
	if !strings.Contains(outcome.PerRecipientErrors[0].Message, "mailbox full") {
		t.Errorf("error message = %q, want provider reason", outcome.PerRecipientErrors[0].Message)
	}
}

func TestSendBatchingPauses(t *testing.T) {
	sender := &fakeSender{}
	b := newTestBulkSender(sender)

	var pauses []time.Duration
	b.SetSleep(func(d time.Duration) { pauses = append(pauses, d) })

	// 25 recipients at batch size 10 → 3 batches → 2 pauses, none trailing.
	_, err := b.Send(context.Background(), validRequest(recipients(25)))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(pauses) != 2 {
		t.Errorf("got %d pauses, want 2", len(pauses))
	}
	for _, d := range pauses {
		if d != DefaultBatchPause {
			t.Errorf("pause = %v, want %v", d, DefaultBatchPause)
		}
	}
}

func TestSendSingleBatchNoPause(t *testing.T) {
	sender := &fakeSender{}
	b := newTestBulkSender(sender)

	paused := false
	b.SetSleep(func(time.Duration) { paused = true })

	if _, err := b.Send(context.Background(), validRequest(recipients(10))); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if paused {
		t.Error("a single batch should not pause")
	}
}

func TestSendEnvelope(t *testing.T) {
	sender := &fakeSender{}
	b := newTestBulkSender(sender)

	req := validRequest([]domain.Recipient{{Email: "jane@x.com", ID: "42", Name: "Jane Doe"}})
	req.IsTest = true

	if _, err := b.Send(context.Background(), req); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	msg := sender.sent[0]
	if msg.Headers["X-Campaign-ID"] != "c1" {
		t.Errorf("X-Campaign-ID = %q", msg.Headers["X-Campaign-ID"])
	}
	if msg.Headers["X-Entity-Ref-ID"] != "subscriber-42" {
		t.Errorf("X-Entity-Ref-ID = %q", msg.Headers["X-Entity-Ref-ID"])
	}
	if msg.Tags["type"] != "test" {
		t.Errorf("type tag = %q, want test", msg.Tags["type"])
	}
	if !strings.HasPrefix(msg.Subject, "[TEST] ") {
		t.Errorf("Subject = %q, want [TEST] prefix", msg.Subject)
	}
	if !strings.Contains(msg.HTMLContent, "/unsubscribe?token=") {
		t.Error("HTML body missing unsubscribe link")
	}

	// The embedded token must verify back to this recipient and campaign.
	link := msg.Headers["List-Unsubscribe"]
	token := link[strings.Index(link, "token=")+len("token=") : len(link)-1]
	claims, err := b.codec.Verify(token, time.Now())
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Email != "jane@x.com" || claims.CampaignID != "c1" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestSendEntityRefFallsBackToUnknown(t *testing.T) {
	sender := &fakeSender{}
	b := newTestBulkSender(sender)

	req := validRequest([]domain.Recipient{{Email: "jane@x.com"}})
	if _, err := b.Send(context.Background(), req); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := sender.sent[0].Headers["X-Entity-Ref-ID"]; got != "subscriber-unknown" {
		t.Errorf("X-Entity-Ref-ID = %q, want subscriber-unknown", got)
	}
}

func TestSendSuppressedRecipient(t *testing.T) {
	sender := &fakeSender{}
	b := newTestBulkSender(sender)
	b.SetSuppressor(&fakeSuppressor{suppressed: map[string]bool{"b@x.com": true}})

	req := validRequest([]domain.Recipient{{Email: "a@x.com"}, {Email: "b@x.com"}})
	outcome, err := b.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if outcome.SentCount != 1 || outcome.FailedCount != 1 {
		t.Errorf("outcome = %d sent / %d failed, want 1/1", outcome.SentCount, outcome.FailedCount)
	}
	if got := sender.attempted(); len(got) != 1 || got[0] != "a@x.com" {
		t.Errorf("attempted = %v, suppressed recipient must not be dispatched", got)
	}
	if outcome.PerRecipientErrors[0].Message != "recipient has unsubscribed" {
		t.Errorf("Message = %q", outcome.PerRecipientErrors[0].Message)
	}
}

func TestSendSuppressionCheckFailsOpen(t *testing.T) {
	sender := &fakeSender{}
	b := newTestBulkSender(sender)
	b.SetSuppressor(&fakeSuppressor{err: errors.New("redis down")})

	outcome, err := b.Send(context.Background(), validRequest(recipients(3)))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if outcome.SentCount != 3 {
		t.Errorf("SentCount = %d, want 3 (suppression store errors must not block sends)", outcome.SentCount)
	}
}

func TestSendBadRecipientAddressCountsAsFailure(t *testing.T) {
	sender := &fakeSender{}
	b := newTestBulkSender(sender)

	req := validRequest([]domain.Recipient{{Email: "a@x.com"}, {Email: "no-at-sign"}})
	outcome, err := b.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if outcome.SentCount != 1 || outcome.FailedCount != 1 {
		t.Errorf("outcome = %d sent / %d failed, want 1/1", outcome.SentCount, outcome.FailedCount)
	}
	if got := sender.attempted(); len(got) != 1 {
		t.Errorf("attempted = %v, token failure must skip dispatch", got)
	}
}
