package domain

import "time"

// ESPType identifies the email service provider used for sending.
type ESPType string

const (
	ESPResend ESPType = "resend"
	ESPSES    ESPType = "ses"
	ESPLog    ESPType = "log"
)

// Recipient is a single addressee of a campaign send. Recipient lists arrive
// fully formed in the send request; the list of record lives client-side.
type Recipient struct {
	Email string `json:"email"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
}

// SendRequest is the caller-constructed input for a bulk campaign send.
type SendRequest struct {
	Recipients []Recipient `json:"recipients"`
	Subject    string      `json:"subject"`
	Content    string      `json:"content"`
	FromEmail  string      `json:"fromEmail"`
	CampaignID string      `json:"campaignId"`
	IsTest     bool        `json:"isTest"`
}

// RecipientError records a single recipient's delivery failure.
type RecipientError struct {
	Email   string `json:"email"`
	Message string `json:"error"`
}

// SendOutcome aggregates per-recipient results for one bulk send.
// Invariant: SentCount + FailedCount == TotalCount once the send completes.
type SendOutcome struct {
	SentCount          int              `json:"sent"`
	FailedCount        int              `json:"failed"`
	TotalCount         int              `json:"total"`
	PerRecipientErrors []RecipientError `json:"errors"`
}

// EmailMessage is the fully-resolved message ready for an ESP sender.
// By the time a message reaches this struct, all personalization, unsubscribe
// link embedding, and header generation is complete.
type EmailMessage struct {
	ID          string            `json:"id"`
	CampaignID  string            `json:"campaign_id"`
	RecipientID string            `json:"recipient_id"`
	Email       string            `json:"email"`
	FromName    string            `json:"from_name"`
	FromEmail   string            `json:"from_email"`
	Subject     string            `json:"subject"`
	HTMLContent string            `json:"html_content"`
	TextContent string            `json:"text_content"`
	Headers     map[string]string `json:"headers,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// SendResult is returned by an ESP sender after attempting delivery.
type SendResult struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"message_id"`
	ESPType   ESPType   `json:"esp_type"`
	SentAt    time.Time `json:"sent_at"`
	Error     string    `json:"error,omitempty"`
}
