package mailing

import "fmt"

// ValidationReason identifies which pre-flight check a send request failed.
type ValidationReason string

const (
	ReasonMissingRecipients   ValidationReason = "missing_recipients"
	ReasonMissingFields       ValidationReason = "missing_fields"
	ReasonInvalidSenderDomain ValidationReason = "invalid_sender_domain"
)

// ValidationError is returned when a send request fails pre-flight validation.
// No recipient has been contacted when this error is returned.
type ValidationError struct {
	Reason  ValidationReason
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// TokenReason identifies why an unsubscribe token was rejected.
// Reasons are internal diagnostics; user-facing responses stay generic.
type TokenReason string

const (
	TokenMalformed         TokenReason = "malformed"
	TokenExpired           TokenReason = "expired"
	TokenSignatureMismatch TokenReason = "signature_mismatch"
)

// TokenError is returned when an unsubscribe token fails verification.
type TokenError struct {
	Reason TokenReason
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("invalid unsubscribe token: %s", e.Reason)
}
