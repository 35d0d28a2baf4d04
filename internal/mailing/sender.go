package mailing

import (
	"context"

	"github.com/lumail/lumail/internal/domain"
)

// Sender is the single-send capability supplied by an ESP integration.
// Implementations report provider-level failures through SendResult rather
// than panicking; a nil-error result with Success=false (or an empty
// MessageID) is treated as a delivery failure by the orchestrator.
type Sender interface {
	Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error)
}
