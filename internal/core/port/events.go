package port

import (
	"context"

	"github.com/gosgconsulting/cms-identity/internal/core/domain"
)

// EventPublisher publishes identity lifecycle events to the message bus.
// Publishing is best-effort on the authentication path; failures must never
// fail the primary operation.
type EventPublisher interface {
	PublishSecurityEvent(ctx context.Context, event domain.SecurityEventRaised) error
	PublishUserStatusChanged(ctx context.Context, event domain.UserStatusChangedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishSessionsInvalidated(ctx context.Context, event domain.SessionsInvalidatedEvent) error
}
