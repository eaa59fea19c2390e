package kafka

import (
	"context"

	"github.com/gosgconsulting/cms-identity/internal/core/domain"
	"github.com/gosgconsulting/cms-identity/internal/core/port"
)

// StubPublisher is a no-op EventPublisher used when Kafka is disabled.
type StubPublisher struct{}

// NewStubPublisher returns a publisher that drops every event.
func NewStubPublisher() *StubPublisher { return &StubPublisher{} }

func (*StubPublisher) PublishSecurityEvent(context.Context, domain.SecurityEventRaised) error {
	return nil
}

func (*StubPublisher) PublishUserStatusChanged(context.Context, domain.UserStatusChangedEvent) error {
	return nil
}

func (*StubPublisher) PublishPasswordChanged(context.Context, domain.PasswordChangedEvent) error {
	return nil
}

func (*StubPublisher) PublishSessionsInvalidated(context.Context, domain.SessionsInvalidatedEvent) error {
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
