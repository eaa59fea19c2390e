package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gosgconsulting/cms-identity/internal/core/domain"
	"github.com/gosgconsulting/cms-identity/internal/core/port"
	"github.com/gosgconsulting/cms-identity/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}

	envelope := eventEnvelope{
		EventID:   eventID,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata: map[string]string{
			"service":     p.appCfg.Name,
			"environment": p.appCfg.Env,
		},
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishSecurityEvent publishes identity.security.event records.
func (p *EventPublisher) PublishSecurityEvent(ctx context.Context, event domain.SecurityEventRaised) error {
	payload := struct {
		UserID      *string        `json:"user_id,omitempty"`
		EventType   string         `json:"event_type"`
		Severity    string         `json:"severity"`
		Description string         `json:"description"`
		IP          *string        `json:"ip,omitempty"`
		RaisedAt    time.Time      `json:"raised_at"`
		Details     map[string]any `json:"details,omitempty"`
	}{
		UserID:      event.UserID,
		EventType:   event.EventType,
		Severity:    string(event.Severity),
		Description: event.Description,
		IP:          event.IP,
		RaisedAt:    event.RaisedAt.UTC(),
		Details:     event.Details,
	}

	userID := ""
	if event.UserID != nil {
		userID = *event.UserID
	}
	return p.publish(ctx, event.EventID, "identity.security.event", userID, event.RaisedAt, payload)
}

// PublishUserStatusChanged publishes identity.user.status_changed records.
func (p *EventPublisher) PublishUserStatusChanged(ctx context.Context, event domain.UserStatusChangedEvent) error {
	payload := struct {
		UserID    string    `json:"user_id"`
		ActorID   string    `json:"actor_id"`
		From      string    `json:"from"`
		To        string    `json:"to"`
		Reason    string    `json:"reason,omitempty"`
		ChangedAt time.Time `json:"changed_at"`
	}{
		UserID:    event.UserID,
		ActorID:   event.ActorID,
		From:      string(event.From),
		To:        string(event.To),
		Reason:    event.Reason,
		ChangedAt: event.ChangedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "identity.user.status_changed", event.UserID, event.ChangedAt, payload)
}

// PublishPasswordChanged publishes identity.user.password_changed records.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		UserID          string    `json:"user_id"`
		ChangedBy       string    `json:"changed_by"`
		SessionsRevoked int       `json:"sessions_revoked"`
		ChangedAt       time.Time `json:"changed_at"`
	}{
		UserID:          event.UserID,
		ChangedBy:       event.ChangedBy,
		SessionsRevoked: event.SessionsRevoked,
		ChangedAt:       event.ChangedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "identity.user.password_changed", event.UserID, event.ChangedAt, payload)
}

// PublishSessionsInvalidated publishes identity.session.invalidated records.
func (p *EventPublisher) PublishSessionsInvalidated(ctx context.Context, event domain.SessionsInvalidatedEvent) error {
	payload := struct {
		UserID        string    `json:"user_id"`
		Count         int       `json:"count"`
		Reason        string    `json:"reason"`
		InvalidatedAt time.Time `json:"invalidated_at"`
	}{
		UserID:        event.UserID,
		Count:         event.Count,
		Reason:        event.Reason,
		InvalidatedAt: event.InvalidatedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "identity.session.invalidated", event.UserID, event.InvalidatedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
