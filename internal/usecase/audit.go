package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gosgconsulting/cms-identity/internal/core/domain"
	"github.com/gosgconsulting/cms-identity/internal/core/port"
	"github.com/gosgconsulting/cms-identity/internal/infra/telemetry"
)

// AuditService writes the activity log, security events, and login history.
// Every write is best-effort: a failing audit store degrades to a process log
// line and never fails the primary operation.
type AuditService struct {
	repo    port.AuditRepository
	events  port.EventPublisher
	metrics *telemetry.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewAuditService constructs an AuditService.
func NewAuditService(repo port.AuditRepository, events port.EventPublisher, metrics *telemetry.Metrics, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		repo:    repo,
		events:  events,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AuditService) WithClock(clock func() time.Time) *AuditService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// ActivityInput captures one security-relevant action.
type ActivityInput struct {
	ActorID      *string
	Action       string
	ResourceType *string
	ResourceID   *string
	Details      map[string]any
	IP           *string
	UserAgent    *string
	Success      bool
	ErrorMessage *string
}

// LogActivity appends an activity entry. Errors are swallowed.
func (s *AuditService) LogActivity(ctx context.Context, input ActivityInput) {
	if s.repo == nil {
		return
	}

	entry := domain.ActivityEntry{
		ID:           uuid.NewString(),
		ActorID:      input.ActorID,
		Action:       input.Action,
		ResourceType: input.ResourceType,
		ResourceID:   input.ResourceID,
		Details:      input.Details,
		IPAddress:    input.IP,
		UserAgent:    input.UserAgent,
		Success:      input.Success,
		ErrorMessage: input.ErrorMessage,
		CreatedAt:    s.now(),
	}

	if err := s.repo.AppendActivity(ctx, entry); err != nil {
		s.logger.Warn("activity log write failed",
			zap.String("action", input.Action),
			zap.Error(err),
		)
	}
}

// SecurityEventInput captures one severity-tagged incident.
type SecurityEventInput struct {
	UserID      *string
	EventType   string
	Severity    domain.Severity
	Description string
	IP          *string
	UserAgent   *string
	Details     map[string]any
}

// LogSecurityEvent appends a security event and publishes it to the message
// bus. Errors are swallowed; this path must never become an availability
// dependency of authentication.
func (s *AuditService) LogSecurityEvent(ctx context.Context, input SecurityEventInput) {
	if s.metrics != nil {
		s.metrics.SecurityEvents.WithLabelValues(string(input.Severity)).Inc()
	}

	event := domain.SecurityEvent{
		ID:          uuid.NewString(),
		UserID:      input.UserID,
		EventType:   input.EventType,
		Severity:    input.Severity,
		Description: input.Description,
		IPAddress:   input.IP,
		UserAgent:   input.UserAgent,
		Details:     input.Details,
		CreatedAt:   s.now(),
	}

	if s.repo != nil {
		if err := s.repo.AppendSecurityEvent(ctx, event); err != nil {
			s.logger.Error("security event write failed",
				zap.String("event_type", input.EventType),
				zap.String("severity", string(input.Severity)),
				zap.Error(err),
			)
		}
	}

	if s.events != nil {
		publish := domain.SecurityEventRaised{
			EventID:     event.ID,
			UserID:      input.UserID,
			EventType:   input.EventType,
			Severity:    input.Severity,
			Description: input.Description,
			IP:          input.IP,
			RaisedAt:    event.CreatedAt,
			Details:     input.Details,
		}
		if err := s.events.PublishSecurityEvent(ctx, publish); err != nil {
			s.logger.Warn("security event publish failed",
				zap.String("event_type", input.EventType),
				zap.Error(err),
			)
		}
	}
}

// RecordLoginAttempt appends one login history row. Errors are swallowed.
func (s *AuditService) RecordLoginAttempt(ctx context.Context, userID *string, email string, succeeded bool, failReason string, ip, userAgent, deviceInfo *string) {
	if s.repo == nil {
		return
	}

	var reason *string
	if failReason != "" {
		reason = &failReason
	}

	entry := domain.LoginHistoryEntry{
		ID:         uuid.NewString(),
		UserID:     userID,
		Email:      email,
		Succeeded:  succeeded,
		FailReason: reason,
		IPAddress:  ip,
		UserAgent:  userAgent,
		DeviceInfo: deviceInfo,
		CreatedAt:  s.now(),
	}

	if err := s.repo.AppendLoginHistory(ctx, entry); err != nil {
		s.logger.Warn("login history write failed", zap.Error(err))
	}
}

// ResolveSecurityEvent marks an event handled by an admin. Unlike the write
// paths this is an admin operation and propagates its error.
func (s *AuditService) ResolveSecurityEvent(ctx context.Context, eventID, resolvedBy string) error {
	if eventID == "" {
		return fmt.Errorf("event id is required")
	}
	if resolvedBy == "" {
		return fmt.Errorf("resolver id is required")
	}

	if err := s.repo.ResolveSecurityEvent(ctx, eventID, resolvedBy, s.now()); err != nil {
		return fmt.Errorf("resolve security event: %w", err)
	}

	s.LogActivity(ctx, ActivityInput{
		ActorID:      &resolvedBy,
		Action:       domain.ActionResolveSecEvent,
		ResourceType: strPtr("security_event"),
		ResourceID:   &eventID,
		Success:      true,
	})

	return nil
}

func strPtr(s string) *string { return &s }
