package usecase

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/gosgconsulting/cms-identity/internal/core/domain"
)

func TestLogSecurityEventPersistsAndPublishes(t *testing.T) {
	audit := newStubAudit()
	events := &stubEvents{}
	svc := NewAuditService(audit, events, nil, zaptest.NewLogger(t))

	userID := "u1"
	svc.LogSecurityEvent(context.Background(), SecurityEventInput{
		UserID:      &userID,
		EventType:   domain.EventAccountLocked,
		Severity:    domain.SeverityHigh,
		Description: "account locked after 5 failed login attempts",
	})

	if len(audit.events) != 1 {
		t.Fatalf("persisted %d events, want 1", len(audit.events))
	}
	if len(events.security) != 1 {
		t.Fatalf("published %d events, want 1", len(events.security))
	}
	if events.security[0].EventID != audit.events[0].ID {
		t.Error("published event must carry the persisted event id")
	}
}

func TestResolveSecurityEvent(t *testing.T) {
	audit := newStubAudit()
	svc := NewAuditService(audit, &stubEvents{}, nil, zaptest.NewLogger(t))

	userID := "u1"
	svc.LogSecurityEvent(context.Background(), SecurityEventInput{
		UserID:      &userID,
		EventType:   domain.EventSuspiciousActivity,
		Severity:    domain.SeverityMedium,
		Description: "login from an address not seen in the last 30 days",
	})
	eventID := audit.events[0].ID

	if err := svc.ResolveSecurityEvent(context.Background(), eventID, "admin-1"); err != nil {
		t.Fatalf("ResolveSecurityEvent: %v", err)
	}

	resolved := audit.events[0]
	if !resolved.Resolved || resolved.ResolvedBy == nil || *resolved.ResolvedBy != "admin-1" {
		t.Errorf("event not resolved: %+v", resolved)
	}

	actions := audit.activityActions()
	if actions[len(actions)-1] != domain.ActionResolveSecEvent {
		t.Error("resolution must be recorded in the activity log")
	}

	if err := svc.ResolveSecurityEvent(context.Background(), "ghost", "admin-1"); err == nil {
		t.Error("resolving an unknown event must fail")
	}
}

func TestResolveSecurityEventValidatesInput(t *testing.T) {
	svc := NewAuditService(newStubAudit(), &stubEvents{}, nil, zaptest.NewLogger(t))

	if err := svc.ResolveSecurityEvent(context.Background(), "", "admin-1"); err == nil {
		t.Error("empty event id must be rejected")
	}
	if err := svc.ResolveSecurityEvent(context.Background(), "e1", ""); err == nil {
		t.Error("empty resolver id must be rejected")
	}
}
