package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosgconsulting/cms-identity/internal/core/domain"
	"github.com/gosgconsulting/cms-identity/internal/core/port"
	"github.com/gosgconsulting/cms-identity/internal/repository"
)

// AuditRepository implements port.AuditRepository using PostgreSQL. All three
// surfaces (activity log, security events, login history) are append-only.
type AuditRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditRepository wires a PostgreSQL-backed audit repository.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func marshalDetails(details map[string]any) (any, error) {
	if len(details) == 0 {
		return nil, nil
	}
	buf, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal details: %w", err)
	}
	return buf, nil
}

// AppendActivity inserts one activity log row.
func (r *AuditRepository) AppendActivity(ctx context.Context, entry domain.ActivityEntry) error {
	details, err := marshalDetails(entry.Details)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Insert("activity_log").
		Columns(
			"id",
			"actor_id",
			"action",
			"resource_type",
			"resource_id",
			"details",
			"ip_address",
			"user_agent",
			"success",
			"error_message",
			"created_at",
		).
		Values(
			entry.ID,
			entry.ActorID,
			entry.Action,
			entry.ResourceType,
			entry.ResourceID,
			details,
			entry.IPAddress,
			entry.UserAgent,
			entry.Success,
			entry.ErrorMessage,
			entry.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert activity sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// AppendSecurityEvent inserts one security event row.
func (r *AuditRepository) AppendSecurityEvent(ctx context.Context, event domain.SecurityEvent) error {
	details, err := marshalDetails(event.Details)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Insert("security_events").
		Columns(
			"id",
			"user_id",
			"event_type",
			"severity",
			"description",
			"ip_address",
			"user_agent",
			"details",
			"resolved",
			"created_at",
		).
		Values(
			event.ID,
			event.UserID,
			event.EventType,
			event.Severity,
			event.Description,
			event.IPAddress,
			event.UserAgent,
			details,
			event.Resolved,
			event.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert security event sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

// ResolveSecurityEvent marks the event resolved by an admin.
func (r *AuditRepository) ResolveSecurityEvent(ctx context.Context, eventID, resolvedBy string, at time.Time) error {
	stmt, args, err := r.builder.Update("security_events").
		Set("resolved", true).
		Set("resolved_by", resolvedBy).
		Set("resolved_at", at).
		Where(squirrel.Eq{"id": eventID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build resolve security event sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("resolve security event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// AppendLoginHistory inserts one login attempt record.
func (r *AuditRepository) AppendLoginHistory(ctx context.Context, entry domain.LoginHistoryEntry) error {
	stmt, args, err := r.builder.Insert("login_history").
		Columns(
			"id",
			"user_id",
			"email",
			"succeeded",
			"fail_reason",
			"ip_address",
			"user_agent",
			"device_info",
			"created_at",
		).
		Values(
			entry.ID,
			entry.UserID,
			domain.NormalizeEmail(entry.Email),
			entry.Succeeded,
			entry.FailReason,
			entry.IPAddress,
			entry.UserAgent,
			entry.DeviceInfo,
			entry.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert login history sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert login history: %w", err)
	}
	return nil
}

// CountFailedLoginsSince counts failed attempts for the user in the trailing window.
func (r *AuditRepository) CountFailedLoginsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	stmt, args, err := r.builder.
		Select("count(*)").
		From("login_history").
		Where(squirrel.Eq{"user_id": userID, "succeeded": false}).
		Where(squirrel.GtOrEq{"created_at": since}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count failed logins sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count failed logins: %w", err)
	}
	return count, nil
}

// HasSuccessfulLoginFromIP reports whether the user logged in from the IP since the given time.
func (r *AuditRepository) HasSuccessfulLoginFromIP(ctx context.Context, userID, ip string, since time.Time) (bool, error) {
	stmt, args, err := r.builder.
		Select("count(*)").
		From("login_history").
		Where(squirrel.Eq{"user_id": userID, "succeeded": true, "ip_address": ip}).
		Where(squirrel.GtOrEq{"created_at": since}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build successful login lookup sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("successful login lookup: %w", err)
	}
	return count > 0, nil
}

var _ port.AuditRepository = (*AuditRepository)(nil)
