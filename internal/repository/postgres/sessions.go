package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosgconsulting/cms-identity/internal/core/domain"
	"github.com/gosgconsulting/cms-identity/internal/core/port"
	"github.com/gosgconsulting/cms-identity/internal/repository"
)

var sessionColumns = []string{
	"id",
	"user_id",
	"access_token_hash",
	"refresh_token_hash",
	"ip_address",
	"user_agent",
	"device_info",
	"created_at",
	"last_activity",
	"expires_at",
	"is_active",
}

// SessionRepository implements port.SessionRepository using PostgreSQL.
type SessionRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSessionRepository wires a PostgreSQL-backed session repository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	stmt, args, err := r.builder.Insert("sessions").
		Columns(sessionColumns...).
		Values(
			session.ID,
			session.UserID,
			session.AccessTokenHash,
			session.RefreshTokenHash,
			session.IPAddress,
			session.UserAgent,
			session.DeviceInfo,
			session.CreatedAt,
			session.LastActivity,
			session.ExpiresAt,
			session.IsActive,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by identifier.
func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From("sessions").
		Where(squirrel.Eq{"id": sessionID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	var s domain.Session
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&s.ID,
		&s.UserID,
		&s.AccessTokenHash,
		&s.RefreshTokenHash,
		&s.IPAddress,
		&s.UserAgent,
		&s.DeviceInfo,
		&s.CreatedAt,
		&s.LastActivity,
		&s.ExpiresAt,
		&s.IsActive,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}

// Touch updates the sliding activity window and last-seen metadata.
func (r *SessionRepository) Touch(ctx context.Context, sessionID string, at time.Time, ip, userAgent *string) error {
	update := r.builder.Update("sessions").
		Set("last_activity", at).
		Where(squirrel.Eq{"id": sessionID})
	if ip != nil {
		update = update.Set("ip_address", *ip)
	}
	if userAgent != nil {
		update = update.Set("user_agent", *userAgent)
	}

	stmt, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build touch session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// RotateTokens replaces both token hashes after a refresh and bumps the
// activity timestamp.
func (r *SessionRepository) RotateTokens(ctx context.Context, sessionID, accessTokenHash, refreshTokenHash string, at time.Time) error {
	stmt, args, err := r.builder.Update("sessions").
		Set("access_token_hash", accessTokenHash).
		Set("refresh_token_hash", refreshTokenHash).
		Set("last_activity", at).
		Where(squirrel.Eq{"id": sessionID, "is_active": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build rotate tokens sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("rotate session tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Invalidate marks the session inactive. Idempotent: a second call affects no
// rows and still succeeds.
func (r *SessionRepository) Invalidate(ctx context.Context, sessionID string) error {
	stmt, args, err := r.builder.Update("sessions").
		Set("is_active", false).
		Where(squirrel.Eq{"id": sessionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build invalidate session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	return nil
}

// InvalidateAllForUser bulk-invalidates a user's active sessions, optionally
// sparing one, and returns how many were invalidated.
func (r *SessionRepository) InvalidateAllForUser(ctx context.Context, userID string, exceptSessionID string) (int, error) {
	update := r.builder.Update("sessions").
		Set("is_active", false).
		Where(squirrel.Eq{"user_id": userID, "is_active": true})
	if exceptSessionID != "" {
		update = update.Where(squirrel.NotEq{"id": exceptSessionID})
	}

	stmt, args, err := update.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build invalidate all sessions sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("invalidate all sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListActiveByUser returns the user's active, unexpired sessions.
func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From("sessions").
		Where(squirrel.Eq{"user_id": userID, "is_active": true}).
		Where(squirrel.Expr("expires_at > now()")).
		OrderBy("last_activity DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list active sessions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.AccessTokenHash,
			&s.RefreshTokenHash,
			&s.IPAddress,
			&s.UserAgent,
			&s.DeviceInfo,
			&s.CreatedAt,
			&s.LastActivity,
			&s.ExpiresAt,
			&s.IsActive,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
