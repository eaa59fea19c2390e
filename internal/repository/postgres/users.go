package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosgconsulting/cms-identity/internal/core/domain"
	"github.com/gosgconsulting/cms-identity/internal/core/port"
	"github.com/gosgconsulting/cms-identity/internal/repository"
)

var userColumns = []string{
	"id",
	"email",
	"first_name",
	"last_name",
	"password_hash",
	"password_salt",
	"role",
	"status",
	"is_active",
	"failed_login_attempts",
	"locked_until",
	"last_login",
	"last_login_ip",
	"password_changed_at",
	"created_at",
	"updated_at",
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{pool: r.pool, exec: tx, builder: r.builder}
}

// Create inserts a new user row. Emails are stored lowercased; a unique
// violation maps to repository.ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Insert("users").
		Columns(userColumns...).
		Values(
			user.ID,
			domain.NormalizeEmail(user.Email),
			user.FirstName,
			user.LastName,
			user.PasswordHash,
			user.PasswordSalt,
			user.Role,
			user.Status,
			user.IsActive,
			user.FailedLoginAttempts,
			user.LockedUntil,
			user.LastLogin,
			user.LastLoginIP,
			user.PasswordChangedAt,
			user.CreatedAt,
			user.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("users").
		Where(squirrel.Eq{"email": domain.NormalizeEmail(email)}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user by email sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

func (r *UserRepository) scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&user.PasswordSalt,
		&user.Role,
		&user.Status,
		&user.IsActive,
		&user.FailedLoginAttempts,
		&user.LockedUntil,
		&user.LastLogin,
		&user.LastLoginIP,
		&user.PasswordChangedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &user, nil
}

// UpdateStatus moves the user to a new lifecycle status.
func (r *UserRepository) UpdateStatus(ctx context.Context, id string, status domain.AccountStatus, isActive bool) error {
	stmt, args, err := r.builder.Update("users").
		Set("status", status).
		Set("is_active", isActive).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update status sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update user status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the stored hash and salt and stamps the change time.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash, passwordSalt string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("users").
		Set("password_hash", passwordHash).
		Set("password_salt", passwordSalt).
		Set("password_changed_at", changedAt).
		Set("updated_at", changedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// RecordFailedAttempt persists the failure counter and, once the threshold is
// reached, the lockout deadline.
func (r *UserRepository) RecordFailedAttempt(ctx context.Context, id string, attempts int, lockedUntil *time.Time) error {
	stmt, args, err := r.builder.Update("users").
		Set("failed_login_attempts", attempts).
		Set("locked_until", lockedUntil).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record failed attempt sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("record failed attempt: %w", err)
	}
	return nil
}

// ResetFailureCounters zeroes the counter and clears the lockout deadline.
func (r *UserRepository) ResetFailureCounters(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("users").
		Set("failed_login_attempts", 0).
		Set("locked_until", nil).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reset failure counters sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("reset failure counters: %w", err)
	}
	return nil
}

// UpdateLastLogin stamps a successful authentication.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time, ip *string) error {
	stmt, args, err := r.builder.Update("users").
		Set("last_login", at).
		Set("last_login_ip", ip).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update last login sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// HardDelete removes the user row permanently. Normal flows deactivate
// instead; this is the compliance path only.
func (r *UserRepository) HardDelete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete user sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListPasswordHistory returns the most recent history entries, newest first.
func (r *UserRepository) ListPasswordHistory(ctx context.Context, userID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	if limit <= 0 {
		limit = 5
	}

	stmt, args, err := r.builder.
		Select("id", "user_id", "password_hash", "password_salt", "created_at").
		From("password_history").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select password history sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select password history: %w", err)
	}
	defer rows.Close()

	var entries []domain.PasswordHistoryEntry
	for rows.Next() {
		var e domain.PasswordHistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.PasswordHash, &e.PasswordSalt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan password history: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate password history: %w", err)
	}

	return entries, nil
}

// AddPasswordHistory appends an immutable history entry.
func (r *UserRepository) AddPasswordHistory(ctx context.Context, entry domain.PasswordHistoryEntry) error {
	stmt, args, err := r.builder.Insert("password_history").
		Columns("id", "user_id", "password_hash", "password_salt", "created_at").
		Values(entry.ID, entry.UserID, entry.PasswordHash, entry.PasswordSalt, entry.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert password history sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert password history: %w", err)
	}
	return nil
}

// TrimPasswordHistory drops entries beyond the newest keep rows.
func (r *UserRepository) TrimPasswordHistory(ctx context.Context, userID string, keep int) error {
	if keep <= 0 {
		return nil
	}

	// squirrel has no DELETE ... NOT IN (subquery with LIMIT) helper, keep raw.
	stmt := `DELETE FROM password_history
		WHERE user_id = $1
		  AND id NOT IN (
			SELECT id FROM password_history
			WHERE user_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		  )`

	if _, err := r.exec.Exec(ctx, stmt, userID, keep); err != nil {
		return fmt.Errorf("trim password history: %w", err)
	}
	return nil
}

var _ port.UserRepository = (*UserRepository)(nil)
