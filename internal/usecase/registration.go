package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gosgconsulting/cms-identity/internal/core/domain"
	"github.com/gosgconsulting/cms-identity/internal/core/port"
	"github.com/gosgconsulting/cms-identity/internal/infra/config"
	"github.com/gosgconsulting/cms-identity/internal/infra/logger"
	"github.com/gosgconsulting/cms-identity/internal/infra/security"
	"github.com/gosgconsulting/cms-identity/internal/repository"
)

// RegistrationService creates accounts and provisions the bootstrap admin.
type RegistrationService struct {
	cfg       *config.AppConfig
	users     port.UserRepository
	audit     *AuditService
	hasher    *security.Hasher
	validator *security.PasswordValidator
	logger    *zap.Logger
	now       func() time.Time
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(
	cfg *config.AppConfig,
	users port.UserRepository,
	audit *AuditService,
	hasher *security.Hasher,
	validator *security.PasswordValidator,
	log *zap.Logger,
) *RegistrationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RegistrationService{
		cfg:       cfg,
		users:     users,
		audit:     audit,
		hasher:    hasher,
		validator: validator,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *RegistrationService) WithClock(clock func() time.Time) *RegistrationService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// CreateUserInput carries one account creation request.
type CreateUserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
	Status    domain.AccountStatus
	ActorID   *string
	IP        string
}

// CreateUser validates and persists a new account. A duplicate email reports
// VALIDATION_ERROR with the same wording as any other validation failure so
// registration cannot be used to enumerate accounts.
func (s *RegistrationService) CreateUser(ctx context.Context, input CreateUserInput) *CreateUserResult {
	now := s.now()
	email := domain.NormalizeEmail(input.Email)

	if email == "" || input.Password == "" {
		return &CreateUserResult{
			ErrorCode: domain.CodeValidationError,
			Error:     "email and password are required",
		}
	}

	report := s.validator.ValidateStrength(input.Password)
	if !report.IsValid {
		return &CreateUserResult{
			ErrorCode: domain.CodeValidationError,
			Error:     "password does not meet the strength requirements",
			Strength:  &report,
		}
	}

	encoded, salt, err := s.hasher.Hash(ctx, input.Password)
	if err != nil {
		s.logger.Error("password hash failed during registration", zap.Error(err))
		return &CreateUserResult{ErrorCode: domain.CodeSystemError, Error: "internal error"}
	}

	status := input.Status
	if status == "" {
		status = domain.StatusPending
	}
	role := input.Role
	if role == "" {
		role = "user"
	}

	user := domain.User{
		ID:                uuid.NewString(),
		Email:             email,
		FirstName:         input.FirstName,
		LastName:          input.LastName,
		PasswordHash:      encoded,
		PasswordSalt:      salt,
		Role:              role,
		Status:            status,
		IsActive:          status == domain.StatusActive,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.logger.Info("registration rejected for existing email",
				zap.String("email", logger.MaskEmail(email)),
			)
			return &CreateUserResult{
				ErrorCode: domain.CodeValidationError,
				Error:     "unable to create the account with the supplied details",
			}
		}
		s.logger.Error("user insert failed", zap.Error(err))
		return &CreateUserResult{ErrorCode: domain.CodeSystemError, Error: "internal error"}
	}

	history := domain.PasswordHistoryEntry{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		PasswordHash: encoded,
		PasswordSalt: salt,
		CreatedAt:    now,
	}
	if err := s.users.AddPasswordHistory(ctx, history); err != nil {
		s.logger.Warn("password history write failed", zap.Error(err))
	}

	s.audit.LogActivity(ctx, ActivityInput{
		ActorID:      input.ActorID,
		Action:       domain.ActionRegister,
		ResourceType: strPtr("user"),
		ResourceID:   &user.ID,
		IP:           optStr(input.IP),
		Success:      true,
	})

	sanitized := user.Sanitized()
	return &CreateUserResult{Success: true, User: &sanitized, Strength: &report}
}

// EnsureBootstrapAdmin creates the configured admin account on first start.
// Subsequent starts find the account and do nothing. Called before the service
// accepts traffic, so failures here are fatal.
func (s *RegistrationService) EnsureBootstrapAdmin(ctx context.Context) error {
	email := domain.NormalizeEmail(s.cfg.Bootstrap.AdminEmail)
	if email == "" {
		return nil
	}
	if s.cfg.Bootstrap.AdminPassword == "" {
		return fmt.Errorf("bootstrap admin %q configured without a password", logger.MaskEmail(email))
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("bootstrap admin lookup: %w", err)
	}

	result := s.CreateUser(ctx, CreateUserInput{
		Email:     email,
		Password:  s.cfg.Bootstrap.AdminPassword,
		FirstName: "System",
		LastName:  "Administrator",
		Role:      "admin",
		Status:    domain.StatusActive,
	})
	if !result.Success {
		// Two instances racing to create the same admin is fine.
		if result.ErrorCode == domain.CodeValidationError {
			if _, err := s.users.GetByEmail(ctx, email); err == nil {
				return nil
			}
		}
		return fmt.Errorf("bootstrap admin creation failed: %s", result.Error)
	}

	s.logger.Info("bootstrap admin created", zap.String("email", logger.MaskEmail(email)))
	return nil
}
