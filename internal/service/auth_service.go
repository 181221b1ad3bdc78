package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/process-tracker/internal/auth"
	"github.com/spec-kit/process-tracker/internal/catalog"
	"github.com/spec-kit/process-tracker/internal/config"
	"github.com/spec-kit/process-tracker/internal/domain"
	"github.com/spec-kit/process-tracker/internal/repository"
	apperrors "github.com/spec-kit/process-tracker/pkg/util"
)

// AuthService coordinates login and user provisioning.
type AuthService struct {
	users      repository.UserRepository
	catalog    *catalog.Catalog
	tokenMgr   *auth.TokenManager
	bcryptCost int
	logger     *zap.Logger
}

// AuthDependencies encapsulates requirements for the auth service.
type AuthDependencies struct {
	UserRepo repository.UserRepository
	Catalog  *catalog.Catalog
	Logger   *zap.Logger
}

// UserCreateInput describes an account created by an administrator.
type UserCreateInput struct {
	Name                string
	Email               string
	Password            string
	Profile             domain.UserProfile
	AssignedDepartments []string
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      deps.UserRepo,
		catalog:    deps.Catalog,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost: cfg.Auth.BcryptCost,
		logger:     logger,
	}
}

// Login authenticates a user by email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, time.Time, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, mapRepoError(err, "user", nil)
	}
	if !user.Active {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("user inactive")
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(user)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	return user, token, exp, nil
}

// CreateUser provisions an account. Admin only.
func (s *AuthService) CreateUser(ctx context.Context, actor *domain.User, input UserCreateInput) (*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("admin profile required")
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.NewValidationError("name and email are required", nil)
	}
	profile := input.Profile
	if profile == "" {
		profile = domain.UserProfileUser
	}
	if profile != domain.UserProfileUser && profile != domain.UserProfileAdmin {
		return nil, apperrors.NewValidationError("unknown profile", map[string]any{"profile": profile})
	}
	for _, id := range input.AssignedDepartments {
		if _, ok := s.catalog.Get(id); !ok {
			return nil, apperrors.NewValidationError("unknown department", map[string]any{"department_id": id})
		}
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Name:                strings.TrimSpace(input.Name),
		Email:               email,
		PasswordHash:        hash,
		Active:              true,
		Profile:             profile,
		AssignedDepartments: input.AssignedDepartments,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, mapRepoError(err, "user", map[string]any{"email": email})
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("actor_id", actor.ID))
	return user, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
