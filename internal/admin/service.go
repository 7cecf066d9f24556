package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nekogravitycat/museum-booking-backend/internal/auth"
)

// Service defines business logic related to admin accounts.
type Service interface {
	Login(ctx context.Context, email, password string) (*Admin, error)
	GetByID(ctx context.Context, id string) (*Admin, error)
	// EnsureSeed creates the admin account when no account with that email exists yet.
	EnsureSeed(ctx context.Context, email, password, displayName string) (*Admin, bool, error)
}

type service struct {
	repo   Repository
	hasher auth.PasswordHasher
	log    *zap.Logger

	minPasswordLength int
}

// NewService creates a new admin Service.
func NewService(repo Repository, hasher auth.PasswordHasher, log *zap.Logger) Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &service{
		repo:              repo,
		hasher:            hasher,
		log:               log.Named("admin"),
		minPasswordLength: 8,
	}
}

func (s *service) Login(ctx context.Context, email, password string) (*Admin, error) {
	cleanEmail := normalizeEmail(email)
	if cleanEmail == "" || strings.TrimSpace(password) == "" {
		return nil, ErrInvalidCredentials
	}

	a, err := s.repo.GetByEmail(ctx, cleanEmail)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to fetch admin by email: %w", err)
	}

	if err := s.hasher.Compare(a.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !a.IsActive {
		return nil, ErrInactive
	}

	// Best effort; a failed timestamp update does not fail the login.
	now := time.Now().UTC()
	if err := s.repo.UpdateLastLogin(ctx, a.ID, now); err != nil {
		s.log.Warn("failed to update last login", zap.String("admin_id", a.ID), zap.Error(err))
	} else {
		a.LastLoginAt = &now
	}

	return a, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Admin, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) EnsureSeed(ctx context.Context, email, password, displayName string) (*Admin, bool, error) {
	cleanEmail := normalizeEmail(email)
	if cleanEmail == "" {
		return nil, false, fmt.Errorf("admin email is required")
	}

	existing, err := s.repo.GetByEmail(ctx, cleanEmail)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("failed to check existing admin: %w", err)
	}

	if len(password) < s.minPasswordLength {
		return nil, false, fmt.Errorf("admin password must be at least %d characters", s.minPasswordLength)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, false, fmt.Errorf("failed to hash password: %w", err)
	}

	var displayNamePtr *string
	if d := strings.TrimSpace(displayName); d != "" {
		displayNamePtr = &d
	}

	a := &Admin{
		Email:        cleanEmail,
		PasswordHash: hash,
		DisplayName:  displayNamePtr,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, false, err
	}

	s.log.Info("seeded admin account", zap.String("admin_id", a.ID), zap.String("email", a.Email))
	return a, true, nil
}

// normalizeEmail trims spaces and lowercases the email.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
