package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/licenseops/licenseops/internal/shared"
)

// ErrPasswordReused is returned when the new password equals the current one.
var ErrPasswordReused = errors.New("new password must differ from the current one")

// Service wraps authentication business rules.
type Service struct {
	repo Repository
	cost int
	now  func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, cost: bcrypt.DefaultCost, now: time.Now}
}

// Authenticate validates username/password credentials. Unknown, inactive and
// mismatching accounts all yield shared.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive || !user.Role.Known() {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if err := s.repo.TouchLogin(ctx, user.ID, s.now()); err != nil {
		return nil, fmt.Errorf("auth: record login: %w", err)
	}
	return user, nil
}

// ChangePassword verifies the current password and stores a hash of the new one.
func (s *Service) ChangePassword(ctx context.Context, username, current, next string) (*User, error) {
	user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if current == next {
		return nil, ErrPasswordReused
	}
	hash, err := HashPassword(next, s.cost)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, hash); err != nil {
		return nil, err
	}
	user.PasswordHash = hash
	user.PasswordChangeRequired = false
	return user, nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}
