package service

import (
	"context"
	"time"

	"github.com/carebridge/carebridge/internal/model"
	appErr "github.com/carebridge/carebridge/internal/pkg/errors"
	"github.com/carebridge/carebridge/internal/pkg/jwt"
	"github.com/carebridge/carebridge/internal/pkg/password"
	"github.com/carebridge/carebridge/internal/repo"
)

type AuthService struct {
	users     *repo.UserRepo
	jwtSecret []byte
	jwtTTL    time.Duration
}

func NewAuthService(users *repo.UserRepo, secret []byte, ttl time.Duration) *AuthService {
	return &AuthService{users: users, jwtSecret: secret, jwtTTL: ttl}
}

func (s *AuthService) Login(ctx context.Context, username, plainPassword string) (*model.User, string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, "", appErr.ErrUnauthorized
	}
	if err := password.Compare(user.PasswordHash, plainPassword); err != nil {
		return nil, "", appErr.ErrUnauthorized
	}
	if !user.IsActive {
		return nil, "", appErr.ErrInactive
	}
	token, err := jwt.GenerateToken(user.ID, user.Username, user.Role, s.jwtSecret, s.jwtTTL)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Refresh issues a fresh token for an already authenticated user.
func (s *AuthService) Refresh(ctx context.Context, userID string) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", appErr.ErrUnauthorized
	}
	if !user.IsActive {
		return "", appErr.ErrInactive
	}
	return jwt.GenerateToken(user.ID, user.Username, user.Role, s.jwtSecret, s.jwtTTL)
}

func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	return s.users.GetByID(ctx, userID)
}
