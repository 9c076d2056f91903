package service

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/authz"
	"github.com/carebridge/carebridge/internal/model"
	appErr "github.com/carebridge/carebridge/internal/pkg/errors"
	"github.com/carebridge/carebridge/internal/pkg/password"
	"github.com/carebridge/carebridge/internal/pkg/timeutil"
	"github.com/carebridge/carebridge/internal/repo"
)

type UserService struct {
	users  *repo.UserRepo
	syncer *authz.Syncer
}

func NewUserService(users *repo.UserRepo, syncer *authz.Syncer) *UserService {
	return &UserService{users: users, syncer: syncer}
}

type CreateUserRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	Department string `json:"department"`
}

// Create registers a staff account. Only admins manage accounts.
func (s *UserService) Create(ctx context.Context, actor *model.User, req *CreateUserRequest) (*model.User, error) {
	if actor.Role != model.RoleAdmin {
		return nil, appErr.ErrForbidden
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || len(req.Password) < 8 {
		return nil, appErr.ErrInvalid
	}
	if !model.ValidRole(req.Role) {
		return nil, appErr.ErrInvalid
	}
	exists, err := s.users.ExistsByUsernameOrEmail(ctx, req.Username, req.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, appErr.ErrConflict
	}
	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	now := timeutil.NowUnix()
	user := &model.User{
		ID:           newID(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		Department:   strings.TrimSpace(req.Department),
		IsActive:     true,
		Ctime:        now,
		Mtime:        now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	// Facts are best effort; the record write already committed and a
	// policy outage must not undo it.
	if err := s.syncer.SyncUserAccess(ctx, user); err != nil {
		logutil.GetLogger(ctx).Warn("sync user facts failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, actor *model.User, userID string) (*model.User, error) {
	if actor.Role != model.RoleAdmin && actor.ID != userID {
		return nil, appErr.ErrForbidden
	}
	return s.users.GetByID(ctx, userID)
}

func (s *UserService) List(ctx context.Context, actor *model.User, offset, limit uint) ([]*model.User, error) {
	if actor.Role != model.RoleAdmin {
		return nil, appErr.ErrForbidden
	}
	if limit == 0 || limit > 100 {
		limit = 50
	}
	return s.users.List(ctx, offset, limit)
}

type UpdateUserRequest struct {
	Email      *string `json:"email"`
	Role       *string `json:"role"`
	Department *string `json:"department"`
	IsActive   *bool   `json:"is_active"`
}

// Update changes account attributes. Role and department changes
// recompute the account's policy facts.
func (s *UserService) Update(ctx context.Context, actor *model.User, userID string, req *UpdateUserRequest) (*model.User, error) {
	if actor.Role != model.RoleAdmin {
		return nil, appErr.ErrForbidden
	}
	update := map[string]interface{}{
		"mtime": timeutil.NowUnix(),
	}
	accessChanged := false
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email == "" {
			return nil, appErr.ErrInvalid
		}
		update["email"] = email
	}
	if req.Role != nil {
		if !model.ValidRole(*req.Role) {
			return nil, appErr.ErrInvalid
		}
		update["role"] = *req.Role
		accessChanged = true
	}
	if req.Department != nil {
		update["department"] = strings.TrimSpace(*req.Department)
		accessChanged = true
	}
	if req.IsActive != nil {
		update["is_active"] = *req.IsActive
		accessChanged = true
	}
	if err := s.users.Update(ctx, userID, update); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if accessChanged {
		if err := s.syncer.SyncUserAccess(ctx, user); err != nil {
			logutil.GetLogger(ctx).Warn("sync user facts failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	return user, nil
}
