package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/carebridge/internal/model"
	appErr "github.com/carebridge/carebridge/internal/pkg/errors"
	"github.com/carebridge/carebridge/internal/pkg/jwt"
	"github.com/carebridge/carebridge/internal/pkg/password"
	"github.com/carebridge/carebridge/internal/repo"
)

func userRows(t *testing.T, user *model.User, plainPassword string) *sqlmock.Rows {
	t.Helper()
	hash, err := password.Hash(plainPassword)
	require.NoError(t, err)
	return sqlmock.NewRows([]string{
		"id", "username", "email", "password_hash", "role", "department", "is_active", "ctime", "mtime",
	}).AddRow(user.ID, user.Username, user.Email, hash, user.Role, user.Department, user.IsActive, user.Ctime, user.Mtime)
}

func newAuthTestService(t *testing.T) (*AuthService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewAuthService(repo.NewUserRepo(db), []byte("test-secret"), time.Hour), mock
}

func TestAuthServiceLogin(t *testing.T) {
	svc, mock := newAuthTestService(t)
	doctor := &model.User{ID: "u1", Username: "drwho", Email: "drwho@example.com", Role: model.RoleDoctor, Department: "cardiology", IsActive: true}
	mock.ExpectQuery("SELECT .+ FROM users").WillReturnRows(userRows(t, doctor, "correct-horse"))

	user, token, err := svc.Login(context.Background(), "drwho", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, "u1", user.ID)

	claims, err := jwt.ParseToken(token, []byte("test-secret"))
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)
	require.Equal(t, model.RoleDoctor, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	svc, mock := newAuthTestService(t)
	doctor := &model.User{ID: "u1", Username: "drwho", Role: model.RoleDoctor, IsActive: true}
	mock.ExpectQuery("SELECT .+ FROM users").WillReturnRows(userRows(t, doctor, "correct-horse"))

	_, _, err := svc.Login(context.Background(), "drwho", "battery-staple")
	require.ErrorIs(t, err, appErr.ErrUnauthorized)
}

func TestAuthServiceLoginUnknownUser(t *testing.T) {
	svc, mock := newAuthTestService(t)
	mock.ExpectQuery("SELECT .+ FROM users").WillReturnRows(sqlmock.NewRows([]string{
		"id", "username", "email", "password_hash", "role", "department", "is_active", "ctime", "mtime",
	}))

	_, _, err := svc.Login(context.Background(), "ghost", "whatever")
	require.ErrorIs(t, err, appErr.ErrUnauthorized)
}

func TestAuthServiceLoginInactive(t *testing.T) {
	svc, mock := newAuthTestService(t)
	nurse := &model.User{ID: "u2", Username: "nina", Role: model.RoleNurse, IsActive: false}
	mock.ExpectQuery("SELECT .+ FROM users").WillReturnRows(userRows(t, nurse, "correct-horse"))

	_, _, err := svc.Login(context.Background(), "nina", "correct-horse")
	require.ErrorIs(t, err, appErr.ErrInactive)
}
