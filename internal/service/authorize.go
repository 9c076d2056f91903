package service

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/authz"
	"github.com/carebridge/carebridge/internal/model"
	appErr "github.com/carebridge/carebridge/internal/pkg/errors"
)

// authorize asks the policy service and falls back to coarse role
// rules when it is unreachable. A policy outage degrades to the
// conservative fallback instead of a hard failure.
func authorize(ctx context.Context, client authz.Client, user *model.User, action string, resource *authz.Value, fallback authz.Resource) error {
	allowed, err := client.Authorize(ctx, authz.NewValue(authz.TypeUser, user.ID), action, resource)
	if err != nil {
		logutil.GetLogger(ctx).Warn("policy service unavailable, using role fallback",
			zap.String("user_id", user.ID),
			zap.String("action", action),
			zap.String("resource", resource.Type+":"+resource.ID),
			zap.Error(err),
		)
		allowed = authz.FallbackAllowed(user, action, fallback)
	}
	if !allowed {
		return appErr.ErrForbidden
	}
	return nil
}

// listAuthorized returns the resource ids the user may act on, or
// (nil, false) when the user may act on everything. The error path is
// handled by the caller with its own role fallback.
func listAuthorized(ctx context.Context, client authz.Client, user *model.User, action string, resourceType string) ([]string, bool, error) {
	if user.Role == model.RoleAdmin {
		return nil, false, nil
	}
	ids, err := client.ListAuthorized(ctx, authz.NewValue(authz.TypeUser, user.ID), action, resourceType)
	if err != nil {
		return nil, false, err
	}
	return ids, true, nil
}
