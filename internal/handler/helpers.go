package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/ai"
	"github.com/carebridge/carebridge/internal/middleware"
	"github.com/carebridge/carebridge/internal/model"
	"github.com/carebridge/carebridge/internal/pkg/errcode"
	appErr "github.com/carebridge/carebridge/internal/pkg/errors"
	"github.com/carebridge/carebridge/internal/pkg/response"
	"github.com/carebridge/carebridge/internal/service"
)

const contextActorKey = "actor"

func getUserID(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextUserIDKey)
	userID, _ := value.(string)
	return userID
}

// ActorLoader resolves the token's user once per request so handlers
// get a full account record, not just claims. Deactivated accounts are
// cut off here even if their token is still valid.
func ActorLoader(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := auth.Me(c.Request.Context(), getUserID(c))
		if err != nil {
			response.Error(c, errcode.ErrUnauthorized, "unknown user")
			c.Abort()
			return
		}
		if !user.IsActive {
			response.Error(c, errcode.ErrInactiveUser, "account deactivated")
			c.Abort()
			return
		}
		c.Set(contextActorKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *model.User {
	value, _ := c.Get(contextActorKey)
	user, _ := value.(*model.User)
	return user
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Warn("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrInactive):
		response.Error(c, errcode.ErrInactiveUser, "account deactivated")
	case errors.Is(err, appErr.ErrForbidden):
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.Is(err, ai.ErrUnavailable):
		response.Error(c, errcode.ErrAIUnavailable, "ai provider unavailable")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
