// Package middleware contains the gin middleware stack: reverse-proxy
// authentication, request metrics, and panic recovery logging.
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vngrid/caseguard/internal/models"
	apperrors "github.com/vngrid/caseguard/pkg/errors"
	"github.com/vngrid/caseguard/pkg/logger"
	"github.com/vngrid/caseguard/pkg/response"
)

// HeaderRemoteUser is set by the authenticating reverse proxy.
const HeaderRemoteUser = "Remote-User"

const ctxUserKey = "current_user"

// RemoteUser authenticates requests from the trusted reverse proxy. The proxy
// is the only ingress and has already verified the identity; unknown usernames
// are provisioned on first sight.
func RemoteUser(db *gorm.DB) gin.HandlerFunc {
	log := logger.WithModule("auth")

	return func(c *gin.Context) {
		username := strings.TrimSpace(c.GetHeader(HeaderRemoteUser))
		if username == "" {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		var user models.User
		err := db.WithContext(c.Request.Context()).
			Where(models.User{Username: username}).
			Attrs(models.User{IsActive: true}).
			FirstOrCreate(&user).Error
		if err != nil {
			log.Error("failed to load user", zap.String("username", username), zap.Error(err))
			response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
			c.Abort()
			return
		}

		if !user.IsActive {
			response.Error(c, apperrors.ErrForbidden)
			c.Abort()
			return
		}

		now := time.Now()
		if user.LastLoginAt == nil || now.Sub(*user.LastLoginAt) > time.Minute {
			if err := db.WithContext(c.Request.Context()).
				Model(&user).
				Update("last_login_at", now).Error; err != nil {
				log.Warn("failed to record login", zap.String("username", username), zap.Error(err))
			}
		}

		c.Set(ctxUserKey, &user)
		c.Next()
	}
}

// CurrentUser returns the authenticated user attached by RemoteUser.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, exists := c.Get(ctxUserKey)
	if !exists {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok
}

// SetCurrentUser attaches a user to the context directly, for tests.
func SetCurrentUser(c *gin.Context, user *models.User) {
	c.Set(ctxUserKey, user)
}
