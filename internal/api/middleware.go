package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"jobmate/match-service/internal/apperror"
)

const ginContextKeyUserID = "userID"

// IdentityProvider resolves the calling user of a request.
type IdentityProvider interface {
	UserID(c *gin.Context) (string, error)
}

// HeaderIdentity trusts a user id header set by the gateway.
type HeaderIdentity struct {
	Header string
}

// DefaultIdentity reads the x-user-id header forwarded by the gateway.
var DefaultIdentity = HeaderIdentity{Header: "x-user-id"}

// UserID implements IdentityProvider.
func (h HeaderIdentity) UserID(c *gin.Context) (string, error) {
	id := strings.TrimSpace(c.GetHeader(h.Header))
	if id == "" {
		return "", apperror.NewUnauthorized("missing " + h.Header + " header")
	}
	return id, nil
}

// AuthMiddleware rejects requests without an identity and stores the user
// id on the gin context.
func AuthMiddleware(idp IdentityProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := idp.UserID(c)
		if err != nil {
			c.Error(err) //nolint:errcheck
			c.Abort()
			return
		}
		c.Set(ginContextKeyUserID, userID)
		c.Next()
	}
}

func userIDFromGinContext(c *gin.Context) string {
	return c.GetString(ginContextKeyUserID)
}

// ErrorMiddleware renders the last error attached by a handler.
func ErrorMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		var appErr *apperror.AppError
		if !errors.As(err, &appErr) {
			appErr = apperror.NewInternal("unclassified error", err)
		}
		status := apperror.ToHTTPStatus(appErr)
		if status >= 500 {
			log.Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Error(err),
			)
		} else {
			log.Debug("request rejected", zap.String("path", c.FullPath()), zap.Error(err))
		}
		if !c.Writer.Written() {
			c.AbortWithStatusJSON(status, appErr.ToJSON())
		}
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
		)
	}
}
