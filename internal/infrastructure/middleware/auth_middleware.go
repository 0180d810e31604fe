package middleware

import (
	"net/http"
	"strings"

	"meetrelay/internal/core/domain"
	"meetrelay/internal/core/services"
	"meetrelay/pkg/errors"
	"meetrelay/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	userIDKey   = "user_id"
	userNameKey = "user_name"
	serviceKey  = "service"
)

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.Split(c.GetHeader("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			abortWithError(c, errors.NewUnauthorizedError("authorization header required"))
			return
		}

		token, ok := bearerToken(c)
		if !ok {
			abortWithError(c, errors.NewUnauthorizedError("invalid authorization header format"))
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			abortWithError(c, errors.NewUnauthorizedError(err.Error()))
			return
		}

		setUser(c, claims)
		c.Next()
	}
}

// ServiceAuthMiddleware admits backend callers holding a service token.
// A valid user token is authenticated but not allowed here.
func ServiceAuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			abortWithError(c, errors.NewUnauthorizedError("service token required"))
			return
		}

		claims, err := authService.ValidateServiceToken(token)
		if err != nil {
			if _, userErr := authService.ValidateToken(token); userErr == nil {
				abortWithError(c, errors.NewForbiddenError("service token required"))
				return
			}
			abortWithError(c, errors.NewUnauthorizedError(err.Error()))
			return
		}

		c.Set(serviceKey, claims.Service)
		c.Next()
	}
}

// GetService returns the backend caller set by ServiceAuthMiddleware.
func GetService(c *gin.Context) string {
	return c.GetString(serviceKey)
}

// OptionalAuthMiddleware records the caller when a valid token is present
// and lets anonymous requests through.
func OptionalAuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if claims, err := authService.ValidateToken(token); err == nil {
				setUser(c, claims)
			}
		}
		c.Next()
	}
}

func setUser(c *gin.Context, claims *services.Claims) {
	c.Set(userIDKey, claims.UserID)
	c.Set(userNameKey, claims.Name)
	c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), int64(claims.UserID)))
}

// GetUserID returns the authenticated caller set by AuthMiddleware.
func GetUserID(c *gin.Context) (domain.UserID, bool) {
	v, exists := c.Get(userIDKey)
	if !exists {
		return 0, false
	}
	id, ok := v.(domain.UserID)
	return id, ok && id > 0
}

func GetUserName(c *gin.Context) string {
	return c.GetString(userNameKey)
}

func abortWithError(c *gin.Context, appErr *errors.AppError) {
	c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
		"error":   string(appErr.Code),
		"message": appErr.Message,
	})
}

// RequireUser rejects requests that reached it without an authenticated caller.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetUserID(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   string(errors.ErrCodeUnauthorized),
				"message": "authentication required",
			})
			return
		}
		c.Next()
	}
}
