package http

import (
	"net/http"
	"time"

	"meetrelay/internal/core/ports"
	"meetrelay/internal/core/services"
	"meetrelay/pkg/errors"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService    services.AuthService
	users          ports.UserRepository
	accessTokenTTL time.Duration
}

func NewAuthHandler(authService services.AuthService, users ports.UserRepository, accessTokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		users:          users,
		accessTokenTTL: accessTokenTTL,
	}
}

func (h *AuthHandler) SetupRoutes(api *gin.RouterGroup) {
	api.POST("/auth/refresh", h.RefreshToken)
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required,max=2048"`
}

func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("refresh_token is required"))
		return
	}

	claims, err := h.authService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		c.Error(errors.NewUnauthorizedError("invalid refresh token"))
		return
	}

	// Refresh tokens carry no profile; the name comes from the store.
	user, err := h.users.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		c.Error(errors.NewUnauthorizedError("unknown user"))
		return
	}

	accessToken, err := h.authService.GenerateToken(user.ID, user.Name)
	if err != nil {
		c.Error(errors.NewInternalError("failed to generate token"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": accessToken,
		"expires_in":   int(h.accessTokenTTL / time.Second),
	})
}
