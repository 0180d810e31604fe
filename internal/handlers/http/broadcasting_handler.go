package http

import (
	"net/http"

	"meetrelay/internal/core/ports"
	"meetrelay/internal/infrastructure/middleware"
	"meetrelay/pkg/errors"

	"github.com/gin-gonic/gin"
)

// BroadcastingHandler answers subscription callbacks from an external
// broadcaster asking whether the caller may listen on a channel.
type BroadcastingHandler struct {
	authorizer ports.ChannelAuthorizer
}

func NewBroadcastingHandler(authorizer ports.ChannelAuthorizer) *BroadcastingHandler {
	return &BroadcastingHandler{authorizer: authorizer}
}

func (h *BroadcastingHandler) SetupRoutes(group *gin.RouterGroup) {
	group.POST("/broadcasting/auth", h.Authorize)
}

type ChannelAuthRequest struct {
	ChannelName string `json:"channel_name" form:"channel_name" binding:"required,max=200"`
	SocketID    string `json:"socket_id" form:"socket_id"`
}

func (h *BroadcastingHandler) Authorize(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("authentication required"))
		return
	}

	var req ChannelAuthRequest
	if err := c.ShouldBind(&req); err != nil {
		c.Error(errors.NewInvalidInputError("channel_name is required"))
		return
	}

	if err := h.authorizer.Check(c.Request.Context(), userID, req.ChannelName); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"channel":    req.ChannelName,
		"authorized": true,
	})
}
