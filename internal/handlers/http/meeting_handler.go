package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"meetrelay/internal/core/domain"
	"meetrelay/internal/core/ports"
	"meetrelay/internal/infrastructure/middleware"
	"meetrelay/pkg/errors"
	"meetrelay/pkg/validation"

	"github.com/gin-gonic/gin"
)

type MeetingHandler struct {
	relay ports.SignalingRelay
}

func NewMeetingHandler(relay ports.SignalingRelay) *MeetingHandler {
	return &MeetingHandler{relay: relay}
}

// SetupRoutes registers the meeting endpoints on an authenticated group.
func (h *MeetingHandler) SetupRoutes(api *gin.RouterGroup) {
	meetings := api.Group("/meetings/:id")
	{
		meetings.POST("/join", h.Join)
		meetings.POST("/leave", h.Leave)
		meetings.POST("/heartbeat", h.Heartbeat)
		meetings.POST("/messages", h.SendMessage)
		meetings.GET("/messages", h.ListMessages)
		meetings.POST("/signal", h.Signal)
	}
}

type PeerRequest struct {
	PeerID domain.PeerID `json:"peerId" binding:"required,max=64"`
}

type MessageRequest struct {
	Content string `json:"content"`
}

type SignalRequest struct {
	SenderPeerID   domain.PeerID     `json:"senderPeerId" binding:"required,max=64"`
	ReceiverPeerID domain.PeerID     `json:"receiverPeerId" binding:"required,max=64"`
	Type           domain.SignalType `json:"type" binding:"required,max=64"`
	Payload        json.RawMessage   `json:"payload"`
}

type MessageResponse struct {
	ID        int64            `json:"id"`
	MeetingID domain.MeetingID `json:"meetingId"`
	SenderID  domain.UserID    `json:"senderId"`
	Content   string           `json:"content"`
	CreatedAt time.Time        `json:"createdAt"`
}

func newMessageResponse(m *domain.MeetingMessage) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		MeetingID: m.MeetingID,
		SenderID:  m.SenderID,
		Content:   m.Body,
		CreatedAt: m.CreatedAt,
	}
}

// caller reads the meeting id and the authenticated user. It pushes an
// error and returns false when either is missing.
func caller(c *gin.Context) (domain.MeetingID, domain.UserID, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("authentication required"))
		return 0, 0, false
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.Error(errors.NewInvalidInputError("meeting id must be a positive integer"))
		return 0, 0, false
	}
	return domain.MeetingID(id), userID, true
}

func bindPeer(c *gin.Context) (domain.PeerID, bool) {
	var req PeerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("peerId is required"))
		return "", false
	}
	if err := validation.ValidatePeerID(string(req.PeerID)); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return "", false
	}
	return req.PeerID, true
}

func (h *MeetingHandler) Join(c *gin.Context) {
	meetingID, userID, ok := caller(c)
	if !ok {
		return
	}

	peerID, err := h.relay.Join(c.Request.Context(), meetingID, userID)
	if err != nil {
		// The session exists even when announcing it failed.
		if appErr := errors.GetAppError(err); appErr != nil && peerID != "" {
			appErr.WithContext("peer_id", peerID)
		}
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"peerId": peerID})
}

func (h *MeetingHandler) Leave(c *gin.Context) {
	meetingID, userID, ok := caller(c)
	if !ok {
		return
	}
	peerID, ok := bindPeer(c)
	if !ok {
		return
	}

	if err := h.relay.Leave(c.Request.Context(), userID, meetingID, peerID); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MeetingHandler) Heartbeat(c *gin.Context) {
	meetingID, userID, ok := caller(c)
	if !ok {
		return
	}
	peerID, ok := bindPeer(c)
	if !ok {
		return
	}

	if err := h.relay.Heartbeat(c.Request.Context(), userID, meetingID, peerID); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MeetingHandler) SendMessage(c *gin.Context) {
	meetingID, userID, ok := caller(c)
	if !ok {
		return
	}
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	msg, err := h.relay.SendMessage(c.Request.Context(), meetingID, userID, req.Content)
	if err != nil {
		if appErr := errors.GetAppError(err); appErr != nil && msg != nil {
			appErr.WithContext("message_id", msg.ID)
		}
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, newMessageResponse(msg))
}

func (h *MeetingHandler) ListMessages(c *gin.Context) {
	meetingID, userID, ok := caller(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.Error(errors.NewInvalidInputError("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	msgs, err := h.relay.ListMessages(c.Request.Context(), meetingID, userID, limit)
	if err != nil {
		c.Error(err)
		return
	}

	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, newMessageResponse(m))
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

func (h *MeetingHandler) Signal(c *gin.Context) {
	meetingID, userID, ok := caller(c)
	if !ok {
		return
	}
	var req SignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("senderPeerId, receiverPeerId and type are required"))
		return
	}

	sig := domain.SignalPayload{
		MeetingID:      meetingID,
		SenderPeerID:   req.SenderPeerID,
		ReceiverPeerID: req.ReceiverPeerID,
		Type:           req.Type,
		Payload:        req.Payload,
	}

	if err := h.relay.RelaySignal(c.Request.Context(), userID, sig); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusAccepted)
}
