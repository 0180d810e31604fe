package http

import (
	"net/http"
	"time"

	"meetrelay/internal/core/domain"
	"meetrelay/internal/core/ports"
	"meetrelay/internal/infrastructure/middleware"
	"meetrelay/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ReportHandler struct {
	relay  ports.SignalingRelay
	logger *zap.SugaredLogger
}

func NewReportHandler(relay ports.SignalingRelay, logger *zap.SugaredLogger) *ReportHandler {
	return &ReportHandler{relay: relay, logger: logger}
}

func (h *ReportHandler) SetupRoutes(api *gin.RouterGroup) {
	api.POST("/reports/notify", h.Notify)
}

type ReportRequest struct {
	ID             domain.ReportID `json:"id" binding:"required"`
	Code           string          `json:"code" binding:"max=64"`
	ReportableType string          `json:"reportableType" binding:"required,max=128"`
	ReportableID   int64           `json:"reportableId" binding:"required"`
	CreatedBy      domain.UserID   `json:"createdBy"`
	CreatedAt      *time.Time      `json:"createdAt,omitempty"`
}

// Notify is called by the records application after it stored a report.
// The route sits behind ServiceAuthMiddleware.
func (h *ReportHandler) Notify(c *gin.Context) {
	var req ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("id, reportableType and reportableId are required"))
		return
	}

	report := &domain.Report{
		ID:             req.ID,
		Code:           req.Code,
		ReportableType: req.ReportableType,
		ReportableID:   req.ReportableID,
		CreatedBy:      req.CreatedBy,
	}
	if req.CreatedAt != nil {
		report.CreatedAt = *req.CreatedAt
	}

	h.logger.Debugw("report notification",
		"service", middleware.GetService(c),
		"report_id", report.ID,
		"reportable_type", report.ReportableType,
	)

	if err := h.relay.NotifyReportCreated(c.Request.Context(), report); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusAccepted)
}
