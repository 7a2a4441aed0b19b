package event

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/berth-ops/notify-api/internal/handler"
	"github.com/berth-ops/notify-api/internal/model"
)

// Emitter is the slice of the event service the ingestion endpoint needs.
type Emitter interface {
	Emit(ctx context.Context, eventType string, severity model.Severity, message string, metadata model.JSONMap) *model.DispatchResult
}

type Handler struct {
	emitter Emitter
}

func NewHandler(emitter Emitter) *Handler {
	return &Handler{emitter: emitter}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/events", h.EmitEvent)
}

type emitEventRequest struct {
	EventType string        `json:"event_type" binding:"required"`
	Severity  string        `json:"severity" binding:"required,oneof=info warning critical"`
	Message   string        `json:"message" binding:"required"`
	Metadata  model.JSONMap `json:"metadata"`
}

// EmitEvent ingests a platform event and dispatches it synchronously. The
// response carries the aggregate outcome; a failed delivery is reported in
// the result, never as an HTTP error.
func (h *Handler) EmitEvent(c *gin.Context) {
	var req emitEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	result := h.emitter.Emit(c.Request.Context(), req.EventType, model.Severity(req.Severity), req.Message, req.Metadata)
	c.JSON(http.StatusAccepted, handler.NewSuccessResponse(result))
}
