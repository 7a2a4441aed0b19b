package history

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/berth-ops/notify-api/internal/handler"
	"github.com/berth-ops/notify-api/internal/model"
	"github.com/berth-ops/notify-api/internal/service/history"
)

type Handler struct {
	service history.HistoryServicer
}

func NewHandler(service history.HistoryServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/history", h.ListHistory)
}

type listHistoryRequest struct {
	EventType string `form:"event_type"`
	ChannelID string `form:"channel_id" binding:"omitempty,uuid"`
	Status    string `form:"status" binding:"omitempty,oneof=pending sent failed retrying"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset    int    `form:"offset" binding:"omitempty,min=0"`
}

// ListHistory returns delivery attempts, newest first, narrowed by the
// query filters.
func (h *Handler) ListHistory(c *gin.Context) {
	var req listHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	filter := &model.HistoryFilter{
		EventType: req.EventType,
		Status:    model.HistoryStatus(req.Status),
		Limit:     req.Limit,
		Offset:    req.Offset,
	}
	if req.ChannelID != "" {
		channelID, err := uuid.Parse(req.ChannelID)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid channel ID"))
			return
		}
		filter.ChannelID = channelID
	}

	entries, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(entries))
}
