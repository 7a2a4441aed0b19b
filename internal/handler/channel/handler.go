package channel

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/berth-ops/notify-api/internal/handler"
	"github.com/berth-ops/notify-api/internal/model"
	"github.com/berth-ops/notify-api/internal/service/channel"
)

type Handler struct {
	service channel.ChannelServicer
}

func NewHandler(service channel.ChannelServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	channels := r.Group("/channels")
	{
		channels.POST("", h.CreateChannel)
		channels.GET("", h.ListChannels)
		channels.GET("/providers", h.ListProviders)
		channels.GET("/:id", h.GetChannel)
		channels.PUT("/:id", h.UpdateChannel)
		channels.DELETE("/:id", h.DeleteChannel)
		channels.POST("/:id/test", h.TestChannel)
	}
}

type createChannelRequest struct {
	Name     string        `json:"name" binding:"required"`
	Provider string        `json:"provider" binding:"required"`
	Enabled  *bool         `json:"enabled"`
	Config   model.JSONMap `json:"config" binding:"required"`
}

type updateChannelRequest struct {
	Name    string        `json:"name" binding:"required"`
	Enabled *bool         `json:"enabled" binding:"required"`
	Config  model.JSONMap `json:"config" binding:"required"`
}

type testChannelRequest struct {
	Recipient string `json:"recipient" binding:"omitempty,email"`
}

func (h *Handler) CreateChannel(c *gin.Context) {
	var req createChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	ch := &model.Channel{
		Name:     req.Name,
		Provider: model.Provider(req.Provider),
		Enabled:  enabled,
		Config:   req.Config,
	}

	if err := h.service.CreateChannel(c.Request.Context(), ch); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(ch))
}

func (h *Handler) GetChannel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid channel ID"))
		return
	}

	ch, err := h.service.GetChannel(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(ch))
}

func (h *Handler) ListChannels(c *gin.Context) {
	channels, err := h.service.ListChannels(c.Request.Context())
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(channels))
}

func (h *Handler) ListProviders(c *gin.Context) {
	c.JSON(http.StatusOK, handler.NewSuccessResponse(h.service.Providers()))
}

func (h *Handler) UpdateChannel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid channel ID"))
		return
	}

	var req updateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	ch := &model.Channel{
		Base:    model.Base{ID: id},
		Name:    req.Name,
		Enabled: *req.Enabled,
		Config:  req.Config,
	}

	if err := h.service.UpdateChannel(c.Request.Context(), ch); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(ch))
}

func (h *Handler) DeleteChannel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid channel ID"))
		return
	}

	if err := h.service.DeleteChannel(c.Request.Context(), id); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

type testChannelResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// TestChannel fires the channel's self-test. The HTTP status reflects the
// API call; the delivery outcome lives in the body, failed probes
// included.
func (h *Handler) TestChannel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid channel ID"))
		return
	}

	var req testChannelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
			return
		}
	}

	result, err := h.service.TestChannel(c.Request.Context(), id, req.Recipient)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(testChannelResponse{
		Success:   result.Success,
		Message:   result.Message,
		Timestamp: result.Timestamp,
	}))
}
