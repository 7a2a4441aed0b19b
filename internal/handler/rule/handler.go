package rule

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/berth-ops/notify-api/internal/handler"
	"github.com/berth-ops/notify-api/internal/model"
	"github.com/berth-ops/notify-api/internal/service/rule"
)

type Handler struct {
	service rule.RuleServicer
}

func NewHandler(service rule.RuleServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	rules := r.Group("/rules")
	{
		rules.POST("", h.CreateRule)
		rules.GET("", h.ListRules)
		rules.GET("/matrix", h.GetMatrix)
		rules.GET("/:id", h.GetRule)
		rules.PUT("/:id", h.UpdateRule)
		rules.DELETE("/:id", h.DeleteRule)
	}
}

type createRuleRequest struct {
	EventType       string `json:"event_type" binding:"required"`
	ChannelID       string `json:"channel_id" binding:"required,uuid"`
	Enabled         *bool  `json:"enabled"`
	MinSeverity     string `json:"min_severity" binding:"omitempty,oneof=info warning critical"`
	CooldownMinutes int    `json:"cooldown_minutes" binding:"omitempty,min=0"`
}

type updateRuleRequest struct {
	EventType       string `json:"event_type" binding:"required"`
	ChannelID       string `json:"channel_id" binding:"required,uuid"`
	Enabled         *bool  `json:"enabled" binding:"required"`
	MinSeverity     string `json:"min_severity" binding:"omitempty,oneof=info warning critical"`
	CooldownMinutes int    `json:"cooldown_minutes" binding:"omitempty,min=0"`
}

func (h *Handler) CreateRule(c *gin.Context) {
	var req createRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	channelID, err := uuid.Parse(req.ChannelID)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid channel ID"))
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	r := &model.Rule{
		EventType:       req.EventType,
		ChannelID:       channelID,
		Enabled:         enabled,
		MinSeverity:     model.Severity(req.MinSeverity),
		CooldownMinutes: req.CooldownMinutes,
	}

	if err := h.service.CreateRule(c.Request.Context(), r); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(r))
}

func (h *Handler) GetRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid rule ID"))
		return
	}

	r, err := h.service.GetRule(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(r))
}

func (h *Handler) ListRules(c *gin.Context) {
	rules, err := h.service.ListRules(c.Request.Context())
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rules))
}

// GetMatrix returns every rule grouped by event type.
func (h *Handler) GetMatrix(c *gin.Context) {
	matrix, err := h.service.Matrix(c.Request.Context())
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(matrix))
}

func (h *Handler) UpdateRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid rule ID"))
		return
	}

	var req updateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	channelID, err := uuid.Parse(req.ChannelID)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid channel ID"))
		return
	}

	r := &model.Rule{
		Base:            model.Base{ID: id},
		EventType:       req.EventType,
		ChannelID:       channelID,
		Enabled:         *req.Enabled,
		MinSeverity:     model.Severity(req.MinSeverity),
		CooldownMinutes: req.CooldownMinutes,
	}

	if err := h.service.UpdateRule(c.Request.Context(), r); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(r))
}

func (h *Handler) DeleteRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid rule ID"))
		return
	}

	if err := h.service.DeleteRule(c.Request.Context(), id); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}
