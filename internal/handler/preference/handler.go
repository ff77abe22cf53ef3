package preference

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/handler"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/middleware"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/model"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/service/preference"
)

type Handler struct {
	service *preference.Service
}

func NewHandler(service *preference.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	prefs := r.Group("/notification-preferences")
	{
		prefs.GET("", h.List)
		prefs.PUT("", h.Upsert)
	}
}

func (h *Handler) List(c *gin.Context) {
	rows, err := h.service.ListPreferences(c.Request.Context(), middleware.UserID(c), middleware.TenantID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(rows))
}

type upsertRequest struct {
	ProjectID    *uuid.UUID      `json:"project_id"`
	Category     string          `json:"category"`
	EventType    string          `json:"event_type"`
	ChannelInApp bool            `json:"channel_in_app"`
	ChannelEmail bool            `json:"channel_email"`
	Frequency    model.Frequency `json:"frequency" binding:"omitempty,oneof=immediate digest off"`
	MinPriority  string          `json:"min_priority" binding:"omitempty,oneof=low normal high critical"`
	IsEnabled    bool            `json:"is_enabled"`
}

func (h *Handler) Upsert(c *gin.Context) {
	var req upsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	row, err := h.service.UpsertPreference(c.Request.Context(), &model.Preference{
		UserID:       middleware.UserID(c),
		TenantID:     middleware.TenantID(c),
		ProjectID:    req.ProjectID,
		Category:     req.Category,
		EventType:    req.EventType,
		ChannelInApp: req.ChannelInApp,
		ChannelEmail: req.ChannelEmail,
		Frequency:    req.Frequency,
		MinPriority:  model.Priority(req.MinPriority),
		IsEnabled:    req.IsEnabled,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(row))
}
