package notification

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/handler"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/middleware"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/model"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/service/notifier"
	apperrors "github.com/Bruno7kp/gestor-de-obras-sub001/pkg/errors"
)

type Handler struct {
	service *notifier.Service
}

func NewHandler(service *notifier.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.POST("/emit", h.Emit)
		notifications.GET("", h.List)
		notifications.POST("/:id/read", h.MarkRead)
		notifications.POST("/read-all", h.MarkAllRead)
		notifications.DELETE("/:id", h.Remove)
		notifications.GET("/digest", h.DigestPreview)
		notifications.POST("/deliveries/process", h.ProcessDeliveries)
	}
}

// Emit is the single ingress for business modules producing events.
func (h *Handler) Emit(c *gin.Context) {
	var event model.NotificationEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	notification, err := h.service.Emit(c.Request.Context(), &event)
	if err != nil {
		status := http.StatusInternalServerError
		if appErr, ok := err.(*apperrors.AppError); ok && appErr.Code == apperrors.ErrBadRequest {
			status = http.StatusBadRequest
		}
		c.JSON(status, handler.NewErrorResponse(err.Error()))
		return
	}
	if notification == nil {
		// Nobody was eligible; a normal outcome.
		c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(notification))
}

type listQuery struct {
	ProjectID  *uuid.UUID `form:"project_id"`
	UnreadOnly bool       `form:"unread_only"`
	Limit      int        `form:"limit" binding:"omitempty,min=1,max=200"`
}

func (h *Handler) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	rows, err := h.service.ListForUser(c.Request.Context(), &notifier.FeedRequest{
		UserID:       middleware.UserID(c),
		TenantID:     middleware.TenantID(c),
		ProjectID:    q.ProjectID,
		UnreadOnly:   q.UnreadOnly,
		Limit:        q.Limit,
		Permissions:  middleware.Permissions(c),
		IsPrivileged: middleware.IsPrivileged(c),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(rows))
}

func (h *Handler) MarkRead(c *gin.Context) {
	notificationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid notification ID"))
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), notificationID, middleware.UserID(c)); err != nil {
		if apperrors.IsNotFound(err) {
			c.JSON(http.StatusNotFound, handler.NewErrorResponse("notification not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	var projectID *uuid.UUID
	if raw := c.Query("project_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid project ID"))
			return
		}
		projectID = &id
	}

	updated, err := h.service.MarkAllRead(c.Request.Context(), middleware.UserID(c), middleware.TenantID(c), projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"updated": updated}))
}

func (h *Handler) Remove(c *gin.Context) {
	notificationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid notification ID"))
		return
	}

	if err := h.service.RemoveForUser(c.Request.Context(), notificationID, middleware.UserID(c)); err != nil {
		if apperrors.IsNotFound(err) {
			c.JSON(http.StatusNotFound, handler.NewErrorResponse("notification not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

type digestQuery struct {
	WindowMinutes int        `form:"window_minutes"`
	LimitGroups   int        `form:"limit_groups"`
	ProjectID     *uuid.UUID `form:"project_id"`
	UnreadOnly    bool       `form:"unread_only"`
}

func (h *Handler) DigestPreview(c *gin.Context) {
	var q digestQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	summary, err := h.service.DigestPreview(c.Request.Context(), middleware.UserID(c), middleware.TenantID(c), model.DigestOptions{
		WindowMinutes: q.WindowMinutes,
		LimitGroups:   q.LimitGroups,
		ProjectID:     q.ProjectID,
		UnreadOnly:    q.UnreadOnly,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(summary))
}

type processRequest struct {
	Limit int `json:"limit" binding:"omitempty,min=1,max=200"`
}

// ProcessDeliveries is the external periodic trigger for the delivery
// processor.
func (h *Handler) ProcessDeliveries(c *gin.Context) {
	var req processRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
			return
		}
	}

	result, err := h.service.ProcessPendingDeliveries(c.Request.Context(), req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}
