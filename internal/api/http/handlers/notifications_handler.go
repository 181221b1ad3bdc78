package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/process-tracker/internal/api/dto"
	"github.com/spec-kit/process-tracker/internal/auth"
	"github.com/spec-kit/process-tracker/internal/service"
	apperrors "github.com/spec-kit/process-tracker/pkg/util"
)

// NotificationsHandler exposes the caller's inbox.
type NotificationsHandler struct {
	service *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notificationService *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{service: notificationService}
}

// List GET /notifications.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	limit, offset := parsePage(c)
	items, err := h.service.ListForUser(c.UserContext(), user.ID, c.QueryBool("unread"), limit, offset)
	if err != nil {
		return err
	}
	resp := make([]dto.NotificationResponse, 0, len(items))
	for _, n := range items {
		resp = append(resp, dto.NotificationResponse{
			ID:        n.ID,
			ProcessID: n.ProcessID,
			Message:   n.Message,
			Type:      n.Type,
			Read:      n.Read,
			Responded: n.Responded,
			CreatedAt: n.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": resp})
}

// MarkRead POST /notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.service.MarkRead(c.UserContext(), user.ID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
