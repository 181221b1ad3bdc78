package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/process-tracker/internal/api/dto"
	"github.com/spec-kit/process-tracker/internal/auth"
	"github.com/spec-kit/process-tracker/internal/domain"
	"github.com/spec-kit/process-tracker/internal/service"
	apperrors "github.com/spec-kit/process-tracker/pkg/util"
)

// DepartmentsHandler exposes the department pipeline.
type DepartmentsHandler struct {
	service *service.DepartmentService
}

// NewDepartmentsHandler constructs handler.
func NewDepartmentsHandler(departmentService *service.DepartmentService) *DepartmentsHandler {
	return &DepartmentsHandler{service: departmentService}
}

// List GET /departments.
func (h *DepartmentsHandler) List(c *fiber.Ctx) error {
	departments := h.service.List()
	items := make([]dto.DepartmentResponse, 0, len(departments))
	for _, dept := range departments {
		items = append(items, departmentResponse(dept))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Create POST /departments.
func (h *DepartmentsHandler) Create(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.DepartmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	dept, err := h.service.Create(c.UserContext(), actor, departmentInput(req))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": departmentResponse(*dept)})
}

// Update PUT /departments/:id.
func (h *DepartmentsHandler) Update(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.DepartmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	dept, err := h.service.Update(c.UserContext(), actor, c.Params("id"), departmentInput(req))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": departmentResponse(*dept)})
}

func departmentInput(req dto.DepartmentRequest) service.DepartmentInput {
	return service.DepartmentInput{
		Name:                req.Name,
		Order:               req.Order,
		TimeLimitDays:       req.TimeLimitDays,
		IsTerminal:          req.IsTerminal,
		RequiresProcessType: req.RequiresProcessType,
	}
}

func departmentResponse(dept domain.Department) dto.DepartmentResponse {
	return dto.DepartmentResponse{
		ID:                  dept.ID,
		Name:                dept.Name,
		Order:               dept.Order,
		TimeLimitDays:       dept.TimeLimitDays,
		IsTerminal:          dept.IsTerminal,
		RequiresProcessType: dept.RequiresProcessType,
	}
}
