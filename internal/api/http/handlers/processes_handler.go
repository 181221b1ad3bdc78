package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/process-tracker/internal/api/dto"
	"github.com/spec-kit/process-tracker/internal/auth"
	"github.com/spec-kit/process-tracker/internal/domain"
	"github.com/spec-kit/process-tracker/internal/service"
	apperrors "github.com/spec-kit/process-tracker/pkg/util"
)

// ProcessesHandler manages process endpoints.
type ProcessesHandler struct {
	service *service.ProcessService
}

// NewProcessesHandler constructs handler.
func NewProcessesHandler(processService *service.ProcessService) *ProcessesHandler {
	return &ProcessesHandler{service: processService}
}

// Create POST /processes.
func (h *ProcessesHandler) Create(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateProcessRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	process, err := h.service.CreateProcess(c.UserContext(), user, service.ProcessCreateInput{
		ProtocolNumber: req.ProtocolNumber,
		ProcessType:    req.ProcessType,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": processResponse(process)})
}

// List GET /processes.
func (h *ProcessesHandler) List(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	views, err := h.service.ListProcesses(c.UserContext(), user, parseProcessQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.ProcessViewResponse, 0, len(views))
	for i := range views {
		items = append(items, processViewResponse(&views[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /processes/:id.
func (h *ProcessesHandler) Get(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	view, err := h.service.GetProcess(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": processViewResponse(view)})
}

// History GET /processes/:id/history.
func (h *ProcessesHandler) History(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	entries, err := h.service.ListHistory(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	resp := make([]dto.HistoryEntryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.HistoryEntryResponse{
			ID:           entry.ID,
			DepartmentID: entry.DepartmentID,
			EntryTime:    entry.EntryTime,
			ExitTime:     entry.ExitTime,
			ActingUserID: entry.ActingUserID,
		})
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Start POST /processes/:id/start.
func (h *ProcessesHandler) Start(c *fiber.Ctx) error {
	return h.transition(c, h.service.Start)
}

// Advance POST /processes/:id/advance.
func (h *ProcessesHandler) Advance(c *fiber.Ctx) error {
	return h.transition(c, h.service.Advance)
}

// Revert POST /processes/:id/revert.
func (h *ProcessesHandler) Revert(c *fiber.Ctx) error {
	return h.transition(c, h.service.Revert)
}

// Accept POST /processes/:id/accept.
func (h *ProcessesHandler) Accept(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	assignment, err := h.service.Accept(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": responsibilityResponse(assignment)})
}

// Reassign PUT /processes/:id/responsible.
func (h *ProcessesHandler) Reassign(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.ReassignRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == "" {
		return apperrors.NewValidationError("user_id required", nil)
	}
	assignment, err := h.service.Reassign(c.UserContext(), user, c.Params("id"), req.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": responsibilityResponse(assignment)})
}

// UpdateType PUT /processes/:id/type.
func (h *ProcessesHandler) UpdateType(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateProcessTypeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	process, err := h.service.UpdateType(c.UserContext(), user, c.Params("id"), req.ProcessType)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": processResponse(process)})
}

// UpdateStatus PUT /processes/:id/status.
func (h *ProcessesHandler) UpdateStatus(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateProcessStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	process, err := h.service.UpdateStatus(c.UserContext(), user, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": processResponse(process)})
}

// Delete DELETE /processes.
func (h *ProcessesHandler) Delete(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.DeleteProcessesRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	deleted, err := h.service.DeleteNotStarted(c.UserContext(), user, req.IDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": deleted}})
}

type transitionFunc func(ctx context.Context, user *domain.User, id string) (*domain.Process, error)

func (h *ProcessesHandler) transition(c *fiber.Ctx, fn transitionFunc) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	process, err := fn(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": processResponse(process)})
}

func parseProcessQuery(c *fiber.Ctx) service.ProcessListFilter {
	filter := service.ProcessListFilter{OwnedOnly: c.QueryBool("mine")}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.ProcessStatus(strings.TrimSpace(part)))
		}
	}
	if dept := c.Query("department_id"); dept != "" {
		filter.DepartmentID = &dept
	}
	if processType := c.Query("process_type"); processType != "" {
		filter.ProcessType = &processType
	}
	if search := c.Query("q"); search != "" {
		filter.SearchTerm = &search
	}
	filter.Limit, filter.Offset = parsePage(c)
	return filter
}

func parsePage(c *fiber.Ctx) (limit, offset int) {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	return pageSize, (page - 1) * pageSize
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func processResponse(p *domain.Process) dto.ProcessResponse {
	return dto.ProcessResponse{
		ID:                  p.ID,
		ProtocolNumber:      p.ProtocolNumber,
		ProcessType:         p.ProcessType,
		CurrentDepartmentID: p.CurrentDepartmentID,
		StartDate:           p.StartDate,
		ExpectedEndDate:     p.ExpectedEndDate,
		Status:              p.Status,
		ResponsibleUserID:   p.ResponsibleUserID,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func processViewResponse(view *service.ProcessView) dto.ProcessViewResponse {
	resp := dto.ProcessViewResponse{
		ProcessResponse: processResponse(&view.Process),
		DerivedStatus:   view.Status,
		Actions:         dto.ProcessActions{CanAccept: view.CanAccept, CanMove: view.CanMove},
	}
	if view.CurrentDepartment != nil {
		dept := departmentResponse(*view.CurrentDepartment)
		resp.CurrentDepartment = &dept
	}
	if view.OpenEntry != nil {
		entered := view.OpenEntry.EntryTime
		resp.EnteredAt = &entered
	}
	if view.Responsible != nil {
		r := responsibilityResponse(view.Responsible)
		resp.Responsible = &r
	}
	return resp
}

func responsibilityResponse(a *domain.ResponsibilityAssignment) dto.ResponsibilityResponse {
	return dto.ResponsibilityResponse{
		ProcessID:    a.ProcessID,
		DepartmentID: a.DepartmentID,
		UserID:       a.UserID,
		AssignedAt:   a.AssignedAt,
	}
}
