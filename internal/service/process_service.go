package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/process-tracker/internal/catalog"
	"github.com/spec-kit/process-tracker/internal/domain"
	"github.com/spec-kit/process-tracker/internal/repository"
	apperrors "github.com/spec-kit/process-tracker/pkg/util"
)

// ProcessService is the user-facing entry point for processes. It applies
// visibility rules and delegates transitions to MovementService.
type ProcessService struct {
	processes      repository.ProcessRepository
	history        repository.HistoryRepository
	users          repository.UserRepository
	catalog        *catalog.Catalog
	movement       *MovementService
	responsibility *ResponsibilityService
	visibility     Visibility
	logger         *zap.Logger
	now            func() time.Time
}

// ProcessDependencies bundles collaborators for the process service.
type ProcessDependencies struct {
	ProcessRepo    repository.ProcessRepository
	HistoryRepo    repository.HistoryRepository
	UserRepo       repository.UserRepository
	Catalog        *catalog.Catalog
	Movement       *MovementService
	Responsibility *ResponsibilityService
	Logger         *zap.Logger
	Now            func() time.Time
}

// ProcessCreateInput describes process registration.
type ProcessCreateInput struct {
	ProtocolNumber string
	ProcessType    string
}

// ProcessListFilter describes listing parameters.
type ProcessListFilter struct {
	DepartmentID *string
	Statuses     []domain.ProcessStatus
	ProcessType  *string
	SearchTerm   *string
	OwnedOnly    bool
	Limit        int
	Offset       int
}

// ProcessView is a process as seen by one user, with its derived status.
type ProcessView struct {
	Process           domain.Process
	Status            domain.ProcessStatus
	CurrentDepartment *domain.Department
	OpenEntry         *domain.HistoryEntry
	Responsible       *domain.ResponsibilityAssignment
	CanAccept         bool
	CanMove           bool
}

// NewProcessService constructs the service.
func NewProcessService(deps ProcessDependencies) *ProcessService {
	s := &ProcessService{
		processes:      deps.ProcessRepo,
		history:        deps.HistoryRepo,
		users:          deps.UserRepo,
		catalog:        deps.Catalog,
		movement:       deps.Movement,
		responsibility: deps.Responsibility,
		visibility:     NewVisibility(deps.Catalog),
		logger:         deps.Logger,
		now:            deps.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CreateProcess registers a not-started process. A protocol number is
// generated when none is given.
func (s *ProcessService) CreateProcess(ctx context.Context, actor *domain.User, input ProcessCreateInput) (*domain.Process, error) {
	if !s.visibility.CanStart(actor) {
		return nil, apperrors.NewForbidden("only intake members can register processes")
	}
	protocol := strings.TrimSpace(input.ProtocolNumber)
	if protocol == "" {
		protocol = newProtocolNumber()
	}
	process := &domain.Process{
		ProtocolNumber: protocol,
		Status:         domain.ProcessStatusNotStarted,
	}
	if processType := strings.TrimSpace(input.ProcessType); processType != "" {
		process.ProcessType = &processType
	}
	if err := s.processes.Create(ctx, process); err != nil {
		return nil, mapRepoError(err, "process", map[string]any{"protocol_number": protocol})
	}
	s.logger.Info("process registered",
		zap.String("process_id", process.ID),
		zap.String("protocol_number", protocol),
		zap.String("actor_id", actor.ID))
	return process, nil
}

// GetProcess returns one process if user may see it.
func (s *ProcessService) GetProcess(ctx context.Context, user *domain.User, id string) (*ProcessView, error) {
	process, err := s.processes.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "process", map[string]any{"process_id": id})
	}
	views, err := s.buildViews(ctx, user, []domain.Process{*process})
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, apperrors.NewForbidden("process not visible to user")
	}
	return &views[0], nil
}

// ListProcesses returns the processes user may see. Status filters match the
// derived status.
func (s *ProcessService) ListProcesses(ctx context.Context, user *domain.User, filter ProcessListFilter) ([]ProcessView, error) {
	repoFilter := repository.ProcessFilter{
		ProcessType: filter.ProcessType,
		SearchTerm:  filter.SearchTerm,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	if filter.DepartmentID != nil {
		repoFilter.DepartmentIDs = []string{*filter.DepartmentID}
	}
	if filter.OwnedOnly {
		repoFilter.ResponsibleUserID = &user.ID
	}
	wanted := map[domain.ProcessStatus]bool{}
	for _, status := range filter.Statuses {
		if !status.Valid() {
			return nil, apperrors.NewValidationError("unknown process status", map[string]any{"status": status})
		}
		wanted[status] = true
		repoFilter.Statuses = append(repoFilter.Statuses, status)
		if status == domain.ProcessStatusOverdue && !wanted[domain.ProcessStatusPending] {
			repoFilter.Statuses = append(repoFilter.Statuses, domain.ProcessStatusPending)
		}
	}

	processes, err := s.processes.List(ctx, repoFilter)
	if err != nil {
		return nil, mapRepoError(err, "process", nil)
	}
	views, err := s.buildViews(ctx, user, processes)
	if err != nil {
		return nil, err
	}
	if len(wanted) == 0 {
		return views, nil
	}
	filtered := views[:0]
	for _, view := range views {
		if wanted[view.Status] {
			filtered = append(filtered, view)
		}
	}
	return filtered, nil
}

// ListHistory returns the occupancy intervals of a visible process.
func (s *ProcessService) ListHistory(ctx context.Context, user *domain.User, id string) ([]domain.HistoryEntry, error) {
	if _, err := s.GetProcess(ctx, user, id); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByProcess(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "history", map[string]any{"process_id": id})
	}
	return entries, nil
}

// Start begins processing on behalf of user.
func (s *ProcessService) Start(ctx context.Context, user *domain.User, id string) (*domain.Process, error) {
	if !s.visibility.CanStart(user) {
		return nil, apperrors.NewForbidden("only intake members can start processes")
	}
	return s.movement.StartProcess(ctx, id, user.ID)
}

// Advance moves the process to the next department.
func (s *ProcessService) Advance(ctx context.Context, user *domain.User, id string) (*domain.Process, error) {
	if err := s.authorizeMove(ctx, user, id); err != nil {
		return nil, err
	}
	return s.movement.MoveToNextDepartment(ctx, id, user.ID)
}

// Revert returns the process to the previous department.
func (s *ProcessService) Revert(ctx context.Context, user *domain.User, id string) (*domain.Process, error) {
	if err := s.authorizeMove(ctx, user, id); err != nil {
		return nil, err
	}
	return s.movement.MoveToPreviousDepartment(ctx, id, user.ID)
}

// Accept claims the process in its current department for user.
func (s *ProcessService) Accept(ctx context.Context, user *domain.User, id string) (*domain.ResponsibilityAssignment, error) {
	process, assignment, err := s.loadWithAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	if process.CurrentDepartmentID == nil {
		return nil, apperrors.NewInvalidState("process not started", map[string]any{"process_id": id})
	}
	if assignment != nil {
		if assignment.UserID == user.ID {
			return assignment, nil
		}
		return nil, apperrors.NewAlreadyAssigned(map[string]any{
			"process_id":    id,
			"department_id": *process.CurrentDepartmentID,
		})
	}
	if !s.visibility.CanAcceptResponsibility(process, user, nil) {
		return nil, apperrors.NewForbidden("user does not belong to the current department")
	}
	return s.responsibility.AcceptResponsibility(ctx, id, *process.CurrentDepartmentID, user.ID)
}

// Reassign hands the current department claim to another user.
func (s *ProcessService) Reassign(ctx context.Context, actor *domain.User, id, userID string) (*domain.ResponsibilityAssignment, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("admin profile required")
	}
	process, err := s.processes.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "process", map[string]any{"process_id": id})
	}
	if process.CurrentDepartmentID == nil {
		return nil, apperrors.NewInvalidState("process not started", map[string]any{"process_id": id})
	}
	target, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapRepoError(err, "user", map[string]any{"user_id": userID})
	}
	if !target.Active || !target.BelongsTo(*process.CurrentDepartmentID) {
		return nil, apperrors.NewValidationError("user cannot hold this process", map[string]any{
			"user_id":       userID,
			"department_id": *process.CurrentDepartmentID,
		})
	}
	return s.responsibility.Reassign(ctx, id, *process.CurrentDepartmentID, userID, actor.ID)
}

// UpdateType changes the process type of a visible process.
func (s *ProcessService) UpdateType(ctx context.Context, user *domain.User, id, processType string) (*domain.Process, error) {
	if _, err := s.GetProcess(ctx, user, id); err != nil {
		return nil, err
	}
	return s.movement.UpdateProcessType(ctx, id, processType)
}

// UpdateStatus overrides the persisted status. Admin only.
func (s *ProcessService) UpdateStatus(ctx context.Context, actor *domain.User, id string, status domain.ProcessStatus) (*domain.Process, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("admin profile required")
	}
	process, err := s.movement.UpdateProcessStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.logger.Info("process status overridden",
		zap.String("process_id", id),
		zap.String("status", string(status)),
		zap.String("actor_id", actor.ID))
	return process, nil
}

// DeleteNotStarted removes processes that never entered the pipeline. Started
// processes in ids are skipped.
func (s *ProcessService) DeleteNotStarted(ctx context.Context, actor *domain.User, ids []string) (int64, error) {
	if !actor.IsAdmin() {
		return 0, apperrors.NewForbidden("admin profile required")
	}
	if len(ids) == 0 {
		return 0, apperrors.NewValidationError("no process ids given", nil)
	}
	deleted, err := s.processes.DeleteNotStarted(ctx, ids)
	if err != nil {
		return 0, mapRepoError(err, "process", nil)
	}
	s.logger.Info("processes deleted",
		zap.Int("requested", len(ids)),
		zap.Int64("deleted", deleted),
		zap.String("actor_id", actor.ID))
	return deleted, nil
}

func (s *ProcessService) authorizeMove(ctx context.Context, user *domain.User, id string) error {
	process, assignment, err := s.loadWithAssignment(ctx, id)
	if err != nil {
		return err
	}
	if process.CurrentDepartmentID == nil {
		return apperrors.NewInvalidState("process not started", map[string]any{"process_id": id})
	}
	if !s.visibility.CanMove(process, user, assignment) {
		return apperrors.NewForbidden("accept responsibility before moving the process")
	}
	return nil
}

func (s *ProcessService) loadWithAssignment(ctx context.Context, id string) (*domain.Process, *domain.ResponsibilityAssignment, error) {
	process, err := s.processes.GetByID(ctx, id)
	if err != nil {
		return nil, nil, mapRepoError(err, "process", map[string]any{"process_id": id})
	}
	if process.CurrentDepartmentID == nil {
		return process, nil, nil
	}
	assignment, err := s.responsibility.GetResponsible(ctx, id, *process.CurrentDepartmentID)
	if err != nil {
		return nil, nil, err
	}
	return process, assignment, nil
}

// buildViews resolves open entries and claims for all processes with one
// query each, then drops what user may not see.
func (s *ProcessService) buildViews(ctx context.Context, user *domain.User, processes []domain.Process) ([]ProcessView, error) {
	if len(processes) == 0 {
		return []ProcessView{}, nil
	}

	var startedIDs []string
	var keys []domain.ResponsibilityKey
	for _, process := range processes {
		if process.CurrentDepartmentID == nil {
			continue
		}
		startedIDs = append(startedIDs, process.ID)
		keys = append(keys, domain.ResponsibilityKey{ProcessID: process.ID, DepartmentID: *process.CurrentDepartmentID})
	}

	openByProcess := map[string][]domain.HistoryEntry{}
	if len(startedIDs) > 0 {
		entries, err := s.history.ListOpenByProcesses(ctx, startedIDs)
		if err != nil {
			return nil, mapRepoError(err, "history", nil)
		}
		for _, entry := range entries {
			openByProcess[entry.ProcessID] = append(openByProcess[entry.ProcessID], entry)
		}
	}
	assignments, err := s.responsibility.GetResponsibles(ctx, keys)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]ProcessView, 0, len(processes))
	for i := range processes {
		process := processes[i]
		view := ProcessView{Process: process}
		timeLimit := 0
		if process.CurrentDepartmentID != nil {
			departmentID := *process.CurrentDepartmentID
			view.OpenEntry = domain.LatestOpenEntry(openByProcess[process.ID], departmentID)
			view.Responsible = assignments[domain.ResponsibilityKey{ProcessID: process.ID, DepartmentID: departmentID}]
			if dept, ok := s.catalog.Get(departmentID); ok {
				view.CurrentDepartment = &dept
				timeLimit = dept.TimeLimitDays
			}
		}
		if !s.visibility.CanView(&process, user, view.Responsible) {
			continue
		}
		view.Status = domain.DeriveStatus(&process, view.OpenEntry, timeLimit, now)
		view.CanAccept = s.visibility.CanAcceptResponsibility(&process, user, view.Responsible)
		view.CanMove = s.visibility.CanMove(&process, user, view.Responsible)
		views = append(views, view)
	}
	return views, nil
}

func newProtocolNumber() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("PRC-%s", strings.ToUpper(id[:8]))
}
