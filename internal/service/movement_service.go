package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/process-tracker/internal/catalog"
	"github.com/spec-kit/process-tracker/internal/domain"
	"github.com/spec-kit/process-tracker/internal/events"
	"github.com/spec-kit/process-tracker/internal/observability"
	"github.com/spec-kit/process-tracker/internal/persistence"
	"github.com/spec-kit/process-tracker/internal/repository"
	apperrors "github.com/spec-kit/process-tracker/pkg/util"
)

const defaultProcessDuration = 30 * 24 * time.Hour

// Transition operation names used for metrics and logs.
const (
	OpStart   = "start"
	OpAdvance = "advance"
	OpRevert  = "revert"
)

type responsibilityInvalidator interface {
	Invalidate(ctx context.Context, keys ...domain.ResponsibilityKey)
}

// MovementService moves processes through the department pipeline. Every
// transition closes the open history entry, opens the next one, updates the
// process and clears stale claims inside one transaction.
type MovementService struct {
	tx               persistence.Transactor
	processes        repository.ProcessRepository
	history          repository.HistoryRepository
	responsibilities repository.ResponsibilityRepository
	catalog          *catalog.Catalog
	invalidator      responsibilityInvalidator
	dispatcher       events.Dispatcher
	logger           *zap.Logger
	metrics          *observability.Metrics
	now              func() time.Time
	duration         time.Duration
}

// MovementDependencies bundles collaborators for the movement service.
type MovementDependencies struct {
	Transactor         persistence.Transactor
	ProcessRepo        repository.ProcessRepository
	HistoryRepo        repository.HistoryRepository
	ResponsibilityRepo repository.ResponsibilityRepository
	Catalog            *catalog.Catalog
	Invalidator        responsibilityInvalidator
	Dispatcher         events.Dispatcher
	Logger             *zap.Logger
	Metrics            *observability.Metrics
	Now                func() time.Time
	DefaultDuration    time.Duration
}

// NewMovementService constructs the service.
func NewMovementService(deps MovementDependencies) *MovementService {
	s := &MovementService{
		tx:               deps.Transactor,
		processes:        deps.ProcessRepo,
		history:          deps.HistoryRepo,
		responsibilities: deps.ResponsibilityRepo,
		catalog:          deps.Catalog,
		invalidator:      deps.Invalidator,
		dispatcher:       deps.Dispatcher,
		logger:           deps.Logger,
		metrics:          deps.Metrics,
		now:              deps.Now,
		duration:         deps.DefaultDuration,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.duration <= 0 {
		s.duration = defaultProcessDuration
	}
	return s
}

type transition struct {
	process   *domain.Process
	from      string
	to        domain.Department
	direction events.Direction
	cleared   []domain.ResponsibilityKey
}

// StartProcess places a not-started process in the intake department and
// makes actingUserID its owner.
func (s *MovementService) StartProcess(ctx context.Context, processID, actingUserID string) (*domain.Process, error) {
	var result transition
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		process, err := s.processes.GetByID(ctx, processID)
		if err != nil {
			return mapRepoError(err, "process", map[string]any{"process_id": processID})
		}
		if process.Status != domain.ProcessStatusNotStarted || process.CurrentDepartmentID != nil {
			return apperrors.NewInvalidState("process already started", map[string]any{
				"process_id": processID,
				"status":     process.Status,
			})
		}
		first, ok := s.catalog.First()
		if !ok {
			return apperrors.NewNotFound("intake department", nil)
		}

		now := s.now().UTC()
		end := now.Add(s.duration)
		process.CurrentDepartmentID = ptrString(first.ID)
		process.StartDate = &now
		process.ExpectedEndDate = &end
		process.Status = domain.ProcessStatusPending
		process.ResponsibleUserID = ptrString(actingUserID)

		if err := s.history.Open(ctx, &domain.HistoryEntry{
			ProcessID:    processID,
			DepartmentID: first.ID,
			EntryTime:    now,
			ActingUserID: ptrString(actingUserID),
		}); err != nil {
			return apperrors.NewPersistenceError("open history entry", err, map[string]any{"process_id": processID})
		}
		updated, err := s.processes.UpdateIfAt(ctx, process, nil)
		if err != nil {
			return apperrors.NewPersistenceError("update process", err, map[string]any{"process_id": processID})
		}
		if !updated {
			return apperrors.NewInvalidState("process was started concurrently", map[string]any{"process_id": processID})
		}
		result = transition{process: process, to: first, direction: events.DirectionForward}
		return nil
	})
	err = txFailure(err, processID)
	return s.finish(ctx, OpStart, events.EventProcessStarted, actingUserID, result, err)
}

// MoveToNextDepartment advances the process one department. Entering the
// terminal department completes it and keeps the terminal claim intact.
func (s *MovementService) MoveToNextDepartment(ctx context.Context, processID, actingUserID string) (*domain.Process, error) {
	return s.move(ctx, OpAdvance, processID, actingUserID, events.DirectionForward)
}

// MoveToPreviousDepartment returns the process one department. The process
// is pending afterwards even when it left the terminal department.
func (s *MovementService) MoveToPreviousDepartment(ctx context.Context, processID, actingUserID string) (*domain.Process, error) {
	return s.move(ctx, OpRevert, processID, actingUserID, events.DirectionBackward)
}

func (s *MovementService) move(ctx context.Context, op, processID, actingUserID string, direction events.Direction) (*domain.Process, error) {
	var result transition
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		details := map[string]any{"process_id": processID}

		process, err := s.processes.GetByID(ctx, processID)
		if err != nil {
			return mapRepoError(err, "process", details)
		}
		if process.CurrentDepartmentID == nil {
			return apperrors.NewInvalidState("process not started", details)
		}
		from := *process.CurrentDepartmentID
		details["department_id"] = from

		current, ok := s.catalog.Get(from)
		if !ok {
			return apperrors.NewNotFound("department", details)
		}

		var target domain.Department
		if direction == events.DirectionForward {
			target, ok = s.catalog.Next(current.ID)
			if !ok {
				return apperrors.NewInvalidState("process is already in the terminal department", details)
			}
			if target.RequiresProcessType && !process.HasProcessType() {
				return apperrors.NewValidationError("missing process type", map[string]any{
					"process_id":    processID,
					"department_id": target.ID,
				})
			}
		} else {
			target, ok = s.catalog.Previous(current.ID)
			if !ok {
				return apperrors.NewInvalidState("process is already in the first department", details)
			}
		}

		now := s.now().UTC()
		if _, err := s.history.CloseOpen(ctx, processID, now, actingUserID); err != nil {
			// Another transition closed the entry after we read the process.
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewInvalidState("process was moved concurrently", details)
			}
			return mapRepoError(err, "open history entry", details)
		}
		if err := s.history.Open(ctx, &domain.HistoryEntry{
			ProcessID:    processID,
			DepartmentID: target.ID,
			EntryTime:    now,
			ActingUserID: ptrString(actingUserID),
		}); err != nil {
			s.logger.Error("history inconsistency: entry closed but next entry not opened",
				zap.String("process_id", processID),
				zap.String("from_department_id", from),
				zap.String("to_department_id", target.ID),
				zap.Error(err))
			return apperrors.NewPersistenceError("open history entry", err, map[string]any{
				"process_id": processID,
				"step":       "open_history",
			})
		}

		process.CurrentDepartmentID = ptrString(target.ID)
		process.Status = domain.ProcessStatusPending
		if direction == events.DirectionForward && target.IsTerminal {
			process.Status = domain.ProcessStatusCompleted
		}
		updated, err := s.processes.UpdateIfAt(ctx, process, &from)
		if err != nil {
			return apperrors.NewPersistenceError("update process", err, details)
		}
		if !updated {
			return apperrors.NewInvalidState("process was moved concurrently", details)
		}

		var cleared []domain.ResponsibilityKey
		if direction == events.DirectionBackward {
			cleared = append(cleared, domain.ResponsibilityKey{ProcessID: processID, DepartmentID: from})
		}
		if direction == events.DirectionBackward || !target.IsTerminal {
			cleared = append(cleared, domain.ResponsibilityKey{ProcessID: processID, DepartmentID: target.ID})
		}
		for _, key := range cleared {
			if _, err := s.responsibilities.Delete(ctx, key.ProcessID, key.DepartmentID); err != nil {
				return apperrors.NewPersistenceError("clear responsibility", err, map[string]any{
					"process_id":    key.ProcessID,
					"department_id": key.DepartmentID,
				})
			}
		}

		result = transition{process: process, from: from, to: target, direction: direction, cleared: cleared}
		return nil
	})
	err = txFailure(err, processID)
	return s.finish(ctx, op, events.EventProcessMoved, actingUserID, result, err)
}

// txFailure classifies errors raised by the transaction itself, such as a
// failed commit, as retryable persistence failures.
func txFailure(err error, processID string) error {
	var domainErr *apperrors.DomainError
	if err == nil || errors.As(err, &domainErr) {
		return err
	}
	return apperrors.NewPersistenceError("transition transaction", err, map[string]any{"process_id": processID})
}

// finish runs the post-commit steps. Nothing here can undo the transition.
func (s *MovementService) finish(ctx context.Context, op string, eventType events.EventType, actingUserID string, t transition, err error) (*domain.Process, error) {
	s.metrics.RecordTransition(op, err)
	if err != nil {
		return nil, err
	}
	if s.invalidator != nil && len(t.cleared) > 0 {
		s.invalidator.Invalidate(ctx, t.cleared...)
	}

	s.logger.Info("process moved",
		zap.String("operation", op),
		zap.String("process_id", t.process.ID),
		zap.String("from_department_id", t.from),
		zap.String("to_department_id", t.to.ID),
		zap.String("status", string(t.process.Status)),
		zap.String("acting_user_id", actingUserID))

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      eventType,
			ProcessID: t.process.ID,
			ActorID:   actingUserID,
			Timestamp: s.now().UTC(),
			Payload: events.ProcessMovedPayload{
				ProtocolNumber:   t.process.ProtocolNumber,
				FromDepartmentID: t.from,
				ToDepartmentID:   t.to.ID,
				ToDepartmentName: t.to.Name,
				Direction:        t.direction,
				NewStatus:        t.process.Status,
			},
		})
	}
	return t.process, nil
}

// UpdateProcessType sets the process type. A blank type clears it. Only the
// type column is written.
func (s *MovementService) UpdateProcessType(ctx context.Context, processID, processType string) (*domain.Process, error) {
	var value *string
	if processType = strings.TrimSpace(processType); processType != "" {
		value = &processType
	}
	process, err := s.processes.UpdateType(ctx, processID, value)
	if err != nil {
		return nil, mapRepoError(err, "process", map[string]any{"process_id": processID})
	}
	return process, nil
}

// UpdateProcessStatus overrides the persisted status without derivation.
func (s *MovementService) UpdateProcessStatus(ctx context.Context, processID string, status domain.ProcessStatus) (*domain.Process, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError("unknown process status", map[string]any{"status": status})
	}
	process, err := s.processes.UpdateStatus(ctx, processID, status)
	if err != nil {
		return nil, mapRepoError(err, "process", map[string]any{"process_id": processID})
	}
	return process, nil
}
