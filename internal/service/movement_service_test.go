package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/process-tracker/internal/domain"
	apperrors "github.com/spec-kit/process-tracker/pkg/util"
)

func TestStartProcess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.newProcess(t, "PRC-1")

	p, err := h.movement.StartProcess(ctx, id, h.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessStatusPending, p.Status)
	assert.Equal(t, "intake", h.currentDepartment(t, id))
	require.NotNil(t, p.ResponsibleUserID)
	assert.Equal(t, h.alice.ID, *p.ResponsibleUserID)
	require.NotNil(t, p.ExpectedEndDate)
	assert.True(t, p.ExpectedEndDate.Equal(h.clock.Now().Add(30*24*time.Hour)))

	open := h.db.openEntries(id)
	require.Len(t, open, 1)
	assert.Equal(t, "intake", open[0].DepartmentID)
	assert.Len(t, h.db.notificationsFor(h.alice.ID), 1)

	_, err = h.movement.StartProcess(ctx, id, h.alice.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
	assert.Equal(t, 1, h.db.historyLen(id))
}

func TestForwardThenBackwardRestoresDepartment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.newProcess(t, "PRC-2")
	_, err := h.movement.UpdateProcessType(ctx, id, "contract")
	require.NoError(t, err)

	_, err = h.movement.StartProcess(ctx, id, h.alice.ID)
	require.NoError(t, err)
	_, err = h.movement.MoveToNextDepartment(ctx, id, h.alice.ID)
	require.NoError(t, err)
	require.Equal(t, "review", h.currentDepartment(t, id))
	before := h.db.historyLen(id)

	_, err = h.movement.MoveToNextDepartment(ctx, id, h.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "legal", h.currentDepartment(t, id))

	p, err := h.movement.MoveToPreviousDepartment(ctx, id, h.dave.ID)
	require.NoError(t, err)
	assert.Equal(t, "review", h.currentDepartment(t, id))
	assert.Equal(t, domain.ProcessStatusPending, p.Status)
	assert.Equal(t, before+2, h.db.historyLen(id))

	open := h.db.openEntries(id)
	require.Len(t, open, 1)
	assert.Equal(t, "review", open[0].DepartmentID)
}

func TestMoveRequiresProcessType(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.newProcess(t, "PRC-3")
	_, err := h.movement.StartProcess(ctx, id, h.alice.ID)
	require.NoError(t, err)
	_, err = h.movement.MoveToNextDepartment(ctx, id, h.alice.ID)
	require.NoError(t, err)
	before := h.db.historyLen(id)

	_, err = h.movement.MoveToNextDepartment(ctx, id, h.bob.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	assert.Contains(t, err.Error(), "missing process type")
	assert.Equal(t, before, h.db.historyLen(id))
	assert.Equal(t, "review", h.currentDepartment(t, id))

	_, err = h.movement.UpdateProcessType(ctx, id, "contract")
	require.NoError(t, err)
	_, err = h.movement.MoveToNextDepartment(ctx, id, h.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "legal", h.currentDepartment(t, id))
}

func TestCompletionAndBoundaries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.newProcess(t, "PRC-4")
	_, err := h.movement.UpdateProcessType(ctx, id, "contract")
	require.NoError(t, err)

	_, err = h.movement.StartProcess(ctx, id, h.alice.ID)
	require.NoError(t, err)

	_, err = h.movement.MoveToPreviousDepartment(ctx, id, h.alice.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
	assert.Equal(t, 1, h.db.historyLen(id))

	var p *domain.Process
	for i := 0; i < 3; i++ {
		p, err = h.movement.MoveToNextDepartment(ctx, id, h.alice.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, "done", h.currentDepartment(t, id))
	assert.Equal(t, domain.ProcessStatusCompleted, p.Status)

	before := h.db.historyLen(id)
	_, err = h.movement.MoveToNextDepartment(ctx, id, h.erin.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
	assert.Equal(t, before, h.db.historyLen(id))
	assert.Equal(t, domain.ProcessStatusCompleted, h.process(t, id).Status)

	p, err = h.movement.MoveToPreviousDepartment(ctx, id, h.erin.ID)
	require.NoError(t, err)
	assert.Equal(t, "legal", h.currentDepartment(t, id))
	assert.Equal(t, domain.ProcessStatusPending, p.Status)
}

func TestMoveRejectsUnknownAndNotStarted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.movement.MoveToNextDepartment(ctx, "missing", h.admin.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	id := h.newProcess(t, "PRC-5")
	_, err = h.movement.MoveToNextDepartment(ctx, id, h.admin.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
	_, err = h.movement.MoveToPreviousDepartment(ctx, id, h.admin.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
	assert.Equal(t, 0, h.db.historyLen(id))
}

func TestForwardClearsDestinationClaim(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.newProcess(t, "PRC-6")
	_, err := h.movement.StartProcess(ctx, id, h.alice.ID)
	require.NoError(t, err)

	require.NoError(t, h.respRepo.Create(ctx, &domain.ResponsibilityAssignment{
		ProcessID: id, DepartmentID: "review", UserID: h.carol.ID, AssignedAt: h.clock.Now(),
	}))
	cached, err := h.responsibility.GetResponsible(ctx, id, "review")
	require.NoError(t, err)
	require.NotNil(t, cached)

	_, err = h.movement.MoveToNextDepartment(ctx, id, h.alice.ID)
	require.NoError(t, err)

	_, ok := h.db.assignment(id, "review")
	assert.False(t, ok)
	cached, err = h.responsibility.GetResponsible(ctx, id, "review")
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestTerminalClaimPreservedOnEntryClearedOnExit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.newProcess(t, "PRC-7")
	_, err := h.movement.UpdateProcessType(ctx, id, "contract")
	require.NoError(t, err)
	_, err = h.movement.StartProcess(ctx, id, h.alice.ID)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = h.movement.MoveToNextDepartment(ctx, id, h.alice.ID)
		require.NoError(t, err)
	}
	require.Equal(t, "legal", h.currentDepartment(t, id))

	require.NoError(t, h.respRepo.Create(ctx, &domain.ResponsibilityAssignment{
		ProcessID: id, DepartmentID: "done", UserID: h.erin.ID, AssignedAt: h.clock.Now(),
	}))
	require.NoError(t, h.respRepo.Create(ctx, &domain.ResponsibilityAssignment{
		ProcessID: id, DepartmentID: "legal", UserID: h.dave.ID, AssignedAt: h.clock.Now(),
	}))

	_, err = h.movement.MoveToNextDepartment(ctx, id, h.dave.ID)
	require.NoError(t, err)
	claim, ok := h.db.assignment(id, "done")
	require.True(t, ok)
	assert.Equal(t, h.erin.ID, claim.UserID)

	_, err = h.movement.MoveToPreviousDepartment(ctx, id, h.erin.ID)
	require.NoError(t, err)
	_, ok = h.db.assignment(id, "done")
	assert.False(t, ok)
	_, ok = h.db.assignment(id, "legal")
	assert.False(t, ok)
}

func TestOpenHistoryFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.newProcess(t, "PRC-8")
	_, err := h.movement.StartProcess(ctx, id, h.alice.ID)
	require.NoError(t, err)
	before := h.db.historyLen(id)

	h.db.failHistoryOpen = errors.New("disk full")
	_, err = h.movement.MoveToNextDepartment(ctx, id, h.alice.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodePersistence))
	assert.Equal(t, "open_history", apperrors.ToDomainError(err).Details["step"])

	assert.Equal(t, "intake", h.currentDepartment(t, id))
	assert.Equal(t, before, h.db.historyLen(id))
	open := h.db.openEntries(id)
	require.Len(t, open, 1)
	assert.Equal(t, "intake", open[0].DepartmentID)
}

func TestConcurrentMoveIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.newProcess(t, "PRC-9")
	_, err := h.movement.StartProcess(ctx, id, h.alice.ID)
	require.NoError(t, err)

	h.db.casConflict = true
	_, err = h.movement.MoveToNextDepartment(ctx, id, h.alice.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
	assert.Equal(t, 1, h.db.historyLen(id))
	assert.Len(t, h.db.openEntries(id), 1)
}

func TestNotificationFailureDoesNotFailMove(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.newProcess(t, "PRC-10")
	_, err := h.movement.StartProcess(ctx, id, h.alice.ID)
	require.NoError(t, err)

	h.db.failNotifications = errors.New("insert failed")
	_, err = h.movement.MoveToNextDepartment(ctx, id, h.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "review", h.currentDepartment(t, id))
	assert.Empty(t, h.db.notificationsFor(h.bob.ID))
}

func TestMoveNotifiesDestinationMembers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.newProcess(t, "PRC-11")
	_, err := h.movement.StartProcess(ctx, id, h.alice.ID)
	require.NoError(t, err)
	_, err = h.movement.MoveToNextDepartment(ctx, id, h.alice.ID)
	require.NoError(t, err)

	for _, user := range []*domain.User{h.bob, h.carol} {
		list := h.db.notificationsFor(user.ID)
		require.Len(t, list, 1)
		assert.Equal(t, domain.NotificationTypeProcessMoved, list[0].Type)
		assert.Equal(t, "Process PRC-11 moved to Review", list[0].Message)
	}
	assert.Empty(t, h.db.notificationsFor(h.dave.ID))
}

func TestUpdateProcessStatusOverride(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.newProcess(t, "PRC-12")

	_, err := h.movement.UpdateProcessStatus(ctx, id, domain.ProcessStatus("archived"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	p, err := h.movement.UpdateProcessStatus(ctx, id, domain.ProcessStatusOverdue)
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessStatusOverdue, p.Status)
	assert.Equal(t, domain.ProcessStatusOverdue, h.process(t, id).Status)

	p, err = h.movement.UpdateProcessType(ctx, id, "  ")
	require.NoError(t, err)
	assert.Nil(t, p.ProcessType)
}

// movingProcessRepo runs beforeWrite once, right before a single-column write.
type movingProcessRepo struct {
	*memProcessRepo
	beforeWrite func()
}

func (r *movingProcessRepo) interleave() {
	if f := r.beforeWrite; f != nil {
		r.beforeWrite = nil
		f()
	}
}

func (r *movingProcessRepo) UpdateType(ctx context.Context, id string, processType *string) (*domain.Process, error) {
	r.interleave()
	return r.memProcessRepo.UpdateType(ctx, id, processType)
}

func (r *movingProcessRepo) UpdateStatus(ctx context.Context, id string, status domain.ProcessStatus) (*domain.Process, error) {
	r.interleave()
	return r.memProcessRepo.UpdateStatus(ctx, id, status)
}

func TestFieldUpdatesKeepConcurrentMove(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.newProcess(t, "PRC-20")
	_, err := h.movement.StartProcess(ctx, id, h.alice.ID)
	require.NoError(t, err)

	repo := &movingProcessRepo{memProcessRepo: &memProcessRepo{db: h.db}}
	svc := NewMovementService(MovementDependencies{
		Transactor:         &memTx{db: h.db},
		ProcessRepo:        repo,
		HistoryRepo:        &memHistoryRepo{db: h.db},
		ResponsibilityRepo: h.respRepo,
		Catalog:            h.catalog,
		Now:                h.clock.Now,
	})

	repo.beforeWrite = func() {
		_, err := h.movement.MoveToNextDepartment(ctx, id, h.alice.ID)
		require.NoError(t, err)
	}
	p, err := svc.UpdateProcessType(ctx, id, "contract")
	require.NoError(t, err)
	require.NotNil(t, p.ProcessType)
	assert.Equal(t, "contract", *p.ProcessType)
	assert.Equal(t, "review", h.currentDepartment(t, id))
	open := h.db.openEntries(id)
	require.Len(t, open, 1)
	assert.Equal(t, "review", open[0].DepartmentID)

	repo.beforeWrite = func() {
		_, err := h.movement.MoveToNextDepartment(ctx, id, h.bob.ID)
		require.NoError(t, err)
	}
	_, err = svc.UpdateProcessStatus(ctx, id, domain.ProcessStatusOverdue)
	require.NoError(t, err)
	stored := h.process(t, id)
	assert.Equal(t, domain.ProcessStatusOverdue, stored.Status)
	assert.Equal(t, "legal", h.currentDepartment(t, id))
	open = h.db.openEntries(id)
	require.Len(t, open, 1)
	assert.Equal(t, "legal", open[0].DepartmentID)

	_, err = svc.UpdateProcessType(ctx, "missing", "contract")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

// commitFailingTx runs the body, discards its writes and reports err as a
// commit failure.
type commitFailingTx struct {
	db  *memDB
	err error
}

func (t *commitFailingTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := t.db.snapshot()
	defer t.db.restore(snap)
	if err := fn(ctx); err != nil {
		return err
	}
	return t.err
}

func TestCommitFailureIsPersistenceError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	started := h.newProcess(t, "PRC-21")
	_, err := h.movement.StartProcess(ctx, started, h.alice.ID)
	require.NoError(t, err)
	fresh := h.newProcess(t, "PRC-22")

	svc := NewMovementService(MovementDependencies{
		Transactor:         &commitFailingTx{db: h.db, err: errors.New("commit: connection reset")},
		ProcessRepo:        &memProcessRepo{db: h.db},
		HistoryRepo:        &memHistoryRepo{db: h.db},
		ResponsibilityRepo: h.respRepo,
		Catalog:            h.catalog,
		Now:                h.clock.Now,
	})

	_, err = svc.MoveToNextDepartment(ctx, started, h.alice.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodePersistence))
	assert.Equal(t, "intake", h.currentDepartment(t, started))

	_, err = svc.StartProcess(ctx, fresh, h.alice.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodePersistence))
	assert.Equal(t, domain.ProcessStatusNotStarted, h.process(t, fresh).Status)

	_, err = svc.MoveToNextDepartment(ctx, fresh, h.alice.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
}

func TestLostHistoryCloseIsConcurrentMove(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.newProcess(t, "PRC-23")
	_, err := h.movement.StartProcess(ctx, id, h.alice.ID)
	require.NoError(t, err)

	h.db.lostClose = true
	_, err = h.movement.MoveToNextDepartment(ctx, id, h.alice.ID)
	require.Error(t, err)
	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, apperrors.CodeInvalidState, domainErr.Code)
	assert.Equal(t, "process was moved concurrently", domainErr.Message)
	assert.Equal(t, "intake", h.currentDepartment(t, id))
	assert.Len(t, h.db.openEntries(id), 1)
}
