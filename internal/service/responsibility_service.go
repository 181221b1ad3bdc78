package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/process-tracker/internal/cache"
	"github.com/spec-kit/process-tracker/internal/domain"
	"github.com/spec-kit/process-tracker/internal/events"
	"github.com/spec-kit/process-tracker/internal/observability"
	"github.com/spec-kit/process-tracker/internal/repository"
	apperrors "github.com/spec-kit/process-tracker/pkg/util"
)

const defaultResponsibilityTTL = 5 * time.Minute

// respondedMarker closes pending transition notifications once a user claims
// a process.
type respondedMarker interface {
	MarkResponded(ctx context.Context, processID, userID string) (int64, error)
}

// ResponsibilityService tracks which user claimed a process in a department.
// Lookups are cached with a TTL; absent assignments are cached too.
type ResponsibilityService struct {
	repo       repository.ResponsibilityRepository
	store      cache.Store
	ttl        time.Duration
	notifier   respondedMarker
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
	group      singleflight.Group
}

// ResponsibilityDependencies bundles collaborators for the responsibility service.
type ResponsibilityDependencies struct {
	Repo       repository.ResponsibilityRepository
	Store      cache.Store
	TTL        time.Duration
	Notifier   respondedMarker
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Now        func() time.Time
}

type cachedAssignment struct {
	Found      bool      `json:"found"`
	UserID     string    `json:"user_id,omitempty"`
	AssignedAt time.Time `json:"assigned_at,omitempty"`
}

// NewResponsibilityService creates the service.
func NewResponsibilityService(deps ResponsibilityDependencies) *ResponsibilityService {
	s := &ResponsibilityService{
		repo:       deps.Repo,
		store:      deps.Store,
		ttl:        deps.TTL,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		now:        deps.Now,
	}
	if s.ttl <= 0 {
		s.ttl = defaultResponsibilityTTL
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// HasResponsible reports whether someone claimed the process in departmentID.
func (s *ResponsibilityService) HasResponsible(ctx context.Context, processID, departmentID string) (bool, error) {
	assignment, err := s.GetResponsible(ctx, processID, departmentID)
	if err != nil {
		return false, err
	}
	return assignment != nil, nil
}

// GetResponsible returns the assignment for the pair, or nil when unclaimed.
// Concurrent misses for the same pair share one database read.
func (s *ResponsibilityService) GetResponsible(ctx context.Context, processID, departmentID string) (*domain.ResponsibilityAssignment, error) {
	key := domain.ResponsibilityKey{ProcessID: processID, DepartmentID: departmentID}
	if assignment, ok := s.fromCache(ctx, key); ok {
		return assignment, nil
	}

	v, err, _ := s.group.Do(key.String(), func() (interface{}, error) {
		assignment, err := s.repo.Get(ctx, processID, departmentID)
		if errors.Is(err, pgx.ErrNoRows) {
			s.remember(ctx, key, nil)
			return (*domain.ResponsibilityAssignment)(nil), nil
		}
		if err != nil {
			return nil, err
		}
		s.remember(ctx, key, assignment)
		return assignment, nil
	})
	if err != nil {
		return nil, apperrors.NewPersistenceError("load responsibility", err, map[string]any{
			"process_id":    processID,
			"department_id": departmentID,
		})
	}
	assignment := v.(*domain.ResponsibilityAssignment)
	if assignment == nil {
		return nil, nil
	}
	out := *assignment
	return &out, nil
}

// GetResponsibles resolves many pairs at once. Cache misses are loaded with a
// single query. Unclaimed pairs are absent from the result.
func (s *ResponsibilityService) GetResponsibles(ctx context.Context, keys []domain.ResponsibilityKey) (map[domain.ResponsibilityKey]*domain.ResponsibilityAssignment, error) {
	result := make(map[domain.ResponsibilityKey]*domain.ResponsibilityAssignment, len(keys))
	var missing []domain.ResponsibilityKey
	seen := make(map[domain.ResponsibilityKey]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		assignment, ok := s.fromCache(ctx, key)
		if !ok {
			missing = append(missing, key)
			continue
		}
		if assignment != nil {
			result[key] = assignment
		}
	}
	if len(missing) == 0 {
		return result, nil
	}

	processIDs := make([]string, 0, len(missing))
	seenProcess := make(map[string]struct{}, len(missing))
	for _, key := range missing {
		if _, ok := seenProcess[key.ProcessID]; ok {
			continue
		}
		seenProcess[key.ProcessID] = struct{}{}
		processIDs = append(processIDs, key.ProcessID)
	}
	rows, err := s.repo.ListByProcesses(ctx, processIDs)
	if err != nil {
		return nil, apperrors.NewPersistenceError("load responsibilities", err, map[string]any{"processes": len(processIDs)})
	}
	loaded := make(map[domain.ResponsibilityKey]*domain.ResponsibilityAssignment, len(rows))
	for i := range rows {
		row := rows[i]
		loaded[domain.ResponsibilityKey{ProcessID: row.ProcessID, DepartmentID: row.DepartmentID}] = &row
	}
	for _, key := range missing {
		assignment := loaded[key]
		s.remember(ctx, key, assignment)
		if assignment != nil {
			result[key] = assignment
		}
	}
	return result, nil
}

// AcceptResponsibility claims the pair for userID. Claiming a pair already
// held by the same user succeeds without changes; any other holder yields
// ALREADY_ASSIGNED. The storage unique constraint decides concurrent claims.
func (s *ResponsibilityService) AcceptResponsibility(ctx context.Context, processID, departmentID, userID string) (*domain.ResponsibilityAssignment, error) {
	details := map[string]any{"process_id": processID, "department_id": departmentID}

	existing, err := s.repo.Get(ctx, processID, departmentID)
	switch {
	case err == nil:
		return s.resolveExisting(existing, userID, details)
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, apperrors.NewPersistenceError("load responsibility", err, details)
	}

	assignment := &domain.ResponsibilityAssignment{
		ProcessID:    processID,
		DepartmentID: departmentID,
		UserID:       userID,
		AssignedAt:   s.now().UTC(),
	}
	if err := s.repo.Create(ctx, assignment); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewPersistenceError("store responsibility", err, details)
		}
		winner, getErr := s.repo.Get(ctx, processID, departmentID)
		if getErr != nil {
			return nil, apperrors.NewAlreadyAssigned(details)
		}
		return s.resolveExisting(winner, userID, details)
	}

	key := domain.ResponsibilityKey{ProcessID: processID, DepartmentID: departmentID}
	s.remember(ctx, key, assignment)

	if s.notifier != nil {
		if _, err := s.notifier.MarkResponded(ctx, processID, userID); err != nil {
			s.logger.Warn("mark notifications responded failed",
				zap.String("process_id", processID),
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}
	s.publish(ctx, events.EventResponsibilityAccepted, processID, userID, events.ResponsibilityAcceptedPayload{
		DepartmentID: departmentID,
		UserID:       userID,
	})
	return assignment, nil
}

// Reassign hands the pair to userID regardless of the current holder.
func (s *ResponsibilityService) Reassign(ctx context.Context, processID, departmentID, userID, actorID string) (*domain.ResponsibilityAssignment, error) {
	assignment := &domain.ResponsibilityAssignment{
		ProcessID:    processID,
		DepartmentID: departmentID,
		UserID:       userID,
		AssignedAt:   s.now().UTC(),
	}
	if err := s.repo.Replace(ctx, assignment); err != nil {
		return nil, apperrors.NewPersistenceError("store responsibility", err, map[string]any{
			"process_id":    processID,
			"department_id": departmentID,
		})
	}
	s.Invalidate(ctx, domain.ResponsibilityKey{ProcessID: processID, DepartmentID: departmentID})
	s.publish(ctx, events.EventResponsibilityAccepted, processID, actorID, events.ResponsibilityAcceptedPayload{
		DepartmentID: departmentID,
		UserID:       userID,
	})
	return assignment, nil
}

// Invalidate drops cached lookups for keys. Cache failures are logged; the
// entries expire on their own.
func (s *ResponsibilityService) Invalidate(ctx context.Context, keys ...domain.ResponsibilityKey) {
	if s.store == nil || len(keys) == 0 {
		return
	}
	names := make([]string, len(keys))
	for i, key := range keys {
		names[i] = key.String()
	}
	if err := s.store.Delete(ctx, names...); err != nil {
		s.logger.Warn("responsibility cache invalidation failed", zap.Strings("keys", names), zap.Error(err))
		return
	}
	s.metrics.RecordCacheInvalidate()
}

func (s *ResponsibilityService) resolveExisting(existing *domain.ResponsibilityAssignment, userID string, details map[string]any) (*domain.ResponsibilityAssignment, error) {
	if existing.UserID == userID {
		return existing, nil
	}
	return nil, apperrors.NewAlreadyAssigned(details)
}

func (s *ResponsibilityService) fromCache(ctx context.Context, key domain.ResponsibilityKey) (*domain.ResponsibilityAssignment, bool) {
	if s.store == nil {
		return nil, false
	}
	raw, ok, err := s.store.Get(ctx, key.String())
	if err != nil {
		s.logger.Warn("responsibility cache read failed", zap.String("key", key.String()), zap.Error(err))
		s.metrics.RecordCacheRequest(false)
		return nil, false
	}
	if !ok {
		s.metrics.RecordCacheRequest(false)
		return nil, false
	}
	var entry cachedAssignment
	if err := json.Unmarshal(raw, &entry); err != nil {
		s.metrics.RecordCacheRequest(false)
		return nil, false
	}
	s.metrics.RecordCacheRequest(true)
	if !entry.Found {
		return nil, true
	}
	return &domain.ResponsibilityAssignment{
		ProcessID:    key.ProcessID,
		DepartmentID: key.DepartmentID,
		UserID:       entry.UserID,
		AssignedAt:   entry.AssignedAt,
	}, true
}

func (s *ResponsibilityService) remember(ctx context.Context, key domain.ResponsibilityKey, assignment *domain.ResponsibilityAssignment) {
	if s.store == nil {
		return
	}
	entry := cachedAssignment{}
	if assignment != nil {
		entry = cachedAssignment{Found: true, UserID: assignment.UserID, AssignedAt: assignment.AssignedAt}
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.store.Set(ctx, key.String(), raw, s.ttl); err != nil {
		s.logger.Warn("responsibility cache write failed", zap.String("key", key.String()), zap.Error(err))
	}
}

func (s *ResponsibilityService) publish(ctx context.Context, eventType events.EventType, processID, actorID string, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		ProcessID: processID,
		ActorID:   actorID,
		Timestamp: s.now().UTC(),
		Payload:   payload,
	})
}
