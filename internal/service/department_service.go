package service

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/process-tracker/internal/catalog"
	"github.com/spec-kit/process-tracker/internal/domain"
	"github.com/spec-kit/process-tracker/internal/repository"
	apperrors "github.com/spec-kit/process-tracker/pkg/util"
)

// ChangeNotifier tells other instances that the department catalog changed.
type ChangeNotifier interface {
	Notify(ctx context.Context) error
}

// DepartmentService manages the department pipeline.
type DepartmentService struct {
	repo     repository.DepartmentRepository
	catalog  *catalog.Catalog
	notifier ChangeNotifier
	logger   *zap.Logger
}

// DepartmentDependencies bundles collaborators for the department service.
type DepartmentDependencies struct {
	Repo     repository.DepartmentRepository
	Catalog  *catalog.Catalog
	Notifier ChangeNotifier
	Logger   *zap.Logger
}

// DepartmentInput describes department creation and update payloads.
type DepartmentInput struct {
	Name                string
	Order               int
	TimeLimitDays       int
	IsTerminal          bool
	RequiresProcessType bool
}

// NewDepartmentService constructs the service.
func NewDepartmentService(deps DepartmentDependencies) *DepartmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DepartmentService{repo: deps.Repo, catalog: deps.Catalog, notifier: deps.Notifier, logger: logger}
}

// List returns the pipeline in order from the local catalog.
func (s *DepartmentService) List() []domain.Department {
	return s.catalog.All()
}

// Create adds a department. The resulting pipeline must stay valid.
func (s *DepartmentService) Create(ctx context.Context, actor *domain.User, input DepartmentInput) (*domain.Department, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("admin profile required")
	}
	dept := &domain.Department{}
	if err := applyDepartmentInput(dept, input); err != nil {
		return nil, err
	}
	if err := s.validatePipeline(ctx, *dept); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, dept); err != nil {
		return nil, mapRepoError(err, "department", map[string]any{"order": dept.Order})
	}
	s.changed(ctx, actor, dept)
	return dept, nil
}

// Update replaces a department's attributes.
func (s *DepartmentService) Update(ctx context.Context, actor *domain.User, id string, input DepartmentInput) (*domain.Department, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("admin profile required")
	}
	dept, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "department", map[string]any{"department_id": id})
	}
	if err := applyDepartmentInput(dept, input); err != nil {
		return nil, err
	}
	if err := s.validatePipeline(ctx, *dept); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, dept); err != nil {
		return nil, mapRepoError(err, "department", map[string]any{"department_id": id})
	}
	s.changed(ctx, actor, dept)
	return dept, nil
}

// validatePipeline checks the stored departments as they would look with dept
// written. While no terminal exists only order uniqueness applies, so the
// pipeline can be built up; once one exists every write must keep a single
// terminal holding the highest order.
func (s *DepartmentService) validatePipeline(ctx context.Context, dept domain.Department) error {
	stored, err := s.repo.ListOrdered(ctx)
	if err != nil {
		return mapRepoError(err, "departments", nil)
	}
	next := make([]domain.Department, 0, len(stored)+1)
	hadTerminal := false
	for _, existing := range stored {
		if existing.IsTerminal {
			hadTerminal = true
		}
		if dept.ID != "" && existing.ID == dept.ID {
			continue
		}
		next = append(next, existing)
	}
	next = append(next, dept)
	sort.SliceStable(next, func(i, j int) bool { return next[i].Order < next[j].Order })

	hasTerminal := false
	for _, d := range next {
		if d.IsTerminal {
			hasTerminal = true
		}
	}
	if hasTerminal {
		return catalog.Validate(next)
	}
	if hadTerminal {
		return apperrors.NewValidationError("pipeline must keep a terminal department", map[string]any{"department_id": dept.ID})
	}
	for i := 1; i < len(next); i++ {
		if next[i-1].Order == next[i].Order {
			return apperrors.NewValidationError("department order must be unique", map[string]any{"order": next[i].Order})
		}
	}
	return nil
}

func (s *DepartmentService) changed(ctx context.Context, actor *domain.User, dept *domain.Department) {
	if err := s.catalog.Refresh(ctx); err != nil {
		s.logger.Warn("catalog refresh after write failed", zap.Error(err))
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx); err != nil {
			s.logger.Warn("catalog change notification failed", zap.Error(err))
		}
	}
	s.logger.Info("department saved",
		zap.String("department_id", dept.ID),
		zap.Int("order", dept.Order),
		zap.String("actor_id", actor.ID))
}

func applyDepartmentInput(dept *domain.Department, input DepartmentInput) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return apperrors.NewValidationError("department name is required", nil)
	}
	if input.TimeLimitDays < 0 {
		return apperrors.NewValidationError("time limit cannot be negative", nil)
	}
	dept.Name = name
	dept.Order = input.Order
	dept.TimeLimitDays = input.TimeLimitDays
	dept.IsTerminal = input.IsTerminal
	dept.RequiresProcessType = input.RequiresProcessType
	return nil
}
