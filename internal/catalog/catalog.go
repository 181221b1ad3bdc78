// Package catalog keeps an ordered, locally cached snapshot of the
// department pipeline. The snapshot is eventually consistent: it is replaced
// as a whole by Refresh, and routing decisions read whichever snapshot is
// current.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spec-kit/process-tracker/internal/domain"
	apperrors "github.com/spec-kit/process-tracker/pkg/util"
)

// Source loads departments from the backing store.
type Source interface {
	ListOrdered(ctx context.Context) ([]domain.Department, error)
}

// Catalog is safe for concurrent use.
type Catalog struct {
	source Source

	mu       sync.RWMutex
	snapshot *snapshot
}

type snapshot struct {
	ordered []domain.Department
	index   map[string]int
}

// New returns an empty catalog; call Refresh before routing.
func New(source Source) *Catalog {
	return &Catalog{source: source, snapshot: &snapshot{index: map[string]int{}}}
}

// Refresh reloads the departments and swaps the snapshot. When the loaded
// data breaks the ordering rules the previous snapshot is kept.
func (c *Catalog) Refresh(ctx context.Context) error {
	departments, err := c.source.ListOrdered(ctx)
	if err != nil {
		return apperrors.NewPersistenceError("load departments", err, nil)
	}
	return c.Load(departments)
}

// Load validates departments and installs them as the current snapshot.
func (c *Catalog) Load(departments []domain.Department) error {
	ordered := make([]domain.Department, len(departments))
	copy(ordered, departments)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	if err := Validate(ordered); err != nil {
		return err
	}

	index := make(map[string]int, len(ordered))
	for i, dept := range ordered {
		index[dept.ID] = i
	}

	c.mu.Lock()
	c.snapshot = &snapshot{ordered: ordered, index: index}
	c.mu.Unlock()
	return nil
}

// Validate checks that departments (sorted by order) form a strict total
// order with exactly one terminal department holding the maximum order.
func Validate(ordered []domain.Department) error {
	if len(ordered) == 0 {
		return nil
	}
	terminals := 0
	for i, dept := range ordered {
		if i > 0 && ordered[i-1].Order == dept.Order {
			return apperrors.NewValidationError("department order must be unique", map[string]any{
				"order":       dept.Order,
				"departments": []string{ordered[i-1].ID, dept.ID},
			})
		}
		if dept.TimeLimitDays < 0 {
			return apperrors.NewValidationError("time limit cannot be negative", map[string]any{"department_id": dept.ID})
		}
		if dept.IsTerminal {
			terminals++
		}
	}
	if terminals != 1 {
		return apperrors.NewValidationError(fmt.Sprintf("expected exactly one terminal department, found %d", terminals), nil)
	}
	if !ordered[len(ordered)-1].IsTerminal {
		return apperrors.NewValidationError("terminal department must have the highest order", map[string]any{
			"department_id": ordered[len(ordered)-1].ID,
		})
	}
	return nil
}

func (c *Catalog) current() *snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// All returns every department in order.
func (c *Catalog) All() []domain.Department {
	s := c.current()
	out := make([]domain.Department, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Regular returns the non-terminal departments in order.
func (c *Catalog) Regular() []domain.Department {
	s := c.current()
	out := make([]domain.Department, 0, len(s.ordered))
	for _, dept := range s.ordered {
		if !dept.IsTerminal {
			out = append(out, dept)
		}
	}
	return out
}

// Get looks up a department by id.
func (c *Catalog) Get(id string) (domain.Department, bool) {
	s := c.current()
	i, ok := s.index[id]
	if !ok {
		return domain.Department{}, false
	}
	return s.ordered[i], true
}

// First returns the lowest-order regular department, the intake department.
func (c *Catalog) First() (domain.Department, bool) {
	s := c.current()
	for _, dept := range s.ordered {
		if !dept.IsTerminal {
			return dept, true
		}
	}
	return domain.Department{}, false
}

// Terminal returns the department that marks completion.
func (c *Catalog) Terminal() (domain.Department, bool) {
	s := c.current()
	if n := len(s.ordered); n > 0 && s.ordered[n-1].IsTerminal {
		return s.ordered[n-1], true
	}
	return domain.Department{}, false
}

// IsTerminal reports whether id is the terminal department.
func (c *Catalog) IsTerminal(id string) bool {
	dept, ok := c.Get(id)
	return ok && dept.IsTerminal
}

// IsFirst reports whether id is the intake department.
func (c *Catalog) IsFirst(id string) bool {
	first, ok := c.First()
	return ok && first.ID == id
}

// Next returns the department following id by order.
func (c *Catalog) Next(id string) (domain.Department, bool) {
	s := c.current()
	i, ok := s.index[id]
	if !ok || i+1 >= len(s.ordered) {
		return domain.Department{}, false
	}
	return s.ordered[i+1], true
}

// Previous returns the department preceding id by order.
func (c *Catalog) Previous(id string) (domain.Department, bool) {
	s := c.current()
	i, ok := s.index[id]
	if !ok || i == 0 {
		return domain.Department{}, false
	}
	return s.ordered[i-1], true
}

// Len returns the number of departments in the snapshot.
func (c *Catalog) Len() int {
	return len(c.current().ordered)
}
