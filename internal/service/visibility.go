package service

import (
	"github.com/spec-kit/process-tracker/internal/catalog"
	"github.com/spec-kit/process-tracker/internal/domain"
)

// Visibility decides what a user may see and do with a process. The
// assignment argument is the claim for the process's current department,
// nil when unclaimed.
type Visibility struct {
	catalog *catalog.Catalog
}

// NewVisibility builds the rules over the department catalog.
func NewVisibility(c *catalog.Catalog) Visibility {
	return Visibility{catalog: c}
}

// CanView grants access to admins, the process owner, intake members for
// processes not yet started, and members of the current department while
// the process is unclaimed or claimed by them.
func (v Visibility) CanView(p *domain.Process, user *domain.User, assignment *domain.ResponsibilityAssignment) bool {
	if p == nil || user == nil {
		return false
	}
	if user.IsAdmin() || v.owns(p, user) {
		return true
	}
	if p.CurrentDepartmentID == nil {
		return p.Status == domain.ProcessStatusNotStarted && v.inIntake(user)
	}
	if !user.BelongsTo(*p.CurrentDepartmentID) {
		return false
	}
	return assignment == nil || assignment.UserID == user.ID
}

// CanAcceptResponsibility reports whether user may claim the process in its
// current department.
func (v Visibility) CanAcceptResponsibility(p *domain.Process, user *domain.User, assignment *domain.ResponsibilityAssignment) bool {
	if p == nil || user == nil || p.CurrentDepartmentID == nil || assignment != nil {
		return false
	}
	return user.BelongsTo(*p.CurrentDepartmentID) || v.owns(p, user)
}

// CanStart reports whether user may start processes.
func (v Visibility) CanStart(user *domain.User) bool {
	if user == nil {
		return false
	}
	return user.IsAdmin() || v.inIntake(user)
}

// CanMove reports whether user may advance or revert the process. Members
// must hold the claim for the current department.
func (v Visibility) CanMove(p *domain.Process, user *domain.User, assignment *domain.ResponsibilityAssignment) bool {
	if p == nil || user == nil || p.CurrentDepartmentID == nil {
		return false
	}
	if user.IsAdmin() || v.owns(p, user) {
		return true
	}
	return assignment != nil && assignment.UserID == user.ID && user.BelongsTo(*p.CurrentDepartmentID)
}

func (v Visibility) owns(p *domain.Process, user *domain.User) bool {
	return p.ResponsibleUserID != nil && *p.ResponsibleUserID == user.ID
}

func (v Visibility) inIntake(user *domain.User) bool {
	if v.catalog == nil {
		return false
	}
	first, ok := v.catalog.First()
	return ok && user.BelongsTo(first.ID)
}
