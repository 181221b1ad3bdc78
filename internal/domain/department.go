package domain

import "time"

// Department is one stage of the ordered pipeline a process passes through.
type Department struct {
	ID                  string
	Name                string
	Order               int
	TimeLimitDays       int
	IsTerminal          bool
	RequiresProcessType bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasDeadline reports whether entries in this department can become overdue.
func (d Department) HasDeadline() bool {
	return d.TimeLimitDays > 0
}
