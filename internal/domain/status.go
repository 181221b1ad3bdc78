package domain

import "time"

const day = 24 * time.Hour

// DeriveStatus computes the effective status of a process.
//
// Persisted not_started and completed flags win. Otherwise the current
// department deadline (entry time plus the department time limit) is checked
// before the overall expected end date, since lateness in the current stage is
// reported even when the process is inside its overall window. A time limit of
// zero means the department has no deadline.
func DeriveStatus(p *Process, open *HistoryEntry, timeLimitDays int, now time.Time) ProcessStatus {
	switch p.Status {
	case ProcessStatusNotStarted:
		return ProcessStatusNotStarted
	case ProcessStatusCompleted:
		return ProcessStatusCompleted
	}

	if timeLimitDays > 0 && open != nil {
		deadline := open.EntryTime.Add(time.Duration(timeLimitDays) * day)
		if now.After(deadline) {
			return ProcessStatusOverdue
		}
	}

	if p.ExpectedEndDate != nil && now.After(*p.ExpectedEndDate) {
		return ProcessStatusOverdue
	}
	return ProcessStatusPending
}
