package domain

import "time"

// HistoryEntry records one occupancy interval of a process in a department.
// An entry with a nil ExitTime is the open entry for the process.
type HistoryEntry struct {
	ID           string
	ProcessID    string
	DepartmentID string
	EntryTime    time.Time
	ExitTime     *time.Time
	ActingUserID *string
}

// Open reports whether the entry still represents current occupancy.
func (h HistoryEntry) Open() bool {
	return h.ExitTime == nil
}

// LatestOpenEntry returns the most recently opened open entry for departmentID.
// Processes sent back re-enter departments, so several entries may share it.
func LatestOpenEntry(entries []HistoryEntry, departmentID string) *HistoryEntry {
	var latest *HistoryEntry
	for i := range entries {
		entry := &entries[i]
		if entry.DepartmentID != departmentID || !entry.Open() {
			continue
		}
		if latest == nil || entry.EntryTime.After(latest.EntryTime) {
			latest = entry
		}
	}
	return latest
}
