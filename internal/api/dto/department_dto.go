package dto

// DepartmentRequest payload for creating or updating a department.
type DepartmentRequest struct {
	Name                string `json:"name"`
	Order               int    `json:"order"`
	TimeLimitDays       int    `json:"time_limit_days"`
	IsTerminal          bool   `json:"is_terminal"`
	RequiresProcessType bool   `json:"requires_process_type"`
}

// DepartmentResponse describes one pipeline stage.
type DepartmentResponse struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Order               int    `json:"order"`
	TimeLimitDays       int    `json:"time_limit_days"`
	IsTerminal          bool   `json:"is_terminal"`
	RequiresProcessType bool   `json:"requires_process_type"`
}
