package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/process-tracker/internal/domain"
	"github.com/spec-kit/process-tracker/internal/persistence"
)

// ResponsibilityRepository persists sector_responsibles rows.
type ResponsibilityRepository interface {
	// Create inserts the assignment. A row for the same (process, department)
	// yields ErrDuplicate; the first writer wins.
	Create(ctx context.Context, assignment *domain.ResponsibilityAssignment) error
	// Replace overwrites any existing assignment for the pair.
	Replace(ctx context.Context, assignment *domain.ResponsibilityAssignment) error
	Get(ctx context.Context, processID, departmentID string) (*domain.ResponsibilityAssignment, error)
	ListByProcesses(ctx context.Context, processIDs []string) ([]domain.ResponsibilityAssignment, error)
	Delete(ctx context.Context, processID, departmentID string) (bool, error)
}

type responsibilityRepository struct {
	pool *pgxpool.Pool
}

// NewResponsibilityRepository builds repository.
func NewResponsibilityRepository(pool *pgxpool.Pool) ResponsibilityRepository {
	return &responsibilityRepository{pool: pool}
}

func (r *responsibilityRepository) Create(ctx context.Context, assignment *domain.ResponsibilityAssignment) error {
	const query = `
        INSERT INTO sector_responsibles (process_id, department_id, user_id)
        VALUES ($1,$2,$3)
        RETURNING assigned_at`
	err := persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		assignment.ProcessID,
		assignment.DepartmentID,
		assignment.UserID,
	).Scan(&assignment.AssignedAt)
	return translateWriteError(err)
}

func (r *responsibilityRepository) Replace(ctx context.Context, assignment *domain.ResponsibilityAssignment) error {
	const query = `
        INSERT INTO sector_responsibles (process_id, department_id, user_id)
        VALUES ($1,$2,$3)
        ON CONFLICT (process_id, department_id)
        DO UPDATE SET user_id = EXCLUDED.user_id, assigned_at = NOW()
        RETURNING assigned_at`
	return persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		assignment.ProcessID,
		assignment.DepartmentID,
		assignment.UserID,
	).Scan(&assignment.AssignedAt)
}

func (r *responsibilityRepository) Get(ctx context.Context, processID, departmentID string) (*domain.ResponsibilityAssignment, error) {
	const query = `
        SELECT process_id, department_id, user_id, assigned_at
        FROM sector_responsibles WHERE process_id=$1 AND department_id=$2`
	var a domain.ResponsibilityAssignment
	if err := persistence.Conn(ctx, r.pool).QueryRow(ctx, query, processID, departmentID).Scan(
		&a.ProcessID,
		&a.DepartmentID,
		&a.UserID,
		&a.AssignedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *responsibilityRepository) ListByProcesses(ctx context.Context, processIDs []string) ([]domain.ResponsibilityAssignment, error) {
	if len(processIDs) == 0 {
		return nil, nil
	}
	const query = `
        SELECT process_id, department_id, user_id, assigned_at
        FROM sector_responsibles WHERE process_id::text = ANY($1)`
	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query, processIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ResponsibilityAssignment
	for rows.Next() {
		var a domain.ResponsibilityAssignment
		if err := rows.Scan(&a.ProcessID, &a.DepartmentID, &a.UserID, &a.AssignedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *responsibilityRepository) Delete(ctx context.Context, processID, departmentID string) (bool, error) {
	const query = `DELETE FROM sector_responsibles WHERE process_id=$1 AND department_id=$2`
	cmd, err := persistence.Conn(ctx, r.pool).Exec(ctx, query, processID, departmentID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}
