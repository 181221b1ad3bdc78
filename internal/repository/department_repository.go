package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/process-tracker/internal/domain"
	"github.com/spec-kit/process-tracker/internal/persistence"
)

// DepartmentRepository manages department persistence.
type DepartmentRepository interface {
	Create(ctx context.Context, dept *domain.Department) error
	Update(ctx context.Context, dept *domain.Department) error
	GetByID(ctx context.Context, id string) (*domain.Department, error)
	ListOrdered(ctx context.Context) ([]domain.Department, error)
}

type departmentRepository struct {
	pool *pgxpool.Pool
}

// NewDepartmentRepository builds the repository.
func NewDepartmentRepository(pool *pgxpool.Pool) DepartmentRepository {
	return &departmentRepository{pool: pool}
}

const departmentColumns = `id, name, "order", time_limit_days, is_terminal, requires_process_type, created_at, updated_at`

func (r *departmentRepository) Create(ctx context.Context, dept *domain.Department) error {
	const query = `
        INSERT INTO departments (name, "order", time_limit_days, is_terminal, requires_process_type)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	err := persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		dept.Name,
		dept.Order,
		dept.TimeLimitDays,
		dept.IsTerminal,
		dept.RequiresProcessType,
	).Scan(&dept.ID, &dept.CreatedAt, &dept.UpdatedAt)
	return translateWriteError(err)
}

func (r *departmentRepository) Update(ctx context.Context, dept *domain.Department) error {
	const query = `
        UPDATE departments SET name=$1, "order"=$2, time_limit_days=$3, is_terminal=$4,
            requires_process_type=$5, updated_at=NOW()
        WHERE id=$6`
	cmd, err := persistence.Conn(ctx, r.pool).Exec(ctx, query,
		dept.Name,
		dept.Order,
		dept.TimeLimitDays,
		dept.IsTerminal,
		dept.RequiresProcessType,
		dept.ID,
	)
	if err != nil {
		return translateWriteError(err)
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *departmentRepository) GetByID(ctx context.Context, id string) (*domain.Department, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments WHERE id=$1`
	var dept domain.Department
	if err := persistence.Conn(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&dept.ID,
		&dept.Name,
		&dept.Order,
		&dept.TimeLimitDays,
		&dept.IsTerminal,
		&dept.RequiresProcessType,
		&dept.CreatedAt,
		&dept.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &dept, nil
}

func (r *departmentRepository) ListOrdered(ctx context.Context) ([]domain.Department, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments ORDER BY "order" ASC`
	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Department
	for rows.Next() {
		var dept domain.Department
		if err := rows.Scan(
			&dept.ID,
			&dept.Name,
			&dept.Order,
			&dept.TimeLimitDays,
			&dept.IsTerminal,
			&dept.RequiresProcessType,
			&dept.CreatedAt,
			&dept.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, dept)
	}
	return result, rows.Err()
}
