package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/process-tracker/internal/domain"
	"github.com/spec-kit/process-tracker/internal/persistence"
)

// ProcessFilter captures listing parameters.
type ProcessFilter struct {
	DepartmentIDs     []string
	Statuses          []domain.ProcessStatus
	ResponsibleUserID *string
	ProcessType       *string
	SearchTerm        *string
	Limit             int
	Offset            int
}

// ProcessRepository encapsulates process persistence.
type ProcessRepository interface {
	Create(ctx context.Context, process *domain.Process) error
	// UpdateType and UpdateStatus touch a single column and return the stored
	// row, so they never overwrite a concurrent move.
	UpdateType(ctx context.Context, id string, processType *string) (*domain.Process, error)
	UpdateStatus(ctx context.Context, id string, status domain.ProcessStatus) (*domain.Process, error)
	// UpdateIfAt writes process only while its stored current department still
	// equals expectedDepartmentID. It returns false when another writer won.
	UpdateIfAt(ctx context.Context, process *domain.Process, expectedDepartmentID *string) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Process, error)
	GetByProtocol(ctx context.Context, protocolNumber string) (*domain.Process, error)
	List(ctx context.Context, filter ProcessFilter) ([]domain.Process, error)
	DeleteNotStarted(ctx context.Context, ids []string) (int64, error)
}

type processRepository struct {
	pool *pgxpool.Pool
}

// NewProcessRepository instantiates repository.
func NewProcessRepository(pool *pgxpool.Pool) ProcessRepository {
	return &processRepository{pool: pool}
}

const processColumns = `id, protocol_number, process_type, current_department_id, start_date,
               expected_end_date, status, responsible_user_id, created_at, updated_at`

func (r *processRepository) Create(ctx context.Context, process *domain.Process) error {
	const query = `
        INSERT INTO processes (protocol_number, process_type, current_department_id, start_date,
            expected_end_date, status, responsible_user_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	err := persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		process.ProtocolNumber,
		process.ProcessType,
		process.CurrentDepartmentID,
		process.StartDate,
		process.ExpectedEndDate,
		process.Status,
		process.ResponsibleUserID,
	).Scan(&process.ID, &process.CreatedAt, &process.UpdatedAt)
	return translateWriteError(err)
}

const processUpdateSet = `
        UPDATE processes SET process_type=$1, current_department_id=$2, start_date=$3,
            expected_end_date=$4, status=$5, responsible_user_id=$6, updated_at=NOW()
        WHERE id=$7`

func (r *processRepository) UpdateType(ctx context.Context, id string, processType *string) (*domain.Process, error) {
	query := `UPDATE processes SET process_type=$1, updated_at=NOW() WHERE id=$2 RETURNING ` + processColumns
	return scanProcess(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, processType, id))
}

func (r *processRepository) UpdateStatus(ctx context.Context, id string, status domain.ProcessStatus) (*domain.Process, error) {
	query := `UPDATE processes SET status=$1, updated_at=NOW() WHERE id=$2 RETURNING ` + processColumns
	return scanProcess(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, status, id))
}

func (r *processRepository) UpdateIfAt(ctx context.Context, process *domain.Process, expectedDepartmentID *string) (bool, error) {
	query := processUpdateSet + ` AND current_department_id IS NOT DISTINCT FROM $8`
	cmd, err := persistence.Conn(ctx, r.pool).Exec(ctx, query,
		process.ProcessType,
		process.CurrentDepartmentID,
		process.StartDate,
		process.ExpectedEndDate,
		process.Status,
		process.ResponsibleUserID,
		process.ID,
		expectedDepartmentID,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *processRepository) GetByID(ctx context.Context, id string) (*domain.Process, error) {
	query := `SELECT ` + processColumns + ` FROM processes WHERE id=$1`
	return scanProcess(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *processRepository) GetByProtocol(ctx context.Context, protocolNumber string) (*domain.Process, error) {
	query := `SELECT ` + processColumns + ` FROM processes WHERE protocol_number=$1`
	return scanProcess(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, protocolNumber))
}

func (r *processRepository) List(ctx context.Context, filter ProcessFilter) ([]domain.Process, error) {
	base := `SELECT ` + processColumns + ` FROM processes`
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.DepartmentIDs) > 0 {
		args = append(args, filter.DepartmentIDs)
		clauses = append(clauses, fmt.Sprintf("current_department_id::text = ANY($%d)", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ResponsibleUserID != nil {
		args = append(args, *filter.ResponsibleUserID)
		clauses = append(clauses, fmt.Sprintf("responsible_user_id=$%d", len(args)))
	}
	if filter.ProcessType != nil {
		args = append(args, *filter.ProcessType)
		clauses = append(clauses, fmt.Sprintf("process_type=$%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		clauses = append(clauses, fmt.Sprintf("LOWER(protocol_number) LIKE $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Process
	for rows.Next() {
		process, err := scanProcess(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *process)
	}
	return result, rows.Err()
}

func (r *processRepository) DeleteNotStarted(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `DELETE FROM processes WHERE id::text = ANY($1) AND status = $2`
	cmd, err := persistence.Conn(ctx, r.pool).Exec(ctx, query, ids, domain.ProcessStatusNotStarted)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanProcess(row pgx.Row) (*domain.Process, error) {
	var process domain.Process
	if err := row.Scan(
		&process.ID,
		&process.ProtocolNumber,
		&process.ProcessType,
		&process.CurrentDepartmentID,
		&process.StartDate,
		&process.ExpectedEndDate,
		&process.Status,
		&process.ResponsibleUserID,
		&process.CreatedAt,
		&process.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &process, nil
}
