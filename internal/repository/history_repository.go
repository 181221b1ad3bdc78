package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/process-tracker/internal/domain"
	"github.com/spec-kit/process-tracker/internal/persistence"
)

// HistoryRepository stores department occupancy intervals.
type HistoryRepository interface {
	Open(ctx context.Context, entry *domain.HistoryEntry) error
	// CloseOpen stamps the exit time on the process's open entry and returns
	// it, or pgx.ErrNoRows when none is open.
	CloseOpen(ctx context.Context, processID string, exitTime time.Time, actingUserID string) (*domain.HistoryEntry, error)
	GetOpen(ctx context.Context, processID string) (*domain.HistoryEntry, error)
	ListOpenByProcesses(ctx context.Context, processIDs []string) ([]domain.HistoryEntry, error)
	ListByProcess(ctx context.Context, processID string) ([]domain.HistoryEntry, error)
}

type historyRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository builds repository.
func NewHistoryRepository(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepository{pool: pool}
}

const historyColumns = `id, process_id, department_id, entry_time, exit_time, acting_user_id`

func (r *historyRepository) Open(ctx context.Context, entry *domain.HistoryEntry) error {
	const query = `
        INSERT INTO history (process_id, department_id, entry_time, acting_user_id)
        VALUES ($1,$2,$3,$4)
        RETURNING id`
	err := persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		entry.ProcessID,
		entry.DepartmentID,
		entry.EntryTime,
		entry.ActingUserID,
	).Scan(&entry.ID)
	return translateWriteError(err)
}

func (r *historyRepository) CloseOpen(ctx context.Context, processID string, exitTime time.Time, actingUserID string) (*domain.HistoryEntry, error) {
	query := `
        UPDATE history SET exit_time=$2, acting_user_id=$3
        WHERE process_id=$1 AND exit_time IS NULL
        RETURNING ` + historyColumns
	return scanHistory(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, processID, exitTime, actingUserID))
}

func (r *historyRepository) GetOpen(ctx context.Context, processID string) (*domain.HistoryEntry, error) {
	query := `SELECT ` + historyColumns + `
        FROM history WHERE process_id=$1 AND exit_time IS NULL
        ORDER BY entry_time DESC LIMIT 1`
	return scanHistory(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, processID))
}

func (r *historyRepository) ListOpenByProcesses(ctx context.Context, processIDs []string) ([]domain.HistoryEntry, error) {
	if len(processIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + historyColumns + `
        FROM history WHERE process_id::text = ANY($1) AND exit_time IS NULL`
	return r.list(ctx, query, processIDs)
}

func (r *historyRepository) ListByProcess(ctx context.Context, processID string) ([]domain.HistoryEntry, error) {
	query := `SELECT ` + historyColumns + `
        FROM history WHERE process_id=$1 ORDER BY entry_time ASC`
	return r.list(ctx, query, processID)
}

func (r *historyRepository) list(ctx context.Context, query string, arg any) ([]domain.HistoryEntry, error) {
	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.HistoryEntry
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *entry)
	}
	return result, rows.Err()
}

func scanHistory(row pgx.Row) (*domain.HistoryEntry, error) {
	var entry domain.HistoryEntry
	if err := row.Scan(
		&entry.ID,
		&entry.ProcessID,
		&entry.DepartmentID,
		&entry.EntryTime,
		&entry.ExitTime,
		&entry.ActingUserID,
	); err != nil {
		return nil, err
	}
	return &entry, nil
}
