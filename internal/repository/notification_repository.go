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

// NotificationRepository persists notification records.
type NotificationRepository interface {
	// CreateBatch inserts all notifications in one statement.
	CreateBatch(ctx context.Context, notifications []domain.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkResponded(ctx context.Context, processID, userID string, notificationType domain.NotificationType) (int64, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository builds repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) CreateBatch(ctx context.Context, notifications []domain.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	values := make([]string, 0, len(notifications))
	args := make([]any, 0, len(notifications)*4)
	for _, n := range notifications {
		args = append(args, n.ProcessID, n.UserID, n.Message, n.Type)
		base := len(args) - 3
		values = append(values, fmt.Sprintf("($%d,$%d,$%d,$%d)", base, base+1, base+2, base+3))
	}
	query := `INSERT INTO notifications (process_id, user_id, message, type) VALUES ` + strings.Join(values, ",")
	_, err := persistence.Conn(ctx, r.pool).Exec(ctx, query, args...)
	return err
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	query := `
        SELECT id, process_id, user_id, message, type, read, responded, created_at
        FROM notifications WHERE user_id=$1`
	if unreadOnly {
		query += ` AND read = FALSE`
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.ProcessID, &n.UserID, &n.Message, &n.Type, &n.Read, &n.Responded, &n.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	const query = `UPDATE notifications SET read = TRUE WHERE id=$1 AND user_id=$2`
	cmd, err := persistence.Conn(ctx, r.pool).Exec(ctx, query, id, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *notificationRepository) MarkResponded(ctx context.Context, processID, userID string, notificationType domain.NotificationType) (int64, error) {
	const query = `
        UPDATE notifications SET responded = TRUE, read = TRUE
        WHERE process_id=$1 AND user_id=$2 AND type=$3 AND responded = FALSE`
	cmd, err := persistence.Conn(ctx, r.pool).Exec(ctx, query, processID, userID, notificationType)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
