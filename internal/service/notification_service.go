package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/process-tracker/internal/domain"
	"github.com/spec-kit/process-tracker/internal/events"
	"github.com/spec-kit/process-tracker/internal/observability"
	"github.com/spec-kit/process-tracker/internal/repository"
)

// NotificationService fans department transitions out to department members.
type NotificationService struct {
	users         repository.UserRepository
	notifications repository.NotificationRepository
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	metrics       *observability.Metrics
	movedType     domain.NotificationType
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	UserRepo         repository.UserRepository
	NotificationRepo repository.NotificationRepository
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
	Metrics          *observability.Metrics
	MovedType        string
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	movedType := domain.NotificationType(deps.MovedType)
	if movedType == "" {
		movedType = domain.NotificationTypeProcessMoved
	}
	return &NotificationService{
		users:         deps.UserRepo,
		notifications: deps.NotificationRepo,
		dispatcher:    deps.Dispatcher,
		logger:        logger,
		metrics:       deps.Metrics,
		movedType:     movedType,
	}
}

// RegisterHandlers subscribes to transition events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventProcessStarted, n.handleProcessMoved)
	n.dispatcher.Subscribe(events.EventProcessMoved, n.handleProcessMoved)
}

// MovedType is the notification type written for transitions.
func (n *NotificationService) MovedType() domain.NotificationType {
	return n.movedType
}

// NotifyDepartmentMembers inserts one notification per active member of
// departmentID in a single batch write.
func (n *NotificationService) NotifyDepartmentMembers(ctx context.Context, processID, departmentID, message string) error {
	members, err := n.users.ListActiveByDepartment(ctx, departmentID)
	if err != nil {
		n.metrics.RecordNotificationDispatch(err)
		return fmt.Errorf("resolve department members: %w", err)
	}
	if len(members) == 0 {
		n.logger.Debug("no members to notify",
			zap.String("process_id", processID),
			zap.String("department_id", departmentID))
		return nil
	}

	batch := make([]domain.Notification, 0, len(members))
	for _, member := range members {
		batch = append(batch, domain.Notification{
			ProcessID: processID,
			UserID:    member.ID,
			Message:   message,
			Type:      n.movedType,
		})
	}
	err = n.notifications.CreateBatch(ctx, batch)
	n.metrics.RecordNotificationDispatch(err)
	if err != nil {
		return fmt.Errorf("insert notifications: %w", err)
	}
	return nil
}

// ListForUser returns the caller's notifications, newest first.
func (n *NotificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	list, err := n.notifications.ListByUser(ctx, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, mapRepoError(err, "notification", nil)
	}
	return list, nil
}

// MarkRead flags one of the caller's notifications as read.
func (n *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	if err := n.notifications.MarkRead(ctx, notificationID, userID); err != nil {
		return mapRepoError(err, "notification", map[string]any{"notification_id": notificationID})
	}
	return nil
}

// MarkResponded closes the user's pending transition notifications for processID.
func (n *NotificationService) MarkResponded(ctx context.Context, processID, userID string) (int64, error) {
	return n.notifications.MarkResponded(ctx, processID, userID, n.movedType)
}

// handleProcessMoved never fails the transition; errors are logged here and
// by the dispatcher.
func (n *NotificationService) handleProcessMoved(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ProcessMovedPayload)
	if !ok {
		n.logger.Warn("unexpected payload for transition event", zap.String("event_id", event.ID))
		return nil
	}
	message := fmt.Sprintf("Process %s moved to %s", payload.ProtocolNumber, payload.ToDepartmentName)
	if err := n.NotifyDepartmentMembers(ctx, event.ProcessID, payload.ToDepartmentID, message); err != nil {
		n.logger.Warn("notification dispatch failed",
			zap.String("process_id", event.ProcessID),
			zap.String("department_id", payload.ToDepartmentID),
			zap.Error(err))
		return err
	}
	return nil
}
