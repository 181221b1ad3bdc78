package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/process-tracker/internal/service"
)

// StartNotificationWorker registers transition handlers so department
// members hear about every move.
func StartNotificationWorker(notificationService *service.NotificationService, logger *zap.Logger) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
	if logger != nil {
		logger.Info("notification handlers registered", zap.String("type", string(notificationService.MovedType())))
	}
}
