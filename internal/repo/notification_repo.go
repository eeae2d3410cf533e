package repo

import (
	"context"
	"time"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/db"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

// NotificationRepository stores in-app notifications
type NotificationRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(database *db.DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{db: database, log: logger}
}

// CreateOnce inserts a notification unless one with the same loan and kind
// exists. It reports whether a row was inserted.
func (r *NotificationRepository) CreateOnce(ctx context.Context, n *db.Notification) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "loan_id"}, {Name: "kind"}},
			DoNothing: true,
		}).
		Create(n)
	if result.Error != nil {
		r.log.Error("Failed to create notification", zap.String("user_id", n.UserID.String()), zap.Error(result.Error))
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListNotifications returns a user's notifications, newest first
func (r *NotificationRepository) ListNotifications(ctx context.Context, userID uuid.UUID) ([]db.Notification, error) {
	var notifications []db.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&notifications).Error
	if err != nil {
		r.log.Error("Failed to list notifications", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, err
	}
	return notifications, nil
}

// MarkRead sets read_at on the given notifications of a user
func (r *NotificationRepository) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&db.Notification{}).
		Where("user_id = ? AND id IN ? AND read_at IS NULL", userID, ids).
		Update("read_at", at).Error
	if err != nil {
		r.log.Error("Failed to mark notifications read", zap.String("user_id", userID.String()), zap.Error(err))
		return err
	}
	return nil
}
