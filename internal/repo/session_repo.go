package repo

import (
	"context"
	"errors"
	"time"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SessionRepository stores login sessions
type SessionRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(database *db.DB, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{db: database, log: logger}
}

// CreateSession stores a new session
func (r *SessionRepository) CreateSession(ctx context.Context, session *db.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		r.log.Error("Failed to create session", zap.String("user_id", session.UserID.String()), zap.Error(err))
		return err
	}
	return nil
}

// GetSession returns the session for a token hash unless it expired before now
func (r *SessionRepository) GetSession(ctx context.Context, tokenHash string, now time.Time) (*db.Session, error) {
	var session db.Session
	err := r.db.WithContext(ctx).
		Where("token_hash = ? AND expires_at > ?", tokenHash, now).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		r.log.Error("Failed to get session", zap.Error(err))
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes a session; deleting an unknown token is not an error
func (r *SessionRepository) DeleteSession(ctx context.Context, tokenHash string) error {
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Delete(&db.Session{}).Error; err != nil {
		r.log.Error("Failed to delete session", zap.Error(err))
		return err
	}
	return nil
}

// DeleteExpired purges sessions that expired before now and returns how many
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&db.Session{})
	if result.Error != nil {
		r.log.Error("Failed to purge sessions", zap.Error(result.Error))
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
