package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/db"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UserRepository handles user records
type UserRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(database *db.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: database, log: logger}
}

// WithTx returns a repository bound to tx
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: &db.DB{DB: tx}, log: r.log}
}

// CreateUser inserts a user. Emails are stored lowercased and must be unique.
func (r *UserRepository) CreateUser(ctx context.Context, user *db.User) error {
	user.Email = normalizeEmail(user.Email)

	var count int64
	if err := r.db.WithContext(ctx).Model(&db.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
		r.log.Error("Failed to check email", zap.Error(err))
		return err
	}
	if count > 0 {
		return ErrEmailTaken
	}

	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		r.log.Error("Failed to create user", zap.String("email", user.Email), zap.Error(err))
		return err
	}

	r.log.Info("User created",
		zap.String("user_id", user.ID.String()),
		zap.String("library_id", user.LibraryID.String()),
		zap.String("role", string(user.Role)),
	)
	return nil
}

// GetUser retrieves a user by ID
func (r *UserRepository) GetUser(ctx context.Context, id uuid.UUID) (*db.User, error) {
	var user db.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		r.log.Error("Failed to get user", zap.String("user_id", id.String()), zap.Error(err))
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email address
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*db.User, error) {
	var user db.User
	err := r.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		r.log.Error("Failed to get user by email", zap.Error(err))
		return nil, err
	}
	return &user, nil
}

// ListUsers returns the users of a library ordered by name
func (r *UserRepository) ListUsers(ctx context.Context, libraryID uuid.UUID) ([]*db.User, error) {
	var users []*db.User
	if err := r.db.WithContext(ctx).Where("library_id = ?", libraryID).Order("name ASC").Find(&users).Error; err != nil {
		r.log.Error("Failed to list users", zap.String("library_id", libraryID.String()), zap.Error(err))
		return nil, err
	}
	return users, nil
}

// UpdateRole changes the role of a user inside a library
func (r *UserRepository) UpdateRole(ctx context.Context, libraryID, id uuid.UUID, role db.Role) error {
	result := r.db.WithContext(ctx).Model(&db.User{}).
		Where("id = ? AND library_id = ?", id, libraryID).
		Update("role", role)
	if result.Error != nil {
		r.log.Error("Failed to update role", zap.String("user_id", id.String()), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	r.log.Info("User role updated", zap.String("user_id", id.String()), zap.String("role", string(role)))
	return nil
}

// CountUsers returns the number of users in a library
func (r *UserRepository) CountUsers(ctx context.Context, libraryID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&db.User{}).Where("library_id = ?", libraryID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
