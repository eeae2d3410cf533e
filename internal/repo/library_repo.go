package repo

import (
	"context"
	"errors"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/db"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LibraryRepository handles library (tenant) records
type LibraryRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewLibraryRepository creates a new library repository
func NewLibraryRepository(database *db.DB, logger *zap.Logger) *LibraryRepository {
	return &LibraryRepository{db: database, log: logger}
}

// WithTx returns a repository bound to tx
func (r *LibraryRepository) WithTx(tx *gorm.DB) *LibraryRepository {
	return &LibraryRepository{db: &db.DB{DB: tx}, log: r.log}
}

// CreateLibrary inserts a new library
func (r *LibraryRepository) CreateLibrary(ctx context.Context, library *db.Library) error {
	if err := r.db.WithContext(ctx).Create(library).Error; err != nil {
		r.log.Error("Failed to create library", zap.String("name", library.Name), zap.Error(err))
		return err
	}
	r.log.Info("Library created", zap.String("library_id", library.ID.String()), zap.String("name", library.Name))
	return nil
}

// GetLibrary retrieves a library by ID
func (r *LibraryRepository) GetLibrary(ctx context.Context, id uuid.UUID) (*db.Library, error) {
	var library db.Library
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&library).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLibraryNotFound
		}
		r.log.Error("Failed to get library", zap.String("library_id", id.String()), zap.Error(err))
		return nil, err
	}
	return &library, nil
}
