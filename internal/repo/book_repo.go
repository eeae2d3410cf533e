package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/db"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BookRepository handles book catalog operations. Every read and write is
// scoped by library.
type BookRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewBookRepository creates a new book repository
func NewBookRepository(database *db.DB, logger *zap.Logger) *BookRepository {
	return &BookRepository{
		db:  database,
		log: logger,
	}
}

// WithTx returns a repository bound to tx
func (r *BookRepository) WithTx(tx *gorm.DB) *BookRepository {
	return &BookRepository{db: &db.DB{DB: tx}, log: r.log}
}

// BookStats aggregates the catalog of one library
type BookStats struct {
	Books     int64 `json:"books"`
	Stock     int64 `json:"stock"`
	Available int64 `json:"available"`
}

// ListBooks returns a page of a library's books, optionally filtered by a
// case-insensitive match on title, author or ISBN.
func (r *BookRepository) ListBooks(ctx context.Context, libraryID uuid.UUID, search string, page, pageSize int) ([]*db.Book, int64, error) {
	query := r.db.WithContext(ctx).Model(&db.Book{}).Where("library_id = ?", libraryID)

	if search = strings.TrimSpace(search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("(LOWER(title) LIKE ? OR LOWER(author) LIKE ? OR isbn LIKE ?)", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		r.log.Error("Failed to count books", zap.Error(err))
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	var books []*db.Book
	if err := query.Offset(offset).Limit(pageSize).Order("title ASC").Find(&books).Error; err != nil {
		r.log.Error("Failed to list books", zap.Error(err))
		return nil, 0, err
	}

	return books, total, nil
}

// GetBook retrieves a book by ID inside a library
func (r *BookRepository) GetBook(ctx context.Context, libraryID, id uuid.UUID) (*db.Book, error) {
	return r.getBook(r.db.WithContext(ctx), libraryID, id)
}

// LockBook loads a book and holds a row lock on it until the surrounding
// transaction ends. SQLite ignores the lock.
func (r *BookRepository) LockBook(ctx context.Context, libraryID, id uuid.UUID) (*db.Book, error) {
	return r.getBook(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}), libraryID, id)
}

func (r *BookRepository) getBook(query *gorm.DB, libraryID, id uuid.UUID) (*db.Book, error) {
	var book db.Book
	err := query.Where("id = ? AND library_id = ?", id, libraryID).First(&book).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		r.log.Error("Failed to get book", zap.String("book_id", id.String()), zap.Error(err))
		return nil, err
	}

	return &book, nil
}

// CreateBook inserts a new book
func (r *BookRepository) CreateBook(ctx context.Context, book *db.Book) error {
	if err := r.db.WithContext(ctx).Create(book).Error; err != nil {
		r.log.Error("Failed to create book", zap.String("title", book.Title), zap.Error(err))
		return err
	}

	r.log.Info("Book created", zap.String("book_id", book.ID.String()), zap.String("title", book.Title))
	return nil
}

// CreateBooks inserts books in batches. Callers wanting all-or-nothing
// semantics run it inside a transaction.
func (r *BookRepository) CreateBooks(ctx context.Context, books []*db.Book) error {
	if len(books) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(books, 100).Error; err != nil {
		r.log.Error("Failed to create books", zap.Int("count", len(books)), zap.Error(err))
		return err
	}

	r.log.Info("Books created", zap.Int("count", len(books)))
	return nil
}

// UpdateBook overwrites the editable fields of a book. The update is scoped by
// id and library; when it matches nothing ErrBookNotFound is returned.
func (r *BookRepository) UpdateBook(ctx context.Context, book *db.Book) error {
	updates := map[string]interface{}{
		"title":     book.Title,
		"author":    book.Author,
		"isbn":      book.ISBN,
		"stock":     book.Stock,
		"available": book.Available,
		"image_url": book.ImageURL,
	}

	result := r.db.WithContext(ctx).Model(&db.Book{}).
		Where("id = ? AND library_id = ?", book.ID, book.LibraryID).
		Updates(updates)
	if result.Error != nil {
		r.log.Error("Failed to update book", zap.String("book_id", book.ID.String()), zap.Error(result.Error))
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrBookNotFound
	}

	r.log.Info("Book updated", zap.String("book_id", book.ID.String()))
	return nil
}

// DeleteBook removes a book scoped by id and library
func (r *BookRepository) DeleteBook(ctx context.Context, libraryID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ? AND library_id = ?", id, libraryID).Delete(&db.Book{})
	if result.Error != nil {
		r.log.Error("Failed to delete book", zap.String("book_id", id.String()), zap.Error(result.Error))
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrBookNotFound
	}

	r.log.Info("Book deleted", zap.String("book_id", id.String()))
	return nil
}

// TakeCopy decrements the available count, failing with ErrNoCopyAvailable
// when none is left.
func (r *BookRepository) TakeCopy(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&db.Book{}).
		Where("id = ? AND available > 0", id).
		Update("available", gorm.Expr("available - 1"))
	if result.Error != nil {
		r.log.Error("Failed to take copy", zap.String("book_id", id.String()), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNoCopyAvailable
	}
	return nil
}

// ReturnCopy increments the available count without exceeding stock. It
// reports whether a row was changed; a deleted book or a full shelf is not an
// error.
func (r *BookRepository) ReturnCopy(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Model(&db.Book{}).
		Where("id = ? AND available < stock", id).
		Update("available", gorm.Expr("available + 1"))
	if result.Error != nil {
		r.log.Error("Failed to return copy", zap.String("book_id", id.String()), zap.Error(result.Error))
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// WriteOffCopy decrements stock for a copy that will not come back. The copy
// was already taken out of available when it was lent.
func (r *BookRepository) WriteOffCopy(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Model(&db.Book{}).
		Where("id = ? AND stock > available", id).
		Update("stock", gorm.Expr("stock - 1"))
	if result.Error != nil {
		r.log.Error("Failed to write off copy", zap.String("book_id", id.String()), zap.Error(result.Error))
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetStats returns catalog totals for a library
func (r *BookRepository) GetStats(ctx context.Context, libraryID uuid.UUID) (BookStats, error) {
	var stats BookStats
	err := r.db.WithContext(ctx).Model(&db.Book{}).
		Select("COUNT(*) AS books, COALESCE(SUM(stock), 0) AS stock, COALESCE(SUM(available), 0) AS available").
		Where("library_id = ?", libraryID).
		Scan(&stats).Error
	if err != nil {
		r.log.Error("Failed to compute book stats", zap.String("library_id", libraryID.String()), zap.Error(err))
		return BookStats{}, err
	}
	return stats, nil
}
