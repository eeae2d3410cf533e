package repo

import (
	"context"
	"errors"
	"time"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/db"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LoanRepository handles loan records
type LoanRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewLoanRepository creates a new loan repository
func NewLoanRepository(database *db.DB, logger *zap.Logger) *LoanRepository {
	return &LoanRepository{db: database, log: logger}
}

// WithTx returns a repository bound to tx
func (r *LoanRepository) WithTx(tx *gorm.DB) *LoanRepository {
	return &LoanRepository{db: &db.DB{DB: tx}, log: r.log}
}

// CreateLoan inserts a loan
func (r *LoanRepository) CreateLoan(ctx context.Context, loan *db.Loan) error {
	if err := r.db.WithContext(ctx).Create(loan).Error; err != nil {
		r.log.Error("Failed to create loan", zap.String("book_id", loan.BookID.String()), zap.Error(err))
		return err
	}
	r.log.Info("Loan created",
		zap.String("loan_id", loan.ID.String()),
		zap.String("book_id", loan.BookID.String()),
		zap.String("user_id", loan.UserID.String()),
	)
	return nil
}

// GetLoan retrieves a loan by ID inside a library
func (r *LoanRepository) GetLoan(ctx context.Context, libraryID, id uuid.UUID) (*db.Loan, error) {
	var loan db.Loan
	err := r.db.WithContext(ctx).Where("id = ? AND library_id = ?", id, libraryID).First(&loan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		r.log.Error("Failed to get loan", zap.String("loan_id", id.String()), zap.Error(err))
		return nil, err
	}
	return &loan, nil
}

// ListLoans returns a library's loans, newest first, optionally filtered by status
func (r *LoanRepository) ListLoans(ctx context.Context, libraryID uuid.UUID, status db.LoanStatus) ([]*db.Loan, error) {
	query := r.db.WithContext(ctx).Where("library_id = ?", libraryID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var loans []*db.Loan
	if err := query.Order("created_at DESC").Find(&loans).Error; err != nil {
		r.log.Error("Failed to list loans", zap.String("library_id", libraryID.String()), zap.Error(err))
		return nil, err
	}
	return loans, nil
}

// ListUserLoans returns the loans of one borrower, newest first
func (r *LoanRepository) ListUserLoans(ctx context.Context, userID uuid.UUID) ([]*db.Loan, error) {
	var loans []*db.Loan
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&loans).Error; err != nil {
		r.log.Error("Failed to list user loans", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, err
	}
	return loans, nil
}

// ListOverdueCandidates returns every active, unreturned loan whose due date
// is before today. The result is not bounded.
func (r *LoanRepository) ListOverdueCandidates(ctx context.Context, today time.Time) ([]db.Loan, error) {
	var loans []db.Loan
	err := r.db.WithContext(ctx).
		Where("status = ?", db.LoanActive).
		Where("due_date < ?", today).
		Where("returned_at IS NULL").
		Order("due_date ASC").
		Find(&loans).Error
	if err != nil {
		r.log.Error("Failed to list overdue candidates", zap.Time("today", today), zap.Error(err))
		return nil, err
	}
	return loans, nil
}

// MarkOverdue flips one active loan to overdue. A loan that is no longer
// active yields ErrLoanStateChanged.
func (r *LoanRepository) MarkOverdue(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, r.db.WithContext(ctx).Where("id = ?", id), []db.LoanStatus{db.LoanActive}, db.LoanOverdue, nil)
}

// Transition moves a loan of a library from one of the given statuses to the
// target status, applying extra column updates in the same statement.
func (r *LoanRepository) Transition(ctx context.Context, libraryID, id uuid.UUID, from []db.LoanStatus, to db.LoanStatus, fields map[string]interface{}) error {
	scope := r.db.WithContext(ctx).Where("id = ? AND library_id = ?", id, libraryID)
	return r.transition(ctx, scope, from, to, fields)
}

func (r *LoanRepository) transition(ctx context.Context, scope *gorm.DB, from []db.LoanStatus, to db.LoanStatus, fields map[string]interface{}) error {
	updates := map[string]interface{}{"status": to}
	for column, value := range fields {
		updates[column] = value
	}

	result := scope.Model(&db.Loan{}).Where("status IN ?", from).Updates(updates)
	if result.Error != nil {
		r.log.Error("Failed to update loan status", zap.String("to", string(to)), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLoanStateChanged
	}
	return nil
}

// CountBookLoans counts the loans of a book in the given statuses
func (r *LoanRepository) CountBookLoans(ctx context.Context, bookID uuid.UUID, statuses ...db.LoanStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.Loan{}).
		Where("book_id = ? AND status IN ?", bookID, statuses).
		Count(&count).Error
	if err != nil {
		r.log.Error("Failed to count book loans", zap.String("book_id", bookID.String()), zap.Error(err))
		return 0, err
	}
	return count, nil
}

// HasOpenLoan reports whether a user already has a pending, active or
// overdue loan for a book.
func (r *LoanRepository) HasOpenLoan(ctx context.Context, userID, bookID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.Loan{}).
		Where("user_id = ? AND book_id = ? AND status IN ?", userID, bookID,
			[]db.LoanStatus{db.LoanPending, db.LoanActive, db.LoanOverdue}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountByStatus returns the number of loans per status in a library. Every
// known status is present in the result.
func (r *LoanRepository) CountByStatus(ctx context.Context, libraryID uuid.UUID) (map[db.LoanStatus]int64, error) {
	var rows []struct {
		Status db.LoanStatus
		Total  int64
	}
	err := r.db.WithContext(ctx).Model(&db.Loan{}).
		Select("status, COUNT(*) AS total").
		Where("library_id = ?", libraryID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		r.log.Error("Failed to count loans", zap.String("library_id", libraryID.String()), zap.Error(err))
		return nil, err
	}

	counts := make(map[db.LoanStatus]int64, len(db.LoanStatuses))
	for _, status := range db.LoanStatuses {
		counts[status] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
