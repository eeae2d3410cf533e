// Package circulation implements the loan lifecycle: request, approval,
// rejection, return and loss.
package circulation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/apperr"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/db"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/overdue"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/repo"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Action is an admin decision on a loan
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionReturn  Action = "return"
	ActionLost    Action = "lost"
)

type transition struct {
	from []db.LoanStatus
	to   db.LoanStatus
}

var transitions = map[Action]transition{
	ActionApprove: {from: []db.LoanStatus{db.LoanPending}, to: db.LoanActive},
	ActionReject:  {from: []db.LoanStatus{db.LoanPending}, to: db.LoanRejected},
	ActionReturn:  {from: []db.LoanStatus{db.LoanActive, db.LoanOverdue}, to: db.LoanReturned},
	ActionLost:    {from: []db.LoanStatus{db.LoanActive, db.LoanOverdue}, to: db.LoanLost},
}

func (t transition) allows(status db.LoanStatus) bool {
	for _, s := range t.from {
		if s == status {
			return true
		}
	}
	return false
}

// Service implements loan operations
type Service struct {
	db         *db.DB
	books      *repo.BookRepository
	loans      *repo.LoanRepository
	periodDays int
	now        func() time.Time
	log        *zap.Logger
}

// NewService creates a circulation service lending books for periodDays
func NewService(database *db.DB, periodDays int, log *zap.Logger) *Service {
	return &Service{
		db:         database,
		books:      repo.NewBookRepository(database, log),
		loans:      repo.NewLoanRepository(database, log),
		periodDays: periodDays,
		now:        time.Now,
		log:        log,
	}
}

func parseUUID(raw string, notFound error) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, notFound
	}
	return id, nil
}

// RequestLoan creates a pending loan for the actor. A user may hold one open
// loan per book.
func (s *Service) RequestLoan(ctx context.Context, actor *db.User, rawBookID string) (*db.Loan, error) {
	bookID, err := parseUUID(rawBookID, repo.ErrBookNotFound)
	if err != nil {
		return nil, err
	}

	book, err := s.books.GetBook(ctx, actor.LibraryID, bookID)
	if err != nil {
		return nil, apperr.Upstream("load book", err)
	}
	if book.Available == 0 {
		return nil, repo.ErrNoCopyAvailable
	}

	open, err := s.loans.HasOpenLoan(ctx, actor.ID, book.ID)
	if err != nil {
		return nil, apperr.Upstream("check open loans", err)
	}
	if open {
		return nil, apperr.Conflictf("you already have an open loan for %q", book.Title)
	}

	loan := &db.Loan{
		BookID:    book.ID,
		UserID:    actor.ID,
		LibraryID: book.LibraryID,
		Status:    db.LoanPending,
	}
	if err := s.loans.CreateLoan(ctx, loan); err != nil {
		return nil, apperr.Upstream("create loan", err)
	}
	return loan, nil
}

// MyLoans lists the actor's own loans
func (s *Service) MyLoans(ctx context.Context, actor *db.User) ([]*db.Loan, error) {
	loans, err := s.loans.ListUserLoans(ctx, actor.ID)
	return loans, apperr.Upstream("list loans", err)
}

// ListLoans lists the loans of the actor's library, optionally by status
func (s *Service) ListLoans(ctx context.Context, actor *db.User, status string) ([]*db.Loan, error) {
	st := db.LoanStatus(strings.ToLower(strings.TrimSpace(status)))
	if st != "" && !st.Valid() {
		return nil, apperr.Validation("unknown loan status %q", status)
	}

	loans, err := s.loans.ListLoans(ctx, actor.LibraryID, st)
	return loans, apperr.Upstream("list loans", err)
}

// Apply performs an admin action on a loan of the actor's library. Copy
// counts move in the same transaction as the status change.
func (s *Service) Apply(ctx context.Context, actor *db.User, action Action, rawLoanID string) (*db.Loan, error) {
	t, ok := transitions[action]
	if !ok {
		return nil, apperr.Validation("unknown action %q", action)
	}

	loanID, err := parseUUID(rawLoanID, repo.ErrLoanNotFound)
	if err != nil {
		return nil, err
	}

	var updated *db.Loan
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loans := s.loans.WithTx(tx)
		books := s.books.WithTx(tx)

		loan, err := loans.GetLoan(ctx, actor.LibraryID, loanID)
		if err != nil {
			return err
		}
		if !t.allows(loan.Status) {
			return apperr.Conflictf("cannot %s a %s loan", action, loan.Status)
		}

		fields, err := s.sideEffects(ctx, books, action, loan)
		if err != nil {
			return err
		}

		if err := loans.Transition(ctx, actor.LibraryID, loan.ID, t.from, t.to, fields); err != nil {
			return err
		}

		updated, err = loans.GetLoan(ctx, actor.LibraryID, loan.ID)
		return err
	})
	if err != nil {
		return nil, apperr.Upstream(fmt.Sprintf("%s loan", action), err)
	}

	s.log.Info("Loan updated",
		zap.String("loan_id", updated.ID.String()),
		zap.String("action", string(action)),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

// sideEffects moves copy counters for an action and returns the extra loan
// columns to set
func (s *Service) sideEffects(ctx context.Context, books *repo.BookRepository, action Action, loan *db.Loan) (map[string]interface{}, error) {
	now := s.now().UTC()

	switch action {
	case ActionApprove:
		if err := books.TakeCopy(ctx, loan.BookID); err != nil {
			return nil, err
		}
		due := overdue.Today(now).AddDate(0, 0, s.periodDays)
		return map[string]interface{}{"borrowed_at": now, "due_date": due}, nil

	case ActionReturn:
		if _, err := books.ReturnCopy(ctx, loan.BookID); err != nil {
			return nil, err
		}
		return map[string]interface{}{"returned_at": now}, nil

	case ActionLost:
		if _, err := books.WriteOffCopy(ctx, loan.BookID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return nil, nil
}
