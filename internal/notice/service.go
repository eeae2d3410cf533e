package notice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/apperr"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/db"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/repo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service writes and reads notifications
type Service struct {
	notifications *repo.NotificationRepository
	books         *repo.BookRepository
	now           func() time.Time
	log           *zap.Logger
}

// NewService creates a notification service
func NewService(notifications *repo.NotificationRepository, books *repo.BookRepository, log *zap.Logger) *Service {
	return &Service{
		notifications: notifications,
		books:         books,
		now:           time.Now,
		log:           log,
	}
}

// OverdueMessage is the text shown to a borrower whose loan went overdue
func OverdueMessage(title string, due *time.Time) string {
	if due == nil {
		return fmt.Sprintf("Your loan of %q is overdue. Please return it.", title)
	}
	return fmt.Sprintf("Your loan of %q was due on %s and is now overdue. Please return it.", title, due.UTC().Format(time.DateOnly))
}

// NotifyOverdue records an overdue notification for the loan's borrower.
// Delivering the same loan twice leaves a single notification.
func (s *Service) NotifyOverdue(ctx context.Context, loan db.Loan) error {
	title := "a book"
	book, err := s.books.GetBook(ctx, loan.LibraryID, loan.BookID)
	switch {
	case err == nil:
		title = book.Title
	case !errors.Is(err, repo.ErrBookNotFound):
		return apperr.Upstream("load book", err)
	}

	loanID := loan.ID
	n := &db.Notification{
		UserID:  loan.UserID,
		LoanID:  &loanID,
		Kind:    db.NotificationLoanOverdue,
		Message: OverdueMessage(title, loan.DueDate),
	}

	inserted, err := s.notifications.CreateOnce(ctx, n)
	if err != nil {
		return apperr.Upstream("create notification", err)
	}
	if !inserted {
		s.log.Debug("Overdue notification already recorded", zap.String("loan_id", loan.ID.String()))
	}
	return nil
}

// Inbox loads a user's notifications
func (s *Service) Inbox(ctx context.Context, userID uuid.UUID) (Inbox, error) {
	items, err := s.notifications.ListNotifications(ctx, userID)
	if err != nil {
		return Inbox{}, apperr.Upstream("list notifications", err)
	}
	return NewInbox(items), nil
}

// MarkRead marks one of the user's notifications read
func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) (Inbox, error) {
	return s.apply(ctx, userID, MarkRead{ID: id, At: s.now().UTC()})
}

// MarkAllRead marks all of the user's notifications read
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (Inbox, error) {
	return s.apply(ctx, userID, MarkAllRead{At: s.now().UTC()})
}

func (s *Service) apply(ctx context.Context, userID uuid.UUID, action Action) (Inbox, error) {
	before, err := s.Inbox(ctx, userID)
	if err != nil {
		return Inbox{}, err
	}

	after, err := Reduce(before, action)
	if err != nil {
		return Inbox{}, err
	}

	ids := NewlyRead(before, after)
	if len(ids) == 0 {
		return after, nil
	}

	at := s.now().UTC()
	if readAt := after.readAt(ids[0]); readAt != nil {
		at = *readAt
	}
	if err := s.notifications.MarkRead(ctx, userID, ids, at); err != nil {
		return Inbox{}, apperr.Upstream("mark notifications read", err)
	}
	return after, nil
}

func (in Inbox) readAt(id uuid.UUID) *time.Time {
	for _, n := range in.Items {
		if n.ID == id {
			return n.ReadAt
		}
	}
	return nil
}
