package circulation

import (
	"context"
	"testing"
	"time"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/apperr"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/db"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/repo"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 3, 10, 30, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	database *db.DB
	admin    *db.User
	member   *db.User
	book     *db.Book
}

func setup(t *testing.T, stock, available int) *fixture {
	database, err := db.Connect("sqlite::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.RunMigrations(database))

	library := &db.Library{Name: "Central"}
	require.NoError(t, database.Create(library).Error)
	admin := &db.User{LibraryID: library.ID, Email: "admin@example.org", Name: "Admin", Role: db.RoleAdmin, PasswordHash: "x", PasswordSalt: "y"}
	member := &db.User{LibraryID: library.ID, Email: "reader@example.org", Name: "Reader", PasswordHash: "x", PasswordSalt: "y"}
	require.NoError(t, database.Create(admin).Error)
	require.NoError(t, database.Create(member).Error)

	book := &db.Book{LibraryID: library.ID, Title: "Dune", Author: "Frank Herbert", Stock: stock, Available: available}
	require.NoError(t, database.Create(book).Error)

	svc := NewService(database, 14, logger.NewLogger("test", "info"))
	svc.now = func() time.Time { return now }
	return &fixture{svc: svc, database: database, admin: admin, member: member, book: book}
}

func (f *fixture) reloadBook(t *testing.T) *db.Book {
	var book db.Book
	require.NoError(t, f.database.First(&book, "id = ?", f.book.ID).Error)
	return &book
}

func TestLoanLifecycle(t *testing.T) {
	f := setup(t, 2, 2)
	ctx := context.Background()

	loan, err := f.svc.RequestLoan(ctx, f.member, f.book.ID.String())
	require.NoError(t, err)
	assert.Equal(t, db.LoanPending, loan.Status)

	approved, err := f.svc.Apply(ctx, f.admin, ActionApprove, loan.ID.String())
	require.NoError(t, err)
	assert.Equal(t, db.LoanActive, approved.Status)
	require.NotNil(t, approved.BorrowedAt)
	require.NotNil(t, approved.DueDate)
	assert.True(t, time.Date(2024, 6, 17, 0, 0, 0, 0, time.UTC).Equal(*approved.DueDate))
	assert.Equal(t, 1, f.reloadBook(t).Available)

	returned, err := f.svc.Apply(ctx, f.admin, ActionReturn, loan.ID.String())
	require.NoError(t, err)
	assert.Equal(t, db.LoanReturned, returned.Status)
	require.NotNil(t, returned.ReturnedAt)
	assert.Equal(t, 2, f.reloadBook(t).Available)

	_, err = f.svc.Apply(ctx, f.admin, ActionReturn, loan.ID.String())
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRequestLoanRejectsDuplicatesAndEmptyShelves(t *testing.T) {
	f := setup(t, 1, 1)
	ctx := context.Background()

	_, err := f.svc.RequestLoan(ctx, f.member, f.book.ID.String())
	require.NoError(t, err)

	_, err = f.svc.RequestLoan(ctx, f.member, f.book.ID.String())
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.svc.RequestLoan(ctx, f.member, uuid.NewString())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, f.database.Model(f.book).Update("available", 0).Error)
	_, err = f.svc.RequestLoan(ctx, f.admin, f.book.ID.String())
	assert.Equal(t, repo.ErrNoCopyAvailable, err)
}

func TestApproveWithoutCopyRollsBack(t *testing.T) {
	f := setup(t, 1, 1)
	ctx := context.Background()

	first, err := f.svc.RequestLoan(ctx, f.member, f.book.ID.String())
	require.NoError(t, err)
	second, err := f.svc.RequestLoan(ctx, f.admin, f.book.ID.String())
	require.NoError(t, err)

	_, err = f.svc.Apply(ctx, f.admin, ActionApprove, first.ID.String())
	require.NoError(t, err)

	_, err = f.svc.Apply(ctx, f.admin, ActionApprove, second.ID.String())
	assert.Equal(t, repo.ErrNoCopyAvailable, err)

	loans, err := f.svc.ListLoans(ctx, f.admin, "pending")
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, second.ID, loans[0].ID)
	assert.Equal(t, 0, f.reloadBook(t).Available)
}

func TestRejectAndLost(t *testing.T) {
	f := setup(t, 3, 3)
	ctx := context.Background()

	rejected, err := f.svc.RequestLoan(ctx, f.member, f.book.ID.String())
	require.NoError(t, err)
	out, err := f.svc.Apply(ctx, f.admin, ActionReject, rejected.ID.String())
	require.NoError(t, err)
	assert.Equal(t, db.LoanRejected, out.Status)
	assert.Equal(t, 3, f.reloadBook(t).Available)

	lost, err := f.svc.RequestLoan(ctx, f.member, f.book.ID.String())
	require.NoError(t, err)
	_, err = f.svc.Apply(ctx, f.admin, ActionApprove, lost.ID.String())
	require.NoError(t, err)

	// overdue loans can still be reported lost
	require.NoError(t, f.database.Model(&db.Loan{}).Where("id = ?", lost.ID).Update("status", db.LoanOverdue).Error)

	out, err = f.svc.Apply(ctx, f.admin, ActionLost, lost.ID.String())
	require.NoError(t, err)
	assert.Equal(t, db.LoanLost, out.Status)

	book := f.reloadBook(t)
	assert.Equal(t, 2, book.Stock)
	assert.Equal(t, 2, book.Available)
}

func TestApplyIsLibraryScoped(t *testing.T) {
	f := setup(t, 1, 1)
	ctx := context.Background()

	loan, err := f.svc.RequestLoan(ctx, f.member, f.book.ID.String())
	require.NoError(t, err)

	outsider := &db.User{ID: uuid.New(), LibraryID: uuid.New(), Role: db.RoleAdmin}
	_, err = f.svc.Apply(ctx, outsider, ActionApprove, loan.ID.String())
	assert.Equal(t, repo.ErrLoanNotFound, err)

	_, err = f.svc.Apply(ctx, f.admin, Action("renew"), loan.ID.String())
	var ve *apperr.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = f.svc.ListLoans(ctx, f.admin, "archived")
	assert.ErrorAs(t, err, &ve)
}

func TestMyLoans(t *testing.T) {
	f := setup(t, 2, 2)
	ctx := context.Background()

	_, err := f.svc.RequestLoan(ctx, f.member, f.book.ID.String())
	require.NoError(t, err)

	mine, err := f.svc.MyLoans(ctx, f.member)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := f.svc.MyLoans(ctx, f.admin)
	require.NoError(t, err)
	assert.Empty(t, theirs)
}
