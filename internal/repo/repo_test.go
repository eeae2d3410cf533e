package repo

import (
	"context"
	"testing"
	"time"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/apperr"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/db"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *db.DB {
	database, err := db.Connect("sqlite::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.RunMigrations(database))
	return database
}

func testLogger() *zap.Logger {
	return logger.NewLogger("test", "info")
}

func seedLibrary(t *testing.T, database *db.DB, name string) *db.Library {
	library := &db.Library{Name: name}
	require.NoError(t, NewLibraryRepository(database, testLogger()).CreateLibrary(context.Background(), library))
	return library
}

func seedBook(t *testing.T, database *db.DB, libraryID uuid.UUID, title string, stock, available int) *db.Book {
	book := &db.Book{LibraryID: libraryID, Title: title, Author: "Author", Stock: stock, Available: available}
	require.NoError(t, NewBookRepository(database, testLogger()).CreateBook(context.Background(), book))
	return book
}

func seedLoan(t *testing.T, database *db.DB, book *db.Book, status db.LoanStatus, due *time.Time) *db.Loan {
	loan := &db.Loan{
		BookID:    book.ID,
		UserID:    uuid.New(),
		LibraryID: book.LibraryID,
		Status:    status,
		DueDate:   due,
	}
	require.NoError(t, NewLoanRepository(database, testLogger()).CreateLoan(context.Background(), loan))
	return loan
}

func dayPtr(t time.Time) *time.Time {
	return &t
}

func TestBookCRUD(t *testing.T) {
	database := setupTestDB(t)
	repo := NewBookRepository(database, testLogger())
	ctx := context.Background()

	library := seedLibrary(t, database, "Central")
	book := seedBook(t, database, library.ID, "Dune", 3, 2)

	retrieved, err := repo.GetBook(ctx, library.ID, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", retrieved.Title)
	assert.Equal(t, 3, retrieved.Stock)
	assert.Equal(t, 2, retrieved.Available)

	retrieved.Title = "Dune Messiah"
	retrieved.Available = 3
	require.NoError(t, repo.UpdateBook(ctx, retrieved))

	updated, err := repo.GetBook(ctx, library.ID, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", updated.Title)
	assert.Equal(t, 3, updated.Available)

	require.NoError(t, repo.DeleteBook(ctx, library.ID, book.ID))

	_, err = repo.GetBook(ctx, library.ID, book.ID)
	assert.Equal(t, ErrBookNotFound, err)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLockBook(t *testing.T) {
	database := setupTestDB(t)
	repo := NewBookRepository(database, testLogger())
	ctx := context.Background()

	home := seedLibrary(t, database, "Home")
	other := seedLibrary(t, database, "Other")
	book := seedBook(t, database, home.ID, "Emma", 1, 1)

	locked, err := repo.LockBook(ctx, home.ID, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Emma", locked.Title)

	_, err = repo.LockBook(ctx, other.ID, book.ID)
	assert.Equal(t, ErrBookNotFound, err)
}

func TestLockBookSelectsForUpdateOnPostgres(t *testing.T) {
	dry, err := gorm.Open(postgres.Open("host=localhost user=library dbname=library sslmode=disable"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	var statement string
	require.NoError(t, dry.Callback().Query().After("gorm:query").Register("test:capture", func(tx *gorm.DB) {
		statement = tx.Statement.SQL.String()
	}))

	repo := NewBookRepository(&db.DB{DB: dry}, testLogger())
	_, err = repo.LockBook(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Contains(t, statement, "FOR UPDATE")
	assert.Contains(t, statement, "library_id")

	_, err = repo.GetBook(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.NotContains(t, statement, "FOR UPDATE")
}

func TestBookMutationsAreLibraryScoped(t *testing.T) {
	database := setupTestDB(t)
	repo := NewBookRepository(database, testLogger())
	ctx := context.Background()

	home := seedLibrary(t, database, "Home")
	other := seedLibrary(t, database, "Other")
	book := seedBook(t, database, home.ID, "Emma", 1, 1)

	_, err := repo.GetBook(ctx, other.ID, book.ID)
	assert.Equal(t, ErrBookNotFound, err)

	foreign := *book
	foreign.LibraryID = other.ID
	foreign.Title = "Hijacked"
	assert.Equal(t, ErrBookNotFound, repo.UpdateBook(ctx, &foreign))
	assert.Equal(t, ErrBookNotFound, repo.DeleteBook(ctx, other.ID, book.ID))

	unchanged, err := repo.GetBook(ctx, home.ID, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Emma", unchanged.Title)
}

func TestListBooksSearchAndPaging(t *testing.T) {
	database := setupTestDB(t)
	repo := NewBookRepository(database, testLogger())
	ctx := context.Background()

	library := seedLibrary(t, database, "Central")
	other := seedLibrary(t, database, "Other")
	seedBook(t, database, library.ID, "Alpha", 1, 1)
	seedBook(t, database, library.ID, "Beta", 1, 1)
	seedBook(t, database, library.ID, "Gamma", 1, 1)
	seedBook(t, database, other.ID, "Alphabet", 1, 1)

	books, total, err := repo.ListBooks(ctx, library.ID, "", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, books, 2)
	assert.Equal(t, "Alpha", books[0].Title)
	assert.Equal(t, "Beta", books[1].Title)

	books, total, err = repo.ListBooks(ctx, library.ID, "", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, books, 1)
	assert.Equal(t, "Gamma", books[0].Title)

	books, total, err = repo.ListBooks(ctx, library.ID, "ALPH", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, books, 1)
	assert.Equal(t, "Alpha", books[0].Title)
}

func TestCopyCounters(t *testing.T) {
	database := setupTestDB(t)
	repo := NewBookRepository(database, testLogger())
	ctx := context.Background()

	library := seedLibrary(t, database, "Central")
	book := seedBook(t, database, library.ID, "Ulysses", 2, 1)

	require.NoError(t, repo.TakeCopy(ctx, book.ID))
	assert.Equal(t, ErrNoCopyAvailable, repo.TakeCopy(ctx, book.ID))

	changed, err := repo.WriteOffCopy(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.ReturnCopy(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	// stock 1, available 1: the shelf is full
	changed, err = repo.ReturnCopy(ctx, book.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	current, err := repo.GetBook(ctx, library.ID, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current.Stock)
	assert.Equal(t, 1, current.Available)
}

func TestBookStats(t *testing.T) {
	database := setupTestDB(t)
	repo := NewBookRepository(database, testLogger())
	ctx := context.Background()

	library := seedLibrary(t, database, "Central")
	empty, err := repo.GetStats(ctx, library.ID)
	require.NoError(t, err)
	assert.Equal(t, BookStats{}, empty)

	seedBook(t, database, library.ID, "A", 4, 1)
	seedBook(t, database, library.ID, "B", 2, 2)

	stats, err := repo.GetStats(ctx, library.ID)
	require.NoError(t, err)
	assert.Equal(t, BookStats{Books: 2, Stock: 6, Available: 3}, stats)
}

func TestListOverdueCandidates(t *testing.T) {
	database := setupTestDB(t)
	repo := NewLoanRepository(database, testLogger())
	ctx := context.Background()

	today := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	library := seedLibrary(t, database, "Central")
	book := seedBook(t, database, library.ID, "Dune", 5, 5)

	late := seedLoan(t, database, book, db.LoanActive, dayPtr(today.AddDate(0, 0, -3)))
	yesterday := seedLoan(t, database, book, db.LoanActive, dayPtr(today.AddDate(0, 0, -1)))
	seedLoan(t, database, book, db.LoanActive, dayPtr(today))
	seedLoan(t, database, book, db.LoanActive, dayPtr(today.AddDate(0, 0, 5)))
	seedLoan(t, database, book, db.LoanOverdue, dayPtr(today.AddDate(0, 0, -9)))
	seedLoan(t, database, book, db.LoanPending, nil)

	returned := seedLoan(t, database, book, db.LoanActive, dayPtr(today.AddDate(0, 0, -2)))
	require.NoError(t, database.Model(returned).Update("returned_at", today.AddDate(0, 0, -1)).Error)

	candidates, err := repo.ListOverdueCandidates(ctx, today)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, late.ID, candidates[0].ID)
	assert.Equal(t, yesterday.ID, candidates[1].ID)
}

func TestMarkOverdueOnlyFromActive(t *testing.T) {
	database := setupTestDB(t)
	repo := NewLoanRepository(database, testLogger())
	ctx := context.Background()

	library := seedLibrary(t, database, "Central")
	book := seedBook(t, database, library.ID, "Dune", 1, 0)
	loan := seedLoan(t, database, book, db.LoanActive, dayPtr(time.Now().UTC().AddDate(0, 0, -1)))

	require.NoError(t, repo.MarkOverdue(ctx, loan.ID))

	stored, err := repo.GetLoan(ctx, library.ID, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, db.LoanOverdue, stored.Status)

	err = repo.MarkOverdue(ctx, loan.ID)
	assert.Equal(t, ErrLoanStateChanged, err)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	assert.Equal(t, ErrLoanStateChanged, repo.MarkOverdue(ctx, uuid.New()))
}

func TestTransitionAppliesFields(t *testing.T) {
	database := setupTestDB(t)
	repo := NewLoanRepository(database, testLogger())
	ctx := context.Background()

	library := seedLibrary(t, database, "Central")
	book := seedBook(t, database, library.ID, "Dune", 1, 1)
	loan := seedLoan(t, database, book, db.LoanPending, nil)

	due := time.Date(2030, 1, 15, 0, 0, 0, 0, time.UTC)
	err := repo.Transition(ctx, library.ID, loan.ID,
		[]db.LoanStatus{db.LoanPending}, db.LoanActive,
		map[string]interface{}{"due_date": due})
	require.NoError(t, err)

	stored, err := repo.GetLoan(ctx, library.ID, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, db.LoanActive, stored.Status)
	require.NotNil(t, stored.DueDate)
	assert.True(t, due.Equal(*stored.DueDate))

	err = repo.Transition(ctx, uuid.New(), loan.ID, []db.LoanStatus{db.LoanActive}, db.LoanReturned, nil)
	assert.Equal(t, ErrLoanStateChanged, err)
}

func TestCountBookLoansAndOpenLoans(t *testing.T) {
	database := setupTestDB(t)
	repo := NewLoanRepository(database, testLogger())
	ctx := context.Background()

	library := seedLibrary(t, database, "Central")
	book := seedBook(t, database, library.ID, "Dune", 3, 3)
	active := seedLoan(t, database, book, db.LoanActive, nil)
	seedLoan(t, database, book, db.LoanReturned, nil)

	count, err := repo.CountBookLoans(ctx, book.ID, db.LoanActive)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	open, err := repo.HasOpenLoan(ctx, active.UserID, book.ID)
	require.NoError(t, err)
	assert.True(t, open)

	open, err = repo.HasOpenLoan(ctx, uuid.New(), book.ID)
	require.NoError(t, err)
	assert.False(t, open)

	counts, err := repo.CountByStatus(ctx, library.ID)
	require.NoError(t, err)
	assert.Len(t, counts, len(db.LoanStatuses))
	assert.Equal(t, int64(1), counts[db.LoanActive])
	assert.Equal(t, int64(1), counts[db.LoanReturned])
	assert.Equal(t, int64(0), counts[db.LoanLost])
}

func TestUserEmailIsUniqueAndNormalized(t *testing.T) {
	database := setupTestDB(t)
	repo := NewUserRepository(database, testLogger())
	ctx := context.Background()

	library := seedLibrary(t, database, "Central")
	user := &db.User{LibraryID: library.ID, Email: "  Ada@Example.org ", Name: "Ada", PasswordHash: "h", PasswordSalt: "s"}
	require.NoError(t, repo.CreateUser(ctx, user))
	assert.Equal(t, "ada@example.org", user.Email)
	assert.Equal(t, db.RoleMember, user.Role)

	dup := &db.User{LibraryID: library.ID, Email: "ADA@example.org", Name: "Other", PasswordHash: "h", PasswordSalt: "s"}
	err := repo.CreateUser(ctx, dup)
	assert.Equal(t, ErrEmailTaken, err)

	found, err := repo.GetUserByEmail(ctx, "ada@EXAMPLE.org")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	require.NoError(t, repo.UpdateRole(ctx, library.ID, user.ID, db.RoleAdmin))
	assert.Equal(t, ErrUserNotFound, repo.UpdateRole(ctx, uuid.New(), user.ID, db.RoleMember))

	promoted, err := repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, promoted.IsAdmin())
}

func TestSessionLifecycle(t *testing.T) {
	database := setupTestDB(t)
	repo := NewSessionRepository(database, testLogger())
	ctx := context.Background()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()
	require.NoError(t, repo.CreateSession(ctx, &db.Session{TokenHash: "live", UserID: userID, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, repo.CreateSession(ctx, &db.Session{TokenHash: "stale", UserID: userID, ExpiresAt: now.Add(-time.Hour)}))

	session, err := repo.GetSession(ctx, "live", now)
	require.NoError(t, err)
	assert.Equal(t, userID, session.UserID)

	_, err = repo.GetSession(ctx, "stale", now)
	assert.Equal(t, ErrSessionNotFound, err)

	purged, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	require.NoError(t, repo.DeleteSession(ctx, "live"))
	require.NoError(t, repo.DeleteSession(ctx, "live"))
	_, err = repo.GetSession(ctx, "live", now)
	assert.Equal(t, ErrSessionNotFound, err)
}

func TestNotificationCreateOnce(t *testing.T) {
	database := setupTestDB(t)
	repo := NewNotificationRepository(database, testLogger())
	ctx := context.Background()

	userID := uuid.New()
	loanID := uuid.New()

	inserted, err := repo.CreateOnce(ctx, &db.Notification{UserID: userID, LoanID: &loanID, Kind: db.NotificationLoanOverdue, Message: "late"})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.CreateOnce(ctx, &db.Notification{UserID: userID, LoanID: &loanID, Kind: db.NotificationLoanOverdue, Message: "late again"})
	require.NoError(t, err)
	assert.False(t, inserted)

	list, err := repo.ListNotifications(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "late", list[0].Message)
	assert.Nil(t, list[0].ReadAt)

	readAt := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkRead(ctx, userID, []uuid.UUID{list[0].ID}, readAt))
	require.NoError(t, repo.MarkRead(ctx, uuid.New(), []uuid.UUID{list[0].ID}, readAt.Add(time.Hour)))

	list, err = repo.ListNotifications(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, list[0].ReadAt)
	assert.True(t, readAt.Equal(*list[0].ReadAt))
}
