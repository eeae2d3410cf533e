package db

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectSQLiteAndMigrate(t *testing.T) {
	database, err := Connect("sqlite::memory:")
	require.NoError(t, err)
	defer database.Close()

	assert.False(t, database.IsPostgres())
	require.NoError(t, database.Ping())
	require.NoError(t, RunMigrations(database))

	// migrations are repeatable
	require.NoError(t, RunMigrations(database))

	for _, table := range []string{"libraries", "users", "books", "loans", "sessions", "notifications"} {
		assert.True(t, database.Migrator().HasTable(table), table)
	}
}

func TestBeforeCreateAssignsIdentifiers(t *testing.T) {
	database, err := Connect("sqlite::memory:")
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, RunMigrations(database))

	library := &Library{Name: "Central"}
	require.NoError(t, database.Create(library).Error)
	assert.NotEqual(t, uuid.Nil, library.ID)
	assert.False(t, library.CreatedAt.IsZero())

	loan := &Loan{BookID: uuid.New(), UserID: uuid.New(), LibraryID: library.ID}
	require.NoError(t, database.Create(loan).Error)
	assert.Equal(t, LoanPending, loan.Status)

	var stored Loan
	require.NoError(t, database.First(&stored, "id = ?", loan.ID).Error)
	assert.Equal(t, loan.BookID, stored.BookID)
	assert.Nil(t, stored.ReturnedAt)
}

func TestNotificationLoanKindIsUnique(t *testing.T) {
	database, err := Connect("sqlite::memory:")
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, RunMigrations(database))

	loanID := uuid.New()
	first := &Notification{UserID: uuid.New(), LoanID: &loanID, Kind: NotificationLoanOverdue, Message: "late", CreatedAt: time.Now()}
	require.NoError(t, database.Create(first).Error)

	second := &Notification{UserID: first.UserID, LoanID: &loanID, Kind: NotificationLoanOverdue, Message: "late again"}
	assert.Error(t, database.Create(second).Error)
}

func TestRoleAndStatusValid(t *testing.T) {
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("owner").Valid())
	assert.True(t, LoanOverdue.Valid())
	assert.False(t, LoanStatus("late").Valid())
}
