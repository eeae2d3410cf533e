package repo

import (
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/apperr"
)

var (
	// ErrBookNotFound is returned when a book does not exist in the caller's library
	ErrBookNotFound = apperr.NotFoundf("book not found")

	// ErrLoanNotFound is returned when a loan does not exist in the caller's library
	ErrLoanNotFound = apperr.NotFoundf("loan not found")

	// ErrUserNotFound is returned when a user does not exist
	ErrUserNotFound = apperr.NotFoundf("user not found")

	// ErrLibraryNotFound is returned when a library does not exist
	ErrLibraryNotFound = apperr.NotFoundf("library not found")

	// ErrSessionNotFound is returned for unknown or expired session tokens
	ErrSessionNotFound = apperr.NotFoundf("session not found")

	// ErrNotificationNotFound is returned when a notification does not belong to the user
	ErrNotificationNotFound = apperr.NotFoundf("notification not found")

	// ErrEmailTaken is returned when registering an email that is already in use
	ErrEmailTaken = apperr.Conflictf("email already registered")

	// ErrLoanStateChanged is returned when a conditional status update matched no row
	ErrLoanStateChanged = apperr.Conflictf("loan status changed concurrently")

	// ErrNoCopyAvailable is returned when a book has no available copy left
	ErrNoCopyAvailable = apperr.Conflictf("no copy available")
)
