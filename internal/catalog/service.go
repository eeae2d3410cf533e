// Package catalog implements the admin book actions and catalog reads. Every
// operation is scoped to the acting user's library.
package catalog

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/apperr"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/db"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/events"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/importer"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/repo"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ImageStore persists an uploaded cover image and returns its public URL
type ImageStore interface {
	SaveImage(ctx context.Context, libraryID uuid.UUID, data []byte) (string, error)
}

// ChangePublisher announces catalog changes for cache invalidation
type ChangePublisher interface {
	PublishCatalogChanged(ctx context.Context, change events.CatalogChange) error
}

// BookInput is the admin book form. Counts arrive as raw form values.
type BookInput struct {
	ID        string
	Title     string
	Author    string
	ISBN      string
	Stock     string
	Available string
	ImageURL  string
	Image     []byte
}

// Page is one page of books
type Page struct {
	Items    []*db.Book `json:"items"`
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}

// Service implements catalog operations
type Service struct {
	db        *db.DB
	books     *repo.BookRepository
	loans     *repo.LoanRepository
	users     *repo.UserRepository
	images    ImageStore
	publisher ChangePublisher
	log       *zap.Logger
}

// NewService creates a catalog service. publisher may be nil, in which case
// no invalidation events are sent.
func NewService(database *db.DB, images ImageStore, publisher ChangePublisher, log *zap.Logger) *Service {
	return &Service{
		db:        database,
		books:     repo.NewBookRepository(database, log),
		loans:     repo.NewLoanRepository(database, log),
		users:     repo.NewUserRepository(database, log),
		images:    images,
		publisher: publisher,
		log:       log,
	}
}

func libraryOf(actor *db.User) (uuid.UUID, error) {
	if actor == nil {
		return uuid.Nil, apperr.ErrUnauthorized
	}
	if actor.LibraryID == uuid.Nil {
		return uuid.Nil, apperr.Forbiddenf("user is not attached to a library")
	}
	return actor.LibraryID, nil
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, repo.ErrBookNotFound
	}
	return id, nil
}

// validateInput checks the form and returns the typed counts
func validateInput(in *BookInput) (int, int, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.ISBN = strings.TrimSpace(in.ISBN)

	if in.Title == "" {
		return 0, 0, apperr.Validation("title is required")
	}
	if in.Author == "" {
		return 0, 0, apperr.Validation("author is required")
	}
	if utf8.RuneCountInString(in.ISBN) > importer.MaxISBNLength {
		return 0, 0, apperr.Validation("isbn must be at most %d characters", importer.MaxISBNLength)
	}

	stock, err := importer.ParseCount("stock", in.Stock)
	if err != nil {
		return 0, 0, apperr.Validation("%s", err.Error())
	}
	available, err := importer.ParseCount("available", in.Available)
	if err != nil {
		return 0, 0, apperr.Validation("%s", err.Error())
	}
	if err := importer.CheckCounts(stock, available); err != nil {
		return 0, 0, apperr.Validation("%s", err.Error())
	}
	return stock, available, nil
}

// SaveBook creates a book, or updates it when in.ID is set. An uploaded
// image replaces the image URL; it is not removed if the write fails.
func (s *Service) SaveBook(ctx context.Context, actor *db.User, in BookInput) (*db.Book, error) {
	libraryID, err := libraryOf(actor)
	if err != nil {
		return nil, err
	}

	stock, available, err := validateInput(&in)
	if err != nil {
		return nil, err
	}

	var existing *db.Book
	if strings.TrimSpace(in.ID) != "" {
		id, err := parseID(in.ID)
		if err != nil {
			return nil, err
		}
		existing, err = s.books.GetBook(ctx, libraryID, id)
		if err != nil {
			return nil, apperr.Upstream("load book", err)
		}
	}

	imageURL := strings.TrimSpace(in.ImageURL)
	if len(in.Image) > 0 {
		imageURL, err = s.images.SaveImage(ctx, libraryID, in.Image)
		if err != nil {
			return nil, apperr.Upstream("store image", err)
		}
	} else if imageURL == "" && existing != nil {
		imageURL = existing.ImageURL
	}

	book := &db.Book{
		LibraryID: libraryID,
		Title:     in.Title,
		Author:    in.Author,
		ISBN:      in.ISBN,
		Stock:     stock,
		Available: available,
		ImageURL:  imageURL,
	}

	if existing == nil {
		if err := s.books.CreateBook(ctx, book); err != nil {
			return nil, apperr.Upstream("create book", err)
		}
		s.publishAsync(events.EventTypeCatalogCreated, libraryID, book.ID)
		return book, nil
	}

	book.ID = existing.ID
	book.CreatedAt = existing.CreatedAt
	if err := s.books.UpdateBook(ctx, book); err != nil {
		return nil, apperr.Upstream("update book", err)
	}
	s.publishAsync(events.EventTypeCatalogUpdated, libraryID, book.ID)
	return book, nil
}

// DeleteBook removes a book unless an active loan still references it
func (s *Service) DeleteBook(ctx context.Context, actor *db.User, rawID string) error {
	libraryID, err := libraryOf(actor)
	if err != nil {
		return err
	}
	id, err := parseID(rawID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		books := s.books.WithTx(tx)

		book, err := books.LockBook(ctx, libraryID, id)
		if err != nil {
			return err
		}

		active, err := s.loans.WithTx(tx).CountBookLoans(ctx, id, db.LoanActive)
		if err != nil {
			return err
		}
		if active > 0 {
			return apperr.Conflictf("book %q has %d active loan(s) and cannot be deleted", book.Title, active)
		}

		return books.DeleteBook(ctx, libraryID, id)
	})
	if err != nil {
		return apperr.Upstream("delete book", err)
	}

	s.publishAsync(events.EventTypeCatalogDeleted, libraryID, id)
	return nil
}

// ListBooks returns a page of the actor's catalog
func (s *Service) ListBooks(ctx context.Context, actor *db.User, search string, page, pageSize int) (*Page, error) {
	libraryID, err := libraryOf(actor)
	if err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	books, total, err := s.books.ListBooks(ctx, libraryID, search, page, pageSize)
	if err != nil {
		return nil, apperr.Upstream("list books", err)
	}
	return &Page{Items: books, Total: total, Page: page, PageSize: pageSize}, nil
}

// GetBook returns one book of the actor's catalog
func (s *Service) GetBook(ctx context.Context, actor *db.User, rawID string) (*db.Book, error) {
	libraryID, err := libraryOf(actor)
	if err != nil {
		return nil, err
	}
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}

	book, err := s.books.GetBook(ctx, libraryID, id)
	return book, apperr.Upstream("load book", err)
}

// CommitImport re-validates rows previously returned by the import parser
// and inserts all of them in one transaction. Any invalid row aborts the
// whole commit.
func (s *Service) CommitImport(ctx context.Context, actor *db.User, records []importer.Record) ([]*db.Book, error) {
	libraryID, err := libraryOf(actor)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperr.Validation("no books to import")
	}

	rows, rowErrors := importer.ValidateAll(records, 1)
	if len(rowErrors) > 0 {
		return nil, apperr.ValidationWithDetails("some rows are invalid", rowErrors)
	}

	books := make([]*db.Book, len(rows))
	for i, row := range rows {
		books[i] = &db.Book{
			LibraryID: libraryID,
			Title:     row.Title,
			Author:    row.Author,
			ISBN:      row.ISBN,
			Stock:     row.Stock,
			Available: row.Available,
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.books.WithTx(tx).CreateBooks(ctx, books)
	})
	if err != nil {
		return nil, apperr.Upstream("import books", err)
	}

	ids := make([]uuid.UUID, len(books))
	for i, book := range books {
		ids[i] = book.ID
	}
	s.publishAsync(events.EventTypeCatalogCreated, libraryID, ids...)

	s.log.Info("Books imported", zap.String("library_id", libraryID.String()), zap.Int("count", len(books)))
	return books, nil
}

// publishAsync sends a cache invalidation event without blocking the caller.
// Failures are only logged.
func (s *Service) publishAsync(eventType string, libraryID uuid.UUID, bookIDs ...uuid.UUID) {
	if s.publisher == nil {
		return
	}

	change := events.CatalogChange{EventType: eventType, LibraryID: libraryID, BookIDs: bookIDs}
	go func() {
		eventCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.publisher.PublishCatalogChanged(eventCtx, change); err != nil {
			s.log.Error("Failed to publish catalog change",
				zap.String("event_type", eventType),
				zap.String("library_id", libraryID.String()),
				zap.Error(err),
			)
		}
	}()
}
