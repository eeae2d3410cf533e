package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/apperr"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/catalog"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/importer"
	"github.com/go-chi/chi/v5"
)

const (
	// multipartOverhead leaves room for boundaries and the other form fields
	multipartOverhead = 1 << 20
	maxImageBytes     = 5 << 20
)

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	page, err := s.catalog.ListBooks(r.Context(), actorFrom(r.Context()),
		r.URL.Query().Get("q"), queryInt(r, "page"), queryInt(r, "page_size"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.catalog.GetBook(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// handleSaveBook accepts the admin book form, multipart when it carries an
// image_file, urlencoded otherwise. A form with an id updates that book.
func (s *Server) handleSaveBook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.writeError(w, r, formError(err, maxImageBytes))
		return
	}

	in := catalog.BookInput{
		ID:        r.PostFormValue("id"),
		Title:     r.PostFormValue("title"),
		Author:    r.PostFormValue("author"),
		ISBN:      r.PostFormValue("isbn"),
		Stock:     r.PostFormValue("stock"),
		Available: r.PostFormValue("available"),
		ImageURL:  r.PostFormValue("image_url"),
	}

	file, _, err := r.FormFile("image_file")
	switch {
	case err == nil:
		defer file.Close()
		if in.Image, err = io.ReadAll(file); err != nil {
			s.writeError(w, r, apperr.Validation("could not read image: %v", err))
			return
		}
	case !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart):
		s.writeError(w, r, apperr.Validation("invalid image upload: %v", err))
		return
	}

	book, err := s.catalog.SaveBook(r.Context(), actorFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if strings.TrimSpace(in.ID) == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, book)
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.DeleteBook(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func formError(err error, limit int64) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.Validation("file exceeds the maximum size of %d bytes", limit)
	}
	return apperr.Validation("invalid multipart form: %v", err)
}

// handleImport parses an uploaded spreadsheet and reports valid rows and
// row errors. Nothing is written.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxImportBytes+multipartOverhead)

	var (
		fileName string
		data     []byte
	)
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		fileName = header.Filename
		// one byte past the limit is enough for the size check
		if data, err = io.ReadAll(io.LimitReader(file, s.maxImportBytes+1)); err != nil {
			s.writeError(w, r, apperr.Validation("could not read file: %v", err))
			return
		}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		s.writeError(w, r, formError(err, s.maxImportBytes))
		return
	}

	result, err := s.importer.Parse(r.Context(), fileName, data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCommitImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Books []map[string]interface{} `json:"books"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	records := make([]importer.Record, len(req.Books))
	for i, raw := range req.Books {
		records[i] = toRecord(raw)
	}

	books, err := s.catalog.CommitImport(r.Context(), actorFrom(r.Context()), records)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":       true,
		"importedCount": len(books),
		"books":         books,
	})
}

// toRecord accepts both the string cells of a spreadsheet and the typed rows
// returned by the import preview.
func toRecord(raw map[string]interface{}) importer.Record {
	rec := make(importer.Record, len(importer.ExpectedHeaders))
	for _, col := range importer.ExpectedHeaders {
		switch v := raw[col].(type) {
		case nil:
			rec[col] = ""
		case string:
			rec[col] = v
		default:
			rec[col] = fmt.Sprint(v)
		}
	}
	return rec
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := s.catalog.Dashboard(r.Context(), actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}
