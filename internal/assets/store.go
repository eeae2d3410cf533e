// Package assets stores uploaded book cover images on local disk and hands
// out the public URL they are served from.
package assets

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/apperr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var allowedTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Store writes images below dir and serves them under baseURL
type Store struct {
	dir     string
	baseURL string
	log     *zap.Logger
}

// NewStore creates the directory if needed
func NewStore(dir, baseURL string, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create assets dir: %w", err)
	}
	return &Store{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}, nil
}

// SaveImage stores an image under a fresh name inside the library's folder
// and returns its public URL. The content type is sniffed from the bytes.
func (s *Store) SaveImage(ctx context.Context, libraryID uuid.UUID, data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperr.Validation("image file is empty")
	}

	contentType := http.DetectContentType(data)
	ext, ok := allowedTypes[contentType]
	if !ok {
		return "", apperr.Validation("unsupported image type %s", contentType)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	folder := filepath.Join(s.dir, libraryID.String())
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", apperr.Upstream("create image folder", err)
	}

	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(folder, name), data, 0o644); err != nil {
		s.log.Error("Failed to write image", zap.String("library_id", libraryID.String()), zap.Error(err))
		return "", apperr.Upstream("write image", err)
	}

	url := s.baseURL + "/" + path.Join(libraryID.String(), name)
	s.log.Info("Image stored", zap.String("url", url), zap.String("content_type", contentType))
	return url, nil
}

// Handler serves stored images. Directory listings are not exposed.
func (s *Store) Handler() http.Handler {
	files := http.FileServer(http.Dir(s.dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
