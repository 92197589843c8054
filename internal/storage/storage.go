package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrObjectNotFound is returned by Open when no object is stored under the ref.
var ErrObjectNotFound = errors.New("storage: object not found")

// ErrInvalidRef is returned for refs that could escape the storage root.
var ErrInvalidRef = errors.New("storage: invalid object ref")

// Object is an opened stored binary. Callers must close Body.
type Object struct {
	Body io.ReadCloser
	Size int64
}

// Service persists uploaded binaries under flat object refs.
type Service interface {
	Save(ctx context.Context, ref string, body io.Reader) error
	Open(ctx context.Context, ref string) (*Object, error)
}

const maxExtLen = 16

// NewObjectRef derives a collision-free object name from the upload time and
// the original file extension: <unix-millis>-<uuid><.ext>.
func NewObjectRef(now time.Time, originalName string) string {
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), uuid.NewString(), sanitizeExt(filepath.Ext(originalName)))
}

func sanitizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" || len(ext) > maxExtLen {
		return ""
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return "." + ext
}

// ValidateRef rejects empty refs and anything that is not a single path element.
func ValidateRef(ref string) error {
	if ref == "" || ref == "." || ref == ".." ||
		strings.ContainsAny(ref, `/\`) ||
		strings.Contains(ref, "..") ||
		strings.HasPrefix(ref, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return nil
}
