package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalService keeps uploaded binaries in a directory on disk.
type LocalService struct {
	root string
}

func NewLocalService(root string) (*LocalService, error) {
	if root == "" {
		return nil, fmt.Errorf("storage dir is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalService{root: filepath.Clean(root)}, nil
}

func (s *LocalService) Save(ctx context.Context, ref string, body io.Reader) error {
	if err := ValidateRef(ref); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(s.root, ref)
	// O_EXCL: an existing object is never overwritten
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create object %s: %w", ref, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write object %s: %w", ref, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close object %s: %w", ref, err)
	}
	return nil
}

func (s *LocalService) Open(_ context.Context, ref string) (*Object, error) {
	if err := ValidateRef(ref); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.root, ref))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("open object %s: %w", ref, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat object %s: %w", ref, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, ErrObjectNotFound
	}
	return &Object{Body: f, Size: info.Size()}, nil
}

var _ Service = (*LocalService)(nil)
