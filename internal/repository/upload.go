package repository

import (
	"context"

	"resumos/internal/domain"
)

// UploadRepository persists uploaded document metadata.
type UploadRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, upload *domain.Upload) (int64, error)
	// List returns every upload joined with its uploader name, newest first.
	List(ctx context.Context) ([]domain.Upload, error)
}
