package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"resumos/internal/domain"
	"resumos/internal/repository"
)

type UploadRepository struct {
	db *sql.DB
}

func NewUploadRepository(db *sql.DB) repository.UploadRepository {
	return &UploadRepository{db: db}
}

// Init is a no-op; the schema is owned by Migrate.
func (r *UploadRepository) Init(context.Context) error {
	return nil
}

func (r *UploadRepository) Create(ctx context.Context, upload *domain.Upload) (int64, error) {
	err := r.db.QueryRowContext(ctx, `
INSERT INTO uploads (title, description, course, file_ref, user_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`,
		upload.Title,
		upload.Description,
		upload.Course,
		upload.FileRef,
		upload.UserID,
	).Scan(&upload.ID, &upload.CreatedAt)
	if err != nil {
		switch pgErrorCode(err) {
		case foreignKeyViolation:
			return 0, fmt.Errorf("insert upload for user %d: %w", upload.UserID, repository.ErrNotFound)
		case uniqueViolation:
			return 0, fmt.Errorf("insert upload %q: %w", upload.FileRef, repository.ErrConflict)
		}
		return 0, fmt.Errorf("insert upload: %w", err)
	}
	return upload.ID, nil
}

func (r *UploadRepository) List(ctx context.Context) ([]domain.Upload, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT up.id, up.title, up.description, up.course, up.file_ref, up.user_id, up.created_at, u.name
FROM uploads up
JOIN users u ON u.id = up.user_id
ORDER BY up.created_at DESC, up.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query uploads: %w", err)
	}
	defer rows.Close()

	uploads := []domain.Upload{}
	for rows.Next() {
		var up domain.Upload
		if err := rows.Scan(&up.ID, &up.Title, &up.Description, &up.Course, &up.FileRef, &up.UserID, &up.CreatedAt, &up.UploaderName); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		uploads = append(uploads, up)
	}
	return uploads, rows.Err()
}
