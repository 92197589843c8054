package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"resumos/internal/domain"
	"resumos/internal/repository"
)

const createUploadsTable = `
CREATE TABLE IF NOT EXISTS uploads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	course TEXT NOT NULL DEFAULT '',
	file_ref TEXT NOT NULL UNIQUE,
	user_id INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_uploads_created_at ON uploads(created_at);
`

type UploadRepository struct {
	db *sql.DB
}

func NewUploadRepository(db *sql.DB) repository.UploadRepository {
	return &UploadRepository{db: db}
}

func (r *UploadRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createUploadsTable); err != nil {
		return fmt.Errorf("create uploads table: %w", err)
	}
	return nil
}

func (r *UploadRepository) Create(ctx context.Context, upload *domain.Upload) (int64, error) {
	upload.CreatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
INSERT INTO uploads (title, description, course, file_ref, user_id, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		upload.Title,
		upload.Description,
		upload.Course,
		upload.FileRef,
		upload.UserID,
		upload.CreatedAt,
	)
	if err != nil {
		switch {
		case isForeignKeyViolation(err):
			return 0, fmt.Errorf("insert upload for user %d: %w", upload.UserID, repository.ErrNotFound)
		case isUniqueViolation(err):
			return 0, fmt.Errorf("insert upload %q: %w", upload.FileRef, repository.ErrConflict)
		}
		return 0, fmt.Errorf("insert upload: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("upload last insert id: %w", err)
	}
	upload.ID = id
	return id, nil
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
		if err := rows.Scan(
			&up.ID,
			&up.Title,
			&up.Description,
			&up.Course,
			&up.FileRef,
			&up.UserID,
			&up.CreatedAt,
			&up.UploaderName,
		); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		uploads = append(uploads, up)
	}

	return uploads, rows.Err()
}
