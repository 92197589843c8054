package domain

import "time"

// Upload is a shared document ("resumo") owned by a user.
type Upload struct {
	ID          int64
	Title       string
	Description string
	Course      string
	// FileRef is the generated object name of the stored binary, relative to
	// the storage backend root.
	FileRef   string
	UserID    int64
	CreatedAt time.Time
	// UploaderName is only filled by listing queries.
	UploaderName string
}
