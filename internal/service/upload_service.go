package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"resumos/internal/domain"
	"resumos/internal/repository"
	"resumos/internal/storage"
)

// UploadInput carries one document submission. The owner is never part of it.
type UploadInput struct {
	Title        string
	Description  string
	Course       string
	OriginalName string
	Body         io.Reader
}

// UploadService stores documents and lists them.
type UploadService interface {
	// Create stores the binary and records it for userID, which must come
	// from a verified credential.
	Create(ctx context.Context, userID int64, in UploadInput) (*domain.Upload, error)
	List(ctx context.Context) ([]domain.Upload, error)
}

type uploadService struct {
	uploads repository.UploadRepository
	users   repository.UserRepository
	store   storage.Service
	logger  logrus.FieldLogger
	now     func() time.Time
}

func NewUploadService(uploads repository.UploadRepository, users repository.UserRepository, store storage.Service, logger logrus.FieldLogger) UploadService {
	if logger == nil {
		logger = logrus.New()
	}
	return &uploadService{
		uploads: uploads,
		users:   users,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *uploadService) Create(ctx context.Context, userID int64, in UploadInput) (*domain.Upload, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if in.Body == nil {
		return nil, fmt.Errorf("%w: file is required", ErrValidation)
	}

	owner, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	ref := storage.NewObjectRef(s.now(), in.OriginalName)
	if err := s.store.Save(ctx, ref, in.Body); err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	// The blob write and the insert are not atomic; a failure here leaves an
	// orphaned object behind.
	upload := &domain.Upload{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Course:      strings.TrimSpace(in.Course),
		FileRef:     ref,
		UserID:      owner.ID,
	}
	if _, err := s.uploads.Create(ctx, upload); err != nil {
		s.logger.WithFields(logrus.Fields{"file_ref": ref, "user_id": owner.ID}).WithError(err).Warn("upload record not persisted, stored file is orphaned")
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	upload.UploaderName = owner.Name

	s.logger.WithFields(logrus.Fields{"upload_id": upload.ID, "user_id": owner.ID}).Info("document uploaded")
	return upload, nil
}

func (s *uploadService) List(ctx context.Context) ([]domain.Upload, error) {
	return s.uploads.List(ctx)
}
