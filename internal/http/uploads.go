package http

import (
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"resumos/internal/domain"
	"resumos/internal/service"
	"resumos/internal/storage"
)

const filesPrefix = "/uploads/"

// uploadForm deliberately has no owner field: identity comes from the token.
type uploadForm struct {
	Title       string                `form:"title"`
	Description string                `form:"description"`
	Course      string                `form:"course"`
	File        *multipart.FileHeader `form:"file"`
}

type UserResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type UploadResponse struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Course       string `json:"course"`
	FileRef      string `json:"fileRef"`
	URL          string `json:"url"`
	CreatedAt    string `json:"created_at"`
	UploaderName string `json:"uploaderName"`
	UserID       int64  `json:"userId"`
}

func (h *Handler) upload(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no token provided"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)

	var form uploadForm
	if err := c.ShouldBindWith(&form, binding.FormMultipart); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}

	in := service.UploadInput{
		Title:       form.Title,
		Description: form.Description,
		Course:      form.Course,
	}
	if form.File != nil {
		file, err := form.File.Open()
		if err != nil {
			h.respondError(c, err)
			return
		}
		defer file.Close()
		in.OriginalName = form.File.Filename
		in.Body = file
	}

	up, err := h.uploads.Create(c.Request.Context(), userID, in)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "upload created",
		"resumo":  h.uploadToResponse(c, *up),
	})
}

func (h *Handler) listUploads(c *gin.Context) {
	uploads, err := h.uploads.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := make([]UploadResponse, len(uploads))
	for i := range uploads {
		resp[i] = h.uploadToResponse(c, uploads[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) serveFile(c *gin.Context) {
	ref := c.Param("ref")
	obj, err := h.store.Open(c.Request.Context(), ref)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, storage.ErrInvalidRef) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		h.respondError(c, err)
		return
	}
	defer obj.Body.Close()

	contentType := mime.TypeByExtension(filepath.Ext(ref))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, obj.Size, contentType, obj.Body, nil)
}

func (h *Handler) uploadToResponse(c *gin.Context, up domain.Upload) UploadResponse {
	return UploadResponse{
		ID:           up.ID,
		Title:        up.Title,
		Description:  up.Description,
		Course:       up.Course,
		FileRef:      up.FileRef,
		URL:          h.fileURL(c, up.FileRef),
		CreatedAt:    up.CreatedAt.UTC().Format(time.RFC3339),
		UploaderName: up.UploaderName,
		UserID:       up.UserID,
	}
}

// fileURL resolves a stored ref against the public base URL or, when none is
// configured, the scheme and host the request arrived on.
func (h *Handler) fileURL(c *gin.Context, ref string) string {
	path := filesPrefix + url.PathEscape(ref)
	if h.opts.PublicURL != "" {
		return strings.TrimRight(h.opts.PublicURL, "/") + path
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + c.Request.Host + path
}
