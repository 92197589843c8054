package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"resumos/internal/auth"
	"resumos/internal/service"
	"resumos/internal/storage"
)

// TokenVerifier validates bearer tokens presented on protected routes.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Options tunes request handling.
type Options struct {
	// PublicURL, when set, is used as the base of file URLs instead of the
	// request scheme and host.
	PublicURL      string
	MaxUploadBytes int64
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	users   service.UserService
	uploads service.UploadService
	store   storage.Service
	tokens  TokenVerifier
	logger  logrus.FieldLogger
	opts    Options
}

func NewHandler(users service.UserService, uploads service.UploadService, store storage.Service, tokens TokenVerifier, logger logrus.FieldLogger, opts Options) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	return &Handler{
		users:   users,
		uploads: uploads,
		store:   store,
		tokens:  tokens,
		logger:  logger,
		opts:    opts,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware(), requestLogger(h.logger))

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "server running")
	})
	router.GET(filesPrefix+":ref", h.serveFile)

	api := router.Group("/api")
	{
		api.POST("/cadastro", h.register)
		api.POST("/login", h.login)
		api.POST("/upload", h.requireAuth(), h.upload)
		api.GET("/resumos", h.listUploads)
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
	}

	// unprefixed paths kept for older clients
	router.POST("/login", h.login)
	router.POST("/upload", h.requireAuth(), h.upload)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request handled")
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	user, err := h.users.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, UserResponse{ID: user.ID, Name: user.Name, Email: user.Email})
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	token, _, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// respondError maps service errors to status codes. Unknown errors are logged
// and reported generically.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, service.ErrWrongPassword):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wrong password"})
	default:
		h.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
