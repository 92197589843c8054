package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"resumos/internal/auth"
)

const userIDContextKey = "userID"

type guardOutcome int

const (
	guardNoToken guardOutcome = iota
	guardInvalid
	guardVerified
)

var errNoBearer = errors.New("missing bearer token")

// requireAuth lets a request through only with a valid bearer token. Every
// request ends in exactly one of: abort with a single 401, or c.Next.
func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		outcome, claims, err := h.checkCredential(c.GetHeader("Authorization"))

		switch outcome {
		case guardVerified:
			c.Set(userIDContextKey, claims.UserID)
			c.Request = c.Request.WithContext(auth.WithUserID(c.Request.Context(), claims.UserID))
			c.Next()
		case guardNoToken:
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no token provided"})
		case guardInvalid:
			h.logger.WithError(err).WithField("path", c.Request.URL.Path).Warn("token validation failed")
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
	}
}

func (h *Handler) checkCredential(header string) (guardOutcome, *auth.Claims, error) {
	token, err := bearerToken(header)
	if err != nil {
		return guardNoToken, nil, err
	}
	claims, err := h.tokens.Verify(token)
	if err != nil {
		return guardInvalid, nil, err
	}
	return guardVerified, claims, nil
}

func bearerToken(header string) (string, error) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errNoBearer
	}
	return parts[1], nil
}

// currentUserID returns the identity attached by requireAuth.
func currentUserID(c *gin.Context) (int64, bool) {
	if v, ok := c.Get(userIDContextKey); ok {
		if id, ok := v.(int64); ok && id > 0 {
			return id, true
		}
	}
	return auth.UserIDFromContext(c.Request.Context())
}
