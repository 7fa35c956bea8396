package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "timetrack/internal/errors"
)

const UserIDContextKey = "userID"

// TokenParser resolves a bearer token to a user id. Implemented by the auth
// service; the realtime hub uses the same contract for its handshake.
type TokenParser interface {
	ParseToken(token string) (string, *apperrors.APIError)
}

// Auth requires a valid bearer token and stores the user id on the request
// context. Requests without one never reach the handler.
func Auth(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			writeError(c, apperrors.Unauthorized("missing or malformed authorization header"))
			return
		}

		userID, apiErr := parser.ParseToken(token)
		if apiErr != nil {
			writeError(c, apiErr)
			return
		}

		c.Set(UserIDContextKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated user id, or "" outside the auth group.
func UserID(c *gin.Context) string {
	value, ok := c.Get(UserIDContextKey)
	if !ok {
		return ""
	}
	userID, ok := value.(string)
	if !ok {
		return ""
	}
	return userID
}

func bearerToken(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func writeError(c *gin.Context, apiErr *apperrors.APIError) {
	c.AbortWithStatusJSON(apiErr.Status, gin.H{
		"error": gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
			"details": apiErr.Details,
		},
	})
}
