package handler

import (
	"github.com/gin-gonic/gin"

	apperrors "timetrack/internal/errors"
)

// writeError renders an APIError as the {"error": {code, message, details}}
// envelope. A nil error is a handler bug and degrades to a plain 500.
func writeError(c *gin.Context, apiErr *apperrors.APIError) {
	if apiErr == nil {
		apiErr = apperrors.Internal("internal server error")
	}

	errorBody := gin.H{
		"code":    apiErr.Code,
		"message": apiErr.Message,
	}
	if apiErr.Details != nil {
		errorBody["details"] = apiErr.Details
	}

	c.JSON(apiErr.Status, gin.H{
		"error": errorBody,
	})
}
