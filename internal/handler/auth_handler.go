package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "timetrack/internal/errors"
	"timetrack/internal/middleware"
	"timetrack/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type settingsRequest struct {
	DefaultHourlyRate  *float64 `json:"defaultHourlyRate"`
	IdleTimeoutSeconds *int     `json:"idleTimeoutSeconds"`
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.BadRequest("invalid_json", "invalid request body"))
		return
	}

	result, apiErr := h.authService.Register(c.Request.Context(), req.Email, req.Password)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.BadRequest("invalid_json", "invalid request body"))
		return
	}

	result, apiErr := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Me returns the authenticated user's profile and settings so clients can
// pick up the server-side idle threshold and default rate.
func (h *AuthHandler) Me(c *gin.Context) {
	user, apiErr := h.authService.Me(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *AuthHandler) UpdateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.BadRequest("invalid_json", "invalid request body"))
		return
	}

	user, apiErr := h.authService.UpdateSettings(c.Request.Context(), middleware.UserID(c), service.SettingsInput{
		DefaultHourlyRate:  req.DefaultHourlyRate,
		IdleTimeoutSeconds: req.IdleTimeoutSeconds,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}
