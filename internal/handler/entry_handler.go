package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "timetrack/internal/errors"
	"timetrack/internal/middleware"
	"timetrack/internal/service"
)

type EntryHandler struct {
	timerService *service.TimerService
}

type startRequest struct {
	ProjectID   *string `json:"projectId"`
	TaskID      *string `json:"taskId"`
	Description string  `json:"description"`
}

type createEntryRequest struct {
	Description string     `json:"description"`
	StartTime   *time.Time `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
	ProjectID   *string    `json:"projectId"`
	TaskID      *string    `json:"taskId"`
}

func NewEntryHandler(timerService *service.TimerService) *EntryHandler {
	return &EntryHandler{timerService: timerService}
}

func (h *EntryHandler) Start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.BadRequest("invalid_json", "invalid request body"))
		return
	}

	userID := middleware.UserID(c)
	entry, apiErr := h.timerService.Start(c.Request.Context(), userID, service.StartInput{
		ProjectID:   req.ProjectID,
		TaskID:      req.TaskID,
		Description: req.Description,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeEntry": entry})
}

func (h *EntryHandler) Stop(c *gin.Context) {
	userID := middleware.UserID(c)
	entry, apiErr := h.timerService.Stop(c.Request.Context(), userID, c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeEntry": entry})
}

// Current returns the running entry or an explicit null. "Nothing running"
// is a successful answer, never a 404.
func (h *EntryHandler) Current(c *gin.Context) {
	userID := middleware.UserID(c)
	entry, apiErr := h.timerService.Current(c.Request.Context(), userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeEntry": entry})
}

func (h *EntryHandler) List(c *gin.Context) {
	userID := middleware.UserID(c)

	limit := 50
	if rawLimit := c.Query("limit"); rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil {
			limit = parsed
		}
	}

	entries, apiErr := h.timerService.List(c.Request.Context(), userID, limit)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeEntries": entries})
}

func (h *EntryHandler) Create(c *gin.Context) {
	var req createEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.BadRequest("invalid_json", "invalid request body"))
		return
	}
	if req.StartTime == nil || req.EndTime == nil {
		writeError(c, apperrors.BadRequest("missing_times", "startTime and endTime are required"))
		return
	}

	userID := middleware.UserID(c)
	entry, apiErr := h.timerService.Create(c.Request.Context(), userID, service.CreateInput{
		Description: req.Description,
		StartTime:   *req.StartTime,
		EndTime:     *req.EndTime,
		ProjectID:   req.ProjectID,
		TaskID:      req.TaskID,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeEntry": entry})
}

// Edit decodes the patch through raw JSON so "projectId": null (clear the
// assignment) is distinguishable from the key being absent.
func (h *EntryHandler) Edit(c *gin.Context) {
	var raw map[string]json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		writeError(c, apperrors.BadRequest("invalid_json", "invalid request body"))
		return
	}

	input, apiErr := parseEditInput(raw)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	userID := middleware.UserID(c)
	entry, apiErr := h.timerService.Edit(c.Request.Context(), userID, c.Param("id"), input)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeEntry": entry})
}

func (h *EntryHandler) Delete(c *gin.Context) {
	userID := middleware.UserID(c)
	if apiErr := h.timerService.Delete(c.Request.Context(), userID, c.Param("id")); apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func parseEditInput(raw map[string]json.RawMessage) (service.EditInput, *apperrors.APIError) {
	var input service.EditInput
	invalid := apperrors.BadRequest("invalid_json", "invalid request body")

	if v, ok := raw["description"]; ok {
		var description string
		if err := json.Unmarshal(v, &description); err != nil {
			return input, invalid
		}
		input.Description = &description
	}
	if v, ok := raw["startTime"]; ok {
		var start time.Time
		if err := json.Unmarshal(v, &start); err != nil {
			return input, invalid
		}
		input.StartTime = &start
	}
	if v, ok := raw["endTime"]; ok {
		var end time.Time
		if err := json.Unmarshal(v, &end); err != nil {
			return input, invalid
		}
		input.EndTime = &end
	}
	if v, ok := raw["hours"]; ok {
		var hours float64
		if err := json.Unmarshal(v, &hours); err != nil {
			return input, invalid
		}
		input.Hours = &hours
	}
	if v, ok := raw["projectId"]; ok {
		input.SetProject = true
		if err := json.Unmarshal(v, &input.ProjectID); err != nil {
			return input, invalid
		}
	}
	if v, ok := raw["taskId"]; ok {
		input.SetTask = true
		if err := json.Unmarshal(v, &input.TaskID); err != nil {
			return input, invalid
		}
	}

	return input, nil
}
