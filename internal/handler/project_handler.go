package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "timetrack/internal/errors"
	"timetrack/internal/middleware"
	"timetrack/internal/service"
)

type ProjectHandler struct {
	projectService *service.ProjectService
	taskService    *service.TaskService
}

type projectRequest struct {
	Name       string   `json:"name"`
	HourlyRate *float64 `json:"hourlyRate"`
	IsActive   *bool    `json:"isActive"`
}

type taskRequest struct {
	Name        string   `json:"name"`
	HourlyRate  *float64 `json:"hourlyRate"`
	IsCompleted *bool    `json:"isCompleted"`
}

func NewProjectHandler(projectService *service.ProjectService, taskService *service.TaskService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService, taskService: taskService}
}

func (h *ProjectHandler) Create(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.BadRequest("invalid_json", "invalid request body"))
		return
	}

	project, apiErr := h.projectService.Create(c.Request.Context(), middleware.UserID(c), service.ProjectInput{
		Name:       req.Name,
		HourlyRate: req.HourlyRate,
		IsActive:   req.IsActive,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": project})
}

func (h *ProjectHandler) List(c *gin.Context) {
	projects, apiErr := h.projectService.List(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (h *ProjectHandler) Update(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.BadRequest("invalid_json", "invalid request body"))
		return
	}

	project, apiErr := h.projectService.Update(c.Request.Context(), middleware.UserID(c), c.Param("id"), service.ProjectInput{
		Name:       req.Name,
		HourlyRate: req.HourlyRate,
		IsActive:   req.IsActive,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

func (h *ProjectHandler) Delete(c *gin.Context) {
	if apiErr := h.projectService.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id")); apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *ProjectHandler) CreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.BadRequest("invalid_json", "invalid request body"))
		return
	}

	task, apiErr := h.taskService.Create(c.Request.Context(), middleware.UserID(c), c.Param("id"), service.TaskInput{
		Name:        req.Name,
		HourlyRate:  req.HourlyRate,
		IsCompleted: req.IsCompleted,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": task})
}

func (h *ProjectHandler) ListTasks(c *gin.Context) {
	tasks, apiErr := h.taskService.List(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *ProjectHandler) UpdateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.BadRequest("invalid_json", "invalid request body"))
		return
	}

	task, apiErr := h.taskService.Update(c.Request.Context(), middleware.UserID(c), c.Param("id"), service.TaskInput{
		Name:        req.Name,
		HourlyRate:  req.HourlyRate,
		IsCompleted: req.IsCompleted,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

func (h *ProjectHandler) DeleteTask(c *gin.Context) {
	if apiErr := h.taskService.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id")); apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
