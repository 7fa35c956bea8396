package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "timetrack/internal/errors"
	"timetrack/internal/model"
	"timetrack/internal/repository"
)

type TaskService struct {
	tasks       *repository.TaskRepository
	projects    *repository.ProjectRepository
	broadcaster Broadcaster
}

func NewTaskService(
	tasks *repository.TaskRepository,
	projects *repository.ProjectRepository,
	broadcaster Broadcaster,
) *TaskService {
	return &TaskService{tasks: tasks, projects: projects, broadcaster: broadcaster}
}

type TaskInput struct {
	Name        string
	HourlyRate  *float64
	IsCompleted *bool
}

func (s *TaskService) Create(ctx context.Context, userID, projectID string, input TaskInput) (*model.Task, *apperrors.APIError) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.BadRequest("invalid_name", "task name is required")
	}

	if _, apiErr := s.getOwnedProject(ctx, userID, projectID); apiErr != nil {
		return nil, apiErr
	}

	now := time.Now().UTC()
	task := &model.Task{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		Name:       name,
		HourlyRate: input.HourlyRate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if input.IsCompleted != nil {
		task.IsCompleted = *input.IsCompleted
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, apperrors.Internal("failed to create task")
	}

	s.broadcaster.Broadcast(userID, model.NewEvent(model.EventTaskCreated, task))
	return task, nil
}

func (s *TaskService) List(ctx context.Context, userID, projectID string) ([]model.Task, *apperrors.APIError) {
	if _, apiErr := s.getOwnedProject(ctx, userID, projectID); apiErr != nil {
		return nil, apiErr
	}

	tasks, err := s.tasks.ListByProject(ctx, projectID)
	if err != nil {
		return nil, apperrors.Internal("failed to list tasks")
	}
	return tasks, nil
}

func (s *TaskService) Update(ctx context.Context, userID, taskID string, input TaskInput) (*model.Task, *apperrors.APIError) {
	task, apiErr := s.getOwnedTask(ctx, userID, taskID)
	if apiErr != nil {
		return nil, apiErr
	}

	if name := strings.TrimSpace(input.Name); name != "" {
		task.Name = name
	}
	if input.HourlyRate != nil {
		task.HourlyRate = input.HourlyRate
	}
	if input.IsCompleted != nil {
		task.IsCompleted = *input.IsCompleted
	}
	task.UpdatedAt = time.Now().UTC()

	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, apperrors.Internal("failed to update task")
	}

	s.broadcaster.Broadcast(userID, model.NewEvent(model.EventTaskUpdated, task))
	return task, nil
}

func (s *TaskService) Delete(ctx context.Context, userID, taskID string) *apperrors.APIError {
	if _, apiErr := s.getOwnedTask(ctx, userID, taskID); apiErr != nil {
		return apiErr
	}

	if err := s.tasks.Delete(ctx, taskID); err != nil {
		return apperrors.Internal("failed to delete task")
	}

	s.broadcaster.Broadcast(userID, model.NewEvent(model.EventTaskDeleted, model.DeletedPayload{ID: taskID}))
	return nil
}

func (s *TaskService) getOwnedProject(ctx context.Context, userID, projectID string) (*model.Project, *apperrors.APIError) {
	project, err := s.projects.Get(ctx, projectID)
	if err == repository.ErrNotFound {
		return nil, apperrors.NotFound("project_not_found", "project not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to get project")
	}
	if project.UserID != userID {
		return nil, apperrors.NotFound("project_not_found", "project not found")
	}
	return project, nil
}

func (s *TaskService) getOwnedTask(ctx context.Context, userID, taskID string) (*model.Task, *apperrors.APIError) {
	task, err := s.tasks.Get(ctx, taskID)
	if err == repository.ErrNotFound {
		return nil, apperrors.NotFound("task_not_found", "task not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to get task")
	}
	if _, apiErr := s.getOwnedProject(ctx, userID, task.ProjectID); apiErr != nil {
		return nil, apperrors.NotFound("task_not_found", "task not found")
	}
	return task, nil
}
