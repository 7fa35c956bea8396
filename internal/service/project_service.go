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

type ProjectService struct {
	projects    *repository.ProjectRepository
	tasks       *repository.TaskRepository
	broadcaster Broadcaster
}

func NewProjectService(
	projects *repository.ProjectRepository,
	tasks *repository.TaskRepository,
	broadcaster Broadcaster,
) *ProjectService {
	return &ProjectService{projects: projects, tasks: tasks, broadcaster: broadcaster}
}

type ProjectInput struct {
	Name       string
	HourlyRate *float64
	IsActive   *bool
}

func (s *ProjectService) Create(ctx context.Context, userID string, input ProjectInput) (*model.Project, *apperrors.APIError) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.BadRequest("invalid_name", "project name is required")
	}

	now := time.Now().UTC()
	project := &model.Project{
		ID:         uuid.NewString(),
		UserID:     userID,
		Name:       name,
		HourlyRate: input.HourlyRate,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if input.IsActive != nil {
		project.IsActive = *input.IsActive
	}

	if err := s.projects.Create(ctx, project); err != nil {
		return nil, apperrors.Internal("failed to create project")
	}

	s.broadcaster.Broadcast(userID, model.NewEvent(model.EventProjectCreated, project))
	return project, nil
}

func (s *ProjectService) List(ctx context.Context, userID string) ([]model.Project, *apperrors.APIError) {
	projects, err := s.projects.List(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to list projects")
	}
	return projects, nil
}

// Update changes name/rate/active flag. Rate changes affect only future
// entries; existing snapshots stay frozen.
func (s *ProjectService) Update(ctx context.Context, userID, projectID string, input ProjectInput) (*model.Project, *apperrors.APIError) {
	project, apiErr := s.getOwned(ctx, userID, projectID)
	if apiErr != nil {
		return nil, apiErr
	}

	if name := strings.TrimSpace(input.Name); name != "" {
		project.Name = name
	}
	if input.HourlyRate != nil {
		project.HourlyRate = input.HourlyRate
	}
	if input.IsActive != nil {
		project.IsActive = *input.IsActive
	}
	project.UpdatedAt = time.Now().UTC()

	if err := s.projects.Update(ctx, project); err != nil {
		return nil, apperrors.Internal("failed to update project")
	}

	s.broadcaster.Broadcast(userID, model.NewEvent(model.EventProjectUpdated, project))
	return project, nil
}

// Delete removes the project and its tasks. Entries referencing them are
// detached, not deleted, so history and frozen rates survive.
func (s *ProjectService) Delete(ctx context.Context, userID, projectID string) *apperrors.APIError {
	deleted, err := s.projects.Delete(ctx, projectID, userID)
	if err != nil {
		return apperrors.Internal("failed to delete project")
	}
	if !deleted {
		return apperrors.NotFound("project_not_found", "project not found")
	}

	s.broadcaster.Broadcast(userID, model.NewEvent(model.EventProjectDeleted, model.DeletedPayload{ID: projectID}))
	return nil
}

func (s *ProjectService) getOwned(ctx context.Context, userID, projectID string) (*model.Project, *apperrors.APIError) {
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
