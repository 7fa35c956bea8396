package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	apperrors "timetrack/internal/errors"
	"timetrack/internal/model"
	"timetrack/internal/rate"
	"timetrack/internal/repository"
)

const maxEntryHours = 24

type TimerService struct {
	entries     *repository.EntryRepository
	projects    *repository.ProjectRepository
	tasks       *repository.TaskRepository
	users       *repository.UserRepository
	broadcaster Broadcaster
}

func NewTimerService(
	entries *repository.EntryRepository,
	projects *repository.ProjectRepository,
	tasks *repository.TaskRepository,
	users *repository.UserRepository,
	broadcaster Broadcaster,
) *TimerService {
	return &TimerService{
		entries:     entries,
		projects:    projects,
		tasks:       tasks,
		users:       users,
		broadcaster: broadcaster,
	}
}

type StartInput struct {
	ProjectID   *string
	TaskID      *string
	Description string
}

type CreateInput struct {
	Description string
	StartTime   time.Time
	EndTime     time.Time
	ProjectID   *string
	TaskID      *string
}

// EditInput is a partial update. Pointer fields are applied when non-nil;
// ProjectID/TaskID additionally distinguish "absent" from "set to null" via
// the Set flags so an assignment can be cleared.
type EditInput struct {
	Description *string
	StartTime   *time.Time
	EndTime     *time.Time
	Hours       *float64
	ProjectID   *string
	SetProject  bool
	TaskID      *string
	SetTask     bool
}

func (in EditInput) touchesRestrictedFields() bool {
	return in.StartTime != nil || in.EndTime != nil || in.Hours != nil || in.SetProject || in.SetTask
}

// Start creates a running entry. At most one entry may run per user; the
// check inside the transaction is backed by a partial unique index so two
// racing starts cannot both commit.
func (s *TimerService) Start(ctx context.Context, userID string, input StartInput) (*model.TimeEntry, *apperrors.APIError) {
	now := time.Now().UTC()
	tx, err := s.entries.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	running, err := s.entries.GetRunningTx(ctx, tx, userID)
	if err != nil && err != repository.ErrNotFound {
		return nil, apperrors.Internal("failed to check running entry")
	}
	if running != nil {
		return nil, alreadyRunning(running)
	}

	project, task, apiErr := s.resolveAssignmentTx(ctx, tx, userID, input.ProjectID, input.TaskID)
	if apiErr != nil {
		return nil, apiErr
	}

	user, err := s.users.GetByIDTx(ctx, tx, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to load user")
	}

	entry := &model.TimeEntry{
		ID:                 uuid.NewString(),
		UserID:             userID,
		Description:        input.Description,
		StartTime:          now,
		IsRunning:          true,
		HourlyRateSnapshot: rate.Resolve(task, project, user),
		ProjectID:          input.ProjectID,
		TaskID:             input.TaskID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.entries.CreateTx(ctx, tx, entry); err != nil {
		if repository.IsRunningConflict(err) {
			return nil, apperrors.Conflict("timer_running", "a timer is already running", nil)
		}
		return nil, apperrors.Internal("failed to create entry")
	}

	if err := tx.Commit(); err != nil {
		if repository.IsRunningConflict(err) {
			return nil, apperrors.Conflict("timer_running", "a timer is already running", nil)
		}
		return nil, apperrors.Internal("failed to commit transaction")
	}

	s.broadcaster.Broadcast(userID, model.NewEvent(model.EventTimeEntryStarted, entry))
	return entry, nil
}

// Stop ends the running entry. Stopping an entry that is already stopped is
// rejected, not absorbed: a double stop usually means another device won a
// race and the caller should resync.
func (s *TimerService) Stop(ctx context.Context, userID, entryID string) (*model.TimeEntry, *apperrors.APIError) {
	now := time.Now().UTC()
	tx, err := s.entries.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	entry, apiErr := s.getOwnedEntryTx(ctx, tx, userID, entryID)
	if apiErr != nil {
		return nil, apiErr
	}

	if !entry.IsRunning {
		return nil, apperrors.Conflict("not_running", "time entry is not running", nil)
	}

	end := now
	entry.EndTime = &end
	entry.DurationSeconds = flooredSeconds(entry.StartTime, end)
	entry.IsRunning = false
	entry.UpdatedAt = now

	if err := s.entries.UpdateTx(ctx, tx, entry); err != nil {
		return nil, apperrors.Internal("failed to update entry")
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Internal("failed to commit transaction")
	}

	s.broadcaster.Broadcast(userID, model.NewEvent(model.EventTimeEntryStopped, entry))
	return entry, nil
}

// Current returns the user's running entry, or nil when none is running.
// Safe to poll at arbitrary frequency; it is a single indexed read.
func (s *TimerService) Current(ctx context.Context, userID string) (*model.TimeEntry, *apperrors.APIError) {
	entry, err := s.entries.GetRunning(ctx, userID)
	if err == repository.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Internal("failed to get running entry")
	}
	return entry, nil
}

// Create records an already-finished entry with explicit times.
func (s *TimerService) Create(ctx context.Context, userID string, input CreateInput) (*model.TimeEntry, *apperrors.APIError) {
	if input.EndTime.Before(input.StartTime) {
		return nil, apperrors.BadRequest("invalid_time_range", "endTime must not be before startTime")
	}

	now := time.Now().UTC()
	tx, err := s.entries.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	project, task, apiErr := s.resolveAssignmentTx(ctx, tx, userID, input.ProjectID, input.TaskID)
	if apiErr != nil {
		return nil, apiErr
	}

	user, err := s.users.GetByIDTx(ctx, tx, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to load user")
	}

	end := input.EndTime.UTC()
	entry := &model.TimeEntry{
		ID:                 uuid.NewString(),
		UserID:             userID,
		Description:        input.Description,
		StartTime:          input.StartTime.UTC(),
		EndTime:            &end,
		DurationSeconds:    flooredSeconds(input.StartTime, input.EndTime),
		HourlyRateSnapshot: rate.Resolve(task, project, user),
		ProjectID:          input.ProjectID,
		TaskID:             input.TaskID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.entries.CreateTx(ctx, tx, entry); err != nil {
		return nil, apperrors.Internal("failed to create entry")
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Internal("failed to commit transaction")
	}

	s.broadcaster.Broadcast(userID, model.NewEvent(model.EventTimeEntryCreated, entry))
	return entry, nil
}

// Edit applies a partial update. While an entry is running only its
// description may change; times and assignment require stopping first. A
// rejected edit leaves the entry untouched.
func (s *TimerService) Edit(ctx context.Context, userID, entryID string, input EditInput) (*model.TimeEntry, *apperrors.APIError) {
	now := time.Now().UTC()
	tx, err := s.entries.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	entry, apiErr := s.getOwnedEntryTx(ctx, tx, userID, entryID)
	if apiErr != nil {
		return nil, apiErr
	}

	if entry.IsRunning && input.touchesRestrictedFields() {
		return nil, apperrors.InvalidState("entry_running", "stop the timer before editing times or assignment")
	}

	if input.Description != nil {
		entry.Description = *input.Description
	}

	if input.SetProject || input.SetTask {
		if apiErr := s.applyAssignment(ctx, tx, userID, entry, input); apiErr != nil {
			return nil, apiErr
		}
	}

	if apiErr := applyTimes(entry, input); apiErr != nil {
		return nil, apiErr
	}

	entry.UpdatedAt = now
	if err := s.entries.UpdateTx(ctx, tx, entry); err != nil {
		return nil, apperrors.Internal("failed to update entry")
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Internal("failed to commit transaction")
	}

	s.broadcaster.Broadcast(userID, model.NewEvent(model.EventTimeEntryUpdated, entry))
	return entry, nil
}

func (s *TimerService) Delete(ctx context.Context, userID, entryID string) *apperrors.APIError {
	deleted, err := s.entries.Delete(ctx, entryID, userID)
	if err != nil {
		return apperrors.Internal("failed to delete entry")
	}
	if !deleted {
		return apperrors.NotFound("entry_not_found", "time entry not found")
	}

	s.broadcaster.Broadcast(userID, model.NewEvent(model.EventTimeEntryDeleted, model.DeletedPayload{ID: entryID}))
	return nil
}

func (s *TimerService) List(ctx context.Context, userID string, limit int) ([]model.TimeEntry, *apperrors.APIError) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	entries, err := s.entries.ListRecent(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.Internal("failed to list entries")
	}
	return entries, nil
}

// applyAssignment resolves the patched project/task pair, validates
// ownership and containment, and re-freezes the rate snapshot.
func (s *TimerService) applyAssignment(ctx context.Context, tx *sql.Tx, userID string, entry *model.TimeEntry, input EditInput) *apperrors.APIError {
	projectID := entry.ProjectID
	taskID := entry.TaskID
	if input.SetProject {
		projectID = input.ProjectID
		if !input.SetTask {
			// Reassigning the project orphans the old task unless the
			// caller names a task on the new project explicitly.
			taskID = nil
		}
	}
	if input.SetTask {
		taskID = input.TaskID
	}

	project, task, apiErr := s.resolveAssignmentTx(ctx, tx, userID, projectID, taskID)
	if apiErr != nil {
		return apiErr
	}

	user, err := s.users.GetByIDTx(ctx, tx, userID)
	if err != nil {
		return apperrors.Internal("failed to load user")
	}

	entry.ProjectID = projectID
	entry.TaskID = taskID
	entry.HourlyRateSnapshot = rate.Resolve(task, project, user)
	return nil
}

// applyTimes recomputes the interval from the patch. An explicit hours value
// takes precedence over a literal endTime.
func applyTimes(entry *model.TimeEntry, input EditInput) *apperrors.APIError {
	if input.Hours == nil && input.StartTime == nil && input.EndTime == nil {
		return nil
	}

	start := entry.StartTime
	if input.StartTime != nil {
		start = input.StartTime.UTC()
	}

	if input.Hours != nil {
		hours := *input.Hours
		if hours <= 0 || hours > maxEntryHours {
			return apperrors.BadRequest("invalid_hours", "hours must be greater than 0 and at most 24")
		}
		end := start.Add(time.Duration(hours * float64(time.Hour)))
		entry.StartTime = start
		entry.EndTime = &end
		entry.DurationSeconds = flooredSeconds(start, end)
		return nil
	}

	end := entry.EndTime
	if input.EndTime != nil {
		e := input.EndTime.UTC()
		end = &e
	}
	if end == nil {
		return apperrors.BadRequest("missing_end_time", "endTime is required")
	}
	if end.Before(start) {
		return apperrors.BadRequest("invalid_time_range", "endTime must not be before startTime")
	}

	entry.StartTime = start
	entry.EndTime = end
	entry.DurationSeconds = flooredSeconds(start, *end)
	return nil
}

func (s *TimerService) getOwnedEntryTx(ctx context.Context, tx *sql.Tx, userID, entryID string) (*model.TimeEntry, *apperrors.APIError) {
	entry, err := s.entries.GetTx(ctx, tx, entryID)
	if err == repository.ErrNotFound {
		return nil, apperrors.NotFound("entry_not_found", "time entry not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to get entry")
	}
	if entry.UserID != userID {
		return nil, apperrors.NotFound("entry_not_found", "time entry not found")
	}
	return entry, nil
}

func (s *TimerService) resolveAssignmentTx(ctx context.Context, tx *sql.Tx, userID string, projectID, taskID *string) (*model.Project, *model.Task, *apperrors.APIError) {
	var project *model.Project
	var task *model.Task

	if projectID != nil {
		found, err := s.projects.GetTx(ctx, tx, *projectID)
		if err == repository.ErrNotFound {
			return nil, nil, apperrors.NotFound("project_not_found", "project not found")
		}
		if err != nil {
			return nil, nil, apperrors.Internal("failed to get project")
		}
		if found.UserID != userID {
			return nil, nil, apperrors.NotFound("project_not_found", "project not found")
		}
		project = found
	}

	if taskID != nil {
		if projectID == nil {
			return nil, nil, apperrors.BadRequest("task_requires_project", "taskId requires a projectId")
		}
		found, err := s.tasks.GetTx(ctx, tx, *taskID)
		if err == repository.ErrNotFound {
			return nil, nil, apperrors.NotFound("task_not_found", "task not found")
		}
		if err != nil {
			return nil, nil, apperrors.Internal("failed to get task")
		}
		if found.ProjectID != *projectID {
			return nil, nil, apperrors.NotFound("task_not_found", "task not found")
		}
		task = found
	}

	return project, task, nil
}

func alreadyRunning(entry *model.TimeEntry) *apperrors.APIError {
	return apperrors.Conflict("timer_running", "a timer is already running", map[string]interface{}{
		"timeEntry": entry,
	})
}

func flooredSeconds(start, end time.Time) int {
	seconds := int(end.Sub(start) / time.Second)
	if seconds < 0 {
		return 0
	}
	return seconds
}
