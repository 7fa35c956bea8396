package repository

import (
	"context"
	"database/sql"
	"fmt"

	"timetrack/internal/model"
)

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, project_id, name, hourly_rate, is_completed, created_at, updated_at`

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.ProjectID,
		task.Name,
		task.HourlyRate,
		task.IsCompleted,
		formatTime(task.CreatedAt),
		formatTime(task.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) Get(ctx context.Context, id string) (*model.Task, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`,
		id,
	)
	return scanTask(row)
}

func (r *TaskRepository) GetTx(ctx context.Context, tx *sql.Tx, id string) (*model.Task, error) {
	row := tx.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`,
		id,
	)
	return scanTask(row)
}

func (r *TaskRepository) ListByProject(ctx context.Context, projectID string) ([]model.Task, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE project_id = ? ORDER BY name`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		task, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		tasks = append(tasks, *task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	return tasks, nil
}

func (r *TaskRepository) Update(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE tasks
		 SET name = ?, hourly_rate = ?, is_completed = ?, updated_at = ?
		 WHERE id = ?`,
		task.Name,
		task.HourlyRate,
		task.IsCompleted,
		formatTime(task.UpdatedAt),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func scanTask(s scanner) (*model.Task, error) {
	task := model.Task{}
	var hourlyRate sql.NullFloat64
	var createdAt string
	var updatedAt string
	err := s.Scan(
		&task.ID,
		&task.ProjectID,
		&task.Name,
		&hourlyRate,
		&task.IsCompleted,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if hourlyRate.Valid {
		value := hourlyRate.Float64
		task.HourlyRate = &value
	}

	parsedCreatedAt, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse task created_at: %w", err)
	}
	parsedUpdatedAt, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse task updated_at: %w", err)
	}
	task.CreatedAt = parsedCreatedAt
	task.UpdatedAt = parsedUpdatedAt

	return &task, nil
}
