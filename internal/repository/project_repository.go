package repository

import (
	"context"
	"database/sql"
	"fmt"

	"timetrack/internal/model"
)

type ProjectRepository struct {
	db *sql.DB
}

func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `id, user_id, name, hourly_rate, is_active, created_at, updated_at`

func (r *ProjectRepository) Create(ctx context.Context, project *model.Project) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		project.ID,
		project.UserID,
		project.Name,
		project.HourlyRate,
		project.IsActive,
		formatTime(project.CreatedAt),
		formatTime(project.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (r *ProjectRepository) Get(ctx context.Context, id string) (*model.Project, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`,
		id,
	)
	return scanProject(row)
}

func (r *ProjectRepository) GetTx(ctx context.Context, tx *sql.Tx, id string) (*model.Project, error) {
	row := tx.QueryRowContext(
		ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`,
		id,
	)
	return scanProject(row)
}

func (r *ProjectRepository) List(ctx context.Context, userID string) ([]model.Project, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+projectColumns+` FROM projects WHERE user_id = ? ORDER BY name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]model.Project, 0)
	for rows.Next() {
		project, scanErr := scanProject(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		projects = append(projects, *project)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}

	return projects, nil
}

func (r *ProjectRepository) Update(ctx context.Context, project *model.Project) error {
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE projects
		 SET name = ?, hourly_rate = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		project.Name,
		project.HourlyRate,
		project.IsActive,
		formatTime(project.UpdatedAt),
		project.ID,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

// Delete removes the project and its tasks; entries are detached by the
// ON DELETE SET NULL references so history survives.
func (r *ProjectRepository) Delete(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(
		ctx,
		`DELETE FROM projects WHERE id = ? AND user_id = ?`,
		id,
		userID,
	)
	if err != nil {
		return false, fmt.Errorf("delete project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete project rows: %w", err)
	}
	return affected > 0, nil
}

func scanProject(s scanner) (*model.Project, error) {
	project := model.Project{}
	var hourlyRate sql.NullFloat64
	var createdAt string
	var updatedAt string
	err := s.Scan(
		&project.ID,
		&project.UserID,
		&project.Name,
		&hourlyRate,
		&project.IsActive,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}

	if hourlyRate.Valid {
		value := hourlyRate.Float64
		project.HourlyRate = &value
	}

	parsedCreatedAt, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse project created_at: %w", err)
	}
	parsedUpdatedAt, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse project updated_at: %w", err)
	}
	project.CreatedAt = parsedCreatedAt
	project.UpdatedAt = parsedUpdatedAt

	return &project, nil
}
