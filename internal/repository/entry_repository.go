package repository

import (
	"context"
	"database/sql"
	"fmt"

	"timetrack/internal/model"
)

type EntryRepository struct {
	db *sql.DB
}

func NewEntryRepository(db *sql.DB) *EntryRepository {
	return &EntryRepository{db: db}
}

func (r *EntryRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

const entryColumns = `id, user_id, description, start_time, end_time, duration_seconds,
	is_running, hourly_rate_snapshot, project_id, task_id, created_at, updated_at`

func (r *EntryRepository) CreateTx(ctx context.Context, tx *sql.Tx, entry *model.TimeEntry) error {
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO time_entries (`+entryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.UserID,
		entry.Description,
		formatTime(entry.StartTime),
		formatTimePtr(entry.EndTime),
		entry.DurationSeconds,
		entry.IsRunning,
		entry.HourlyRateSnapshot,
		entry.ProjectID,
		entry.TaskID,
		formatTime(entry.CreatedAt),
		formatTime(entry.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create entry: %w", err)
	}
	return nil
}

func (r *EntryRepository) Get(ctx context.Context, id string) (*model.TimeEntry, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+entryColumns+` FROM time_entries WHERE id = ?`,
		id,
	)
	return scanEntry(row)
}

func (r *EntryRepository) GetTx(ctx context.Context, tx *sql.Tx, id string) (*model.TimeEntry, error) {
	row := tx.QueryRowContext(
		ctx,
		`SELECT `+entryColumns+` FROM time_entries WHERE id = ?`,
		id,
	)
	return scanEntry(row)
}

// GetRunning returns the user's running entry or ErrNotFound.
func (r *EntryRepository) GetRunning(ctx context.Context, userID string) (*model.TimeEntry, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+entryColumns+` FROM time_entries WHERE user_id = ? AND is_running = 1`,
		userID,
	)
	return scanEntry(row)
}

func (r *EntryRepository) GetRunningTx(ctx context.Context, tx *sql.Tx, userID string) (*model.TimeEntry, error) {
	row := tx.QueryRowContext(
		ctx,
		`SELECT `+entryColumns+` FROM time_entries WHERE user_id = ? AND is_running = 1`,
		userID,
	)
	return scanEntry(row)
}

func (r *EntryRepository) UpdateTx(ctx context.Context, tx *sql.Tx, entry *model.TimeEntry) error {
	_, err := tx.ExecContext(
		ctx,
		`UPDATE time_entries
		 SET description = ?,
		     start_time = ?,
			 end_time = ?,
			 duration_seconds = ?,
			 is_running = ?,
			 hourly_rate_snapshot = ?,
			 project_id = ?,
			 task_id = ?,
			 updated_at = ?
		 WHERE id = ?`,
		entry.Description,
		formatTime(entry.StartTime),
		formatTimePtr(entry.EndTime),
		entry.DurationSeconds,
		entry.IsRunning,
		entry.HourlyRateSnapshot,
		entry.ProjectID,
		entry.TaskID,
		formatTime(entry.UpdatedAt),
		entry.ID,
	)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	return nil
}

// Delete removes an entry scoped by owner and reports whether a row matched.
func (r *EntryRepository) Delete(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(
		ctx,
		`DELETE FROM time_entries WHERE id = ? AND user_id = ?`,
		id,
		userID,
	)
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete entry rows: %w", err)
	}
	return affected > 0, nil
}

func (r *EntryRepository) ListRecent(ctx context.Context, userID string, limit int) ([]model.TimeEntry, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+entryColumns+`
		 FROM time_entries
		 WHERE user_id = ?
		 ORDER BY start_time DESC
		 LIMIT ?`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries := make([]model.TimeEntry, 0, limit)
	for rows.Next() {
		entry, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return entries, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (*model.TimeEntry, error) {
	entry := model.TimeEntry{}
	var startTime string
	var endTime sql.NullString
	var projectID sql.NullString
	var taskID sql.NullString
	var createdAt string
	var updatedAt string
	err := s.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.Description,
		&startTime,
		&endTime,
		&entry.DurationSeconds,
		&entry.IsRunning,
		&entry.HourlyRateSnapshot,
		&projectID,
		&taskID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan entry: %w", err)
	}

	parsedStart, err := parseTime(startTime)
	if err != nil {
		return nil, fmt.Errorf("parse entry start_time: %w", err)
	}
	entry.StartTime = parsedStart

	if endTime.Valid {
		parsedEnd, parseErr := parseTime(endTime.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parse entry end_time: %w", parseErr)
		}
		entry.EndTime = &parsedEnd
	}
	if projectID.Valid {
		value := projectID.String
		entry.ProjectID = &value
	}
	if taskID.Valid {
		value := taskID.String
		entry.TaskID = &value
	}

	parsedCreatedAt, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse entry created_at: %w", err)
	}
	entry.CreatedAt = parsedCreatedAt

	parsedUpdatedAt, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse entry updated_at: %w", err)
	}
	entry.UpdatedAt = parsedUpdatedAt

	return &entry, nil
}
