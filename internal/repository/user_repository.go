package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"timetrack/internal/model"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, default_hourly_rate, idle_timeout_seconds, created_at, updated_at`

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.DefaultHourlyRate,
		user.IdleTimeoutSeconds,
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`,
		email,
	)
	return scanUser(row)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`,
		id,
	)
	return scanUser(row)
}

func (r *UserRepository) GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (*model.User, error) {
	row := tx.QueryRowContext(
		ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`,
		id,
	)
	return scanUser(row)
}

func (r *UserRepository) UpdateSettings(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE users
		 SET default_hourly_rate = ?, idle_timeout_seconds = ?, updated_at = ?
		 WHERE id = ?`,
		user.DefaultHourlyRate,
		user.IdleTimeoutSeconds,
		formatTime(time.Now()),
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("update user settings: %w", err)
	}
	return nil
}

func scanUser(s scanner) (*model.User, error) {
	var user model.User
	var createdAt string
	var updatedAt string
	err := s.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.DefaultHourlyRate,
		&user.IdleTimeoutSeconds,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	parsedCreatedAt, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse user created_at: %w", err)
	}
	parsedUpdatedAt, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse user updated_at: %w", err)
	}
	user.CreatedAt = parsedCreatedAt
	user.UpdatedAt = parsedUpdatedAt

	return &user, nil
}
