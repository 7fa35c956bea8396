package model

import "time"

const DefaultIdleTimeoutSeconds = 600

type TimeEntry struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"userId"`
	Description        string     `json:"description,omitempty"`
	StartTime          time.Time  `json:"startTime"`
	EndTime            *time.Time `json:"endTime,omitempty"`
	DurationSeconds    int        `json:"durationSeconds"`
	IsRunning          bool       `json:"isRunning"`
	HourlyRateSnapshot float64    `json:"hourlyRateSnapshot"`
	ProjectID          *string    `json:"projectId,omitempty"`
	TaskID             *string    `json:"taskId,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Elapsed returns the display duration at the given instant. The stored
// duration is only authoritative once the entry has stopped.
func (e *TimeEntry) Elapsed(now time.Time) int {
	if !e.IsRunning {
		return e.DurationSeconds
	}
	elapsed := int(now.Sub(e.StartTime).Seconds())
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Earnings returns the amount accrued at the given instant using the frozen
// rate snapshot.
func (e *TimeEntry) Earnings(now time.Time) float64 {
	return float64(e.Elapsed(now)) / 3600 * e.HourlyRateSnapshot
}

type Project struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Name       string    `json:"name"`
	HourlyRate *float64  `json:"hourlyRate,omitempty"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Task struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Name        string    `json:"name"`
	HourlyRate  *float64  `json:"hourlyRate,omitempty"`
	IsCompleted bool      `json:"isCompleted"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type User struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"-"`
	DefaultHourlyRate  float64   `json:"defaultHourlyRate"`
	IdleTimeoutSeconds int       `json:"idleTimeoutSeconds"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}
