// Package rate resolves the hourly rate to freeze onto a time entry.
package rate

import "timetrack/internal/model"

// Resolve walks the task → project → user default chain and returns the
// first rate that is set, bottoming out at 0. The result is frozen onto the
// entry at start or reassignment time; later rate edits on a task, project
// or user never change historical entries.
func Resolve(task *model.Task, project *model.Project, user *model.User) float64 {
	if task != nil && task.HourlyRate != nil {
		return *task.HourlyRate
	}
	if project != nil && project.HourlyRate != nil {
		return *project.HourlyRate
	}
	if user != nil {
		return user.DefaultHourlyRate
	}
	return 0
}
