package model

import (
	"encoding/json"
	"fmt"
)

// Realtime event names. Every event carries the full updated entity, except
// the delete events which carry only {"id": ...}.
const (
	EventTimeEntryStarted = "time-entry-started"
	EventTimeEntryStopped = "time-entry-stopped"
	EventTimeEntryCreated = "time-entry-created"
	EventTimeEntryUpdated = "time-entry-updated"
	EventTimeEntryDeleted = "time-entry-deleted"
	EventProjectCreated   = "project-created"
	EventProjectUpdated   = "project-updated"
	EventProjectDeleted   = "project-deleted"
	EventTaskCreated      = "task-created"
	EventTaskUpdated      = "task-updated"
	EventTaskDeleted      = "task-deleted"
)

type Event struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type DeletedPayload struct {
	ID string `json:"id"`
}

func NewEvent(name string, payload interface{}) Event {
	raw, err := json.Marshal(payload)
	if err != nil {
		// All payload types are plain json-tagged structs.
		panic(fmt.Sprintf("marshal %s payload: %v", name, err))
	}
	return Event{Name: name, Payload: raw}
}

// TimeEntry decodes the payload of a time-entry event.
func (e Event) TimeEntry() (*TimeEntry, error) {
	var entry TimeEntry
	if err := json.Unmarshal(e.Payload, &entry); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Name, err)
	}
	return &entry, nil
}

// DeletedID decodes the payload of a *-deleted event.
func (e Event) DeletedID() (string, error) {
	var payload DeletedPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return "", fmt.Errorf("decode %s payload: %w", e.Name, err)
	}
	return payload.ID, nil
}
