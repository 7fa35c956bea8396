package agent

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"timetrack/internal/model"
)

// Snapshot is the last known state written to disk so the client can render
// something meaningful before the first sync completes.
type Snapshot struct {
	CurrentEntry  *model.TimeEntry  `json:"currentEntry"`
	RecentEntries []model.TimeEntry `json:"recentEntries"`
	Projects      []model.Project   `json:"projects"`
	SavedAt       time.Time         `json:"savedAt"`
}

type SnapshotStore struct {
	path string
}

func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Load returns nil without error when no snapshot has been written yet.
func (s *SnapshotStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		// A corrupt snapshot is not worth failing startup over.
		return nil, nil
	}
	return &snapshot, nil
}

func (s *SnapshotStore) Save(snapshot Snapshot) error {
	snapshot.SavedAt = time.Now().UTC()
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
