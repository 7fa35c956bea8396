package agent

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// CredentialStore persists the API token between runs.
type CredentialStore interface {
	Get() (string, error)
	Set(token string) error
	Clear() error
}

// FileCredentialStore keeps the token in a mode-0600 file. Writes go through
// a temp file and rename so a crash never leaves a torn credential.
type FileCredentialStore struct {
	path string
}

func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

func (s *FileCredentialStore) Get() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileCredentialStore) Set(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token+"\n"), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileCredentialStore) Clear() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
