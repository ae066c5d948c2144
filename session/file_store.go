package session

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	apperrors "github.com/seatwise/dashboard/internal/errors"
)

var _ Store = (*FileStore)(nil)

// FileStore persists the credential as a JSON document on disk, the
// dashboard's stand-in for browser-local storage.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (fs *FileStore) Load() (*Credential, error) {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.ErrNoCredential
		}
		return nil, errors.Wrap(err, "read credential file")
	}

	var stored struct {
		Key        string     `json:"key"`
		Credential Credential `json:"credential"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, errors.Wrap(apperrors.ErrInvalidCredential, err.Error())
	}
	if stored.Key != StorageKey || stored.Credential.Token == "" {
		return nil, apperrors.ErrNoCredential
	}
	return &stored.Credential, nil
}

func (fs *FileStore) Save(credential *Credential) error {
	stored := struct {
		Key        string     `json:"key"`
		Credential Credential `json:"credential"`
	}{Key: StorageKey, Credential: *credential}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode credential")
	}
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		return errors.Wrap(err, "create credential dir")
	}
	return errors.Wrap(os.WriteFile(fs.path, data, 0o600), "write credential file")
}

func (fs *FileStore) Clear() error {
	err := os.Remove(fs.path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove credential file")
	}
	return nil
}
