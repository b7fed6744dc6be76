package devicestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"trading-research-core/internal/domain/ports/repository"
)

var _ repository.DeviceStore = (*FileStore)(nil)

type state struct {
	DeviceID        string `json:"device_id"`
	VoluntaryLogout bool   `json:"voluntary_logout"`
}

// FileStore persists the device identity in a small JSON file, the embedded
// equivalent of browser local storage: a random device token stable across
// restarts plus the voluntary-logout flag.
type FileStore struct {
	mu   sync.Mutex
	path string
	st   state
}

func New(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(b, &s.st); err != nil {
			// Corrupt file: start over with a fresh identity.
			s.st = state{}
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}
	return s, nil
}

func (s *FileStore) DeviceID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.DeviceID != "" {
		return s.st.DeviceID, nil
	}
	s.st.DeviceID = uuid.NewString()
	if err := s.flushLocked(); err != nil {
		return "", err
	}
	return s.st.DeviceID, nil
}

func (s *FileStore) VoluntaryLogout() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.VoluntaryLogout
}

func (s *FileStore) SetVoluntaryLogout(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.VoluntaryLogout = v
	return s.flushLocked()
}

func (s *FileStore) flushLocked() error {
	b, err := json.Marshal(s.st)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
