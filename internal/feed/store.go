package feed

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrConflict means the feed changed between read and write.
var ErrConflict = errors.New("feed changed since it was read")

// Version identifies one persisted state of the feed. Empty means no file yet.
type Version string

type Snapshot struct {
	Cards   []Card
	Version Version
}

type Store interface {
	Read(ctx context.Context) (Snapshot, error)
	// Write replaces the feed if it is still at expected, else ErrConflict.
	Write(ctx context.Context, cards []Card, expected Version) error
}

// Locker serializes writers across processes.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// FileStore keeps the feed as a JSON array on disk. Writes go through a temp
// file and rename so readers never see a partial file.
type FileStore struct {
	path   string
	locker Locker
}

func NewFileStore(path string, locker Locker) *FileStore {
	return &FileStore{path: path, locker: locker}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Read(ctx context.Context) (Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read feed: %w", err)
	}
	return decode(data)
}

func decode(data []byte) (Snapshot, error) {
	snap := Snapshot{Version: versionOf(data)}
	if len(bytes.TrimSpace(data)) == 0 {
		return snap, nil
	}
	if err := json.Unmarshal(data, &snap.Cards); err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse feed: %w", err)
	}
	return snap, nil
}

func (s *FileStore) Write(ctx context.Context, cards []Card, expected Version) error {
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Another writer held the lock for the whole wait.
				return fmt.Errorf("%w: %v", ErrConflict, err)
			}
			return fmt.Errorf("failed to lock feed: %w", err)
		}
		defer unlock()
	}

	current, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		current = nil
	case err != nil:
		return fmt.Errorf("failed to re-read feed: %w", err)
	}
	if versionOf(current) != expected {
		return ErrConflict
	}

	if cards == nil {
		cards = []Card{}
	}
	data, err := json.MarshalIndent(cards, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal feed: %w", err)
	}
	return writeAtomic(s.path, append(data, '\n'))
}

func versionOf(data []byte) Version {
	if data == nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return Version(hex.EncodeToString(sum[:]))
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create feed dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp feed: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp feed: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp feed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace feed: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store with the same version semantics.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryStore(cards []Card) *MemoryStore {
	m := &MemoryStore{}
	if cards != nil {
		m.data, _ = json.Marshal(cards)
	}
	return m
}

func (m *MemoryStore) Read(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return decode(m.data)
}

func (m *MemoryStore) Write(ctx context.Context, cards []Card, expected Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if versionOf(m.data) != expected {
		return ErrConflict
	}
	if cards == nil {
		cards = []Card{}
	}
	data, err := json.Marshal(cards)
	if err != nil {
		return err
	}
	m.data = data
	return nil
}
