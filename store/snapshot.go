package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/devteam-ai/devteam/core"
)

// snapshotFile is the name of the snapshot inside PersistPath.
const snapshotFile = "memory.json"

// snapshot is the wholesale serialized form of the store: every project's
// conversation and context record plus the save timestamp. Workflow records
// are deliberately absent; they are a transient expiry cache.
type snapshot struct {
	Conversations map[string][]core.Message `json:"conversations"`
	Contexts      map[string]*core.Context  `json:"contexts"`
	SavedAt       time.Time                 `json:"saved_at"`
}

// Start launches the autosave loop. It returns immediately; the loop runs
// until ctx is cancelled or Close is called. When persistence is disabled
// Start is a no-op. Calling Start more than once is safe.
func (s *Store) Start(ctx context.Context) {
	if s.persistPath == "" {
		return
	}
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.autosave(ctx)
}

// Close stops the autosave loop, if one was started, and performs a final
// save. It returns even when Start was never called, so a deferred Close
// behind a failed startup cannot hang. Safe to call more than once.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.started.Load() {
		<-s.done
	}
	if s.persistPath == "" {
		return nil
	}
	return s.Save()
}

func (s *Store) autosave(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.saveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			// A failed tick is only logged; the next tick retries naturally.
			if err := s.Save(); err != nil {
				s.logger.Error("autosave failed", "error", err)
			}
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		}
	}
}

// Save serializes the whole store to the snapshot file. The snapshot is
// written to a temp file and renamed into place so readers never observe a
// partial document. Marshalling happens under the store lock, which also
// serializes overlapping save calls.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := json.Marshal(snapshot{
		Conversations: s.conversations,
		Contexts:      s.contexts,
		SavedAt:       time.Now().UTC(),
	})
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(s.persistPath, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	path := filepath.Join(s.persistPath, snapshotFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	s.logger.Debug("snapshot saved", "path", path, "bytes", len(data))
	return nil
}

// load replaces the store contents with the snapshot on disk. A missing file
// is not an error; the store simply starts empty.
func (s *Store) load() error {
	path := filepath.Join(s.persistPath, snapshotFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.logger.Info("no snapshot found", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Conversations != nil {
		s.conversations = snap.Conversations
	}
	if snap.Contexts != nil {
		s.contexts = snap.Contexts
	}
	s.logger.Info("snapshot loaded", "path", path, "saved_at", snap.SavedAt)
	return nil
}
