// Package wal journals learning updates before they are applied. A cycle
// appends its update, swaps the taxonomy and agent snapshots, then marks the
// entry applied; an entry still unapplied at startup marks a cycle that died
// between journal and commit.
package wal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is a single journaled learning update.
type Entry struct {
	Timestamp time.Time       `json:"timestamp"`
	Cycle     uint64          `json:"cycle"`
	Payload   json.RawMessage `json:"payload"`
	Applied   bool            `json:"applied"`
}

// WAL is an append-only journal persisted as a single JSON file.
type WAL struct {
	dir     string
	mu      sync.Mutex
	entries []Entry
}

// New creates or opens a journal in the given directory.
func New(dir string) (*WAL, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create wal dir: %w", err)
	}
	w := &WAL{dir: dir}
	if err := w.load(); err != nil {
		return nil, fmt.Errorf("load wal: %w", err)
	}
	return w, nil
}

// Append journals a cycle's update before it is applied and returns the
// entry index for MarkApplied.
func (w *WAL) Append(cycle uint64, payload interface{}) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	w.entries = append(w.entries, Entry{
		Timestamp: time.Now().UTC(),
		Cycle:     cycle,
		Payload:   raw,
		Applied:   false,
	})
	if err := w.persist(); err != nil {
		return 0, err
	}
	return len(w.entries) - 1, nil
}

// MarkApplied marks an entry as applied by index.
func (w *WAL) MarkApplied(index int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if index < 0 || index >= len(w.entries) {
		return fmt.Errorf("index %d out of range [0, %d)", index, len(w.entries))
	}
	w.entries[index].Applied = true
	return w.persist()
}

// Unapplied returns all entries that were journaled but never committed.
func (w *WAL) Unapplied() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()

	var result []Entry
	for _, e := range w.entries {
		if !e.Applied {
			result = append(result, e)
		}
	}
	return result
}

// Entries returns a snapshot of all entries.
func (w *WAL) Entries() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Entry, len(w.entries))
	copy(out, w.entries)
	return out
}

// Len returns the number of entries.
func (w *WAL) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

func (w *WAL) walPath() string {
	return filepath.Join(w.dir, "wal.json")
}

func (w *WAL) persist() error {
	data, err := json.MarshalIndent(w.entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(w.walPath(), data, 0640)
}

func (w *WAL) load() error {
	data, err := os.ReadFile(w.walPath())
	if err != nil {
		if os.IsNotExist(err) {
			w.entries = nil
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &w.entries)
}
