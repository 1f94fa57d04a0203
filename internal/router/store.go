package router

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists a router Snapshot to disk, atomically (write-temp then
// rename) per spec.md §6's local state layout and §4.4's persistence rule.
type Store struct {
	path string
}

// NewStore creates a Store writing to path (typically
// ~/.forge/router_stats.json).
func NewStore(path string) *Store {
	return &Store{path: path}
}

type onDiskSnapshot struct {
	TotalQueries       uint64                   `json:"total_queries"`
	TotalLocalAttempts uint64                   `json:"total_local_attempts"`
	TotalForwarded     uint64                   `json:"total_forwarded"`
	Categories         map[Category]onDiskStats `json:"categories"`
}

type onDiskStats struct {
	Attempts  uint64 `json:"attempts"`
	Successes uint64 `json:"successes"`
}

// Save atomically writes snap to the store's path.
func (s *Store) Save(snap Snapshot) error {
	if s == nil || s.path == "" {
		return nil
	}

	out := onDiskSnapshot{
		TotalQueries:       snap.TotalQueries,
		TotalLocalAttempts: snap.TotalLocalAttempts,
		TotalForwarded:     snap.TotalForwarded,
		Categories:         make(map[Category]onDiskStats, len(snap.Categories)),
	}
	for cat, stats := range snap.Categories {
		out.Categories[cat] = onDiskStats{Attempts: stats.Attempts, Successes: stats.Successes}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("router store: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("router store: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".router_stats-*.tmp")
	if err != nil {
		return fmt.Errorf("router store: tempfile: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("router store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("router store: close: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("router store: rename: %w", err)
	}
	return nil
}

// Load reads a previously-saved Snapshot. Returns a zero Snapshot and no
// error if the file does not exist yet.
func (s *Store) Load() (Snapshot, error) {
	empty := Snapshot{Categories: make(map[Category]CategoryStats)}
	if s == nil || s.path == "" {
		return empty, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return empty, nil
		}
		return empty, fmt.Errorf("router store: read: %w", err)
	}

	var in onDiskSnapshot
	if err := json.Unmarshal(data, &in); err != nil {
		return empty, fmt.Errorf("router store: unmarshal: %w", err)
	}

	snap := Snapshot{
		TotalQueries:       in.TotalQueries,
		TotalLocalAttempts: in.TotalLocalAttempts,
		TotalForwarded:     in.TotalForwarded,
		Categories:         make(map[Category]CategoryStats, len(in.Categories)),
	}
	for cat, stats := range in.Categories {
		snap.Categories[cat] = CategoryStats{Attempts: stats.Attempts, Successes: stats.Successes}
	}
	return snap, nil
}

// LoadInto loads the snapshot from disk and restores it into r, rotating
// (resetting) the stats file in place if the persisted data violates the
// TotalLocalAttempts <= TotalQueries invariant — spec.md §4.4's "historical
// data... must be detected on load and the stats file rotated/reset".
func (s *Store) LoadInto(r *Router) error {
	snap, err := s.Load()
	if err != nil {
		return err
	}
	if err := r.Restore(snap); err != nil {
		rotated := s.path + ".corrupt"
		_ = os.Rename(s.path, rotated)
		return fmt.Errorf("router store: %w (rotated to %s, starting fresh)", err, rotated)
	}
	return nil
}
