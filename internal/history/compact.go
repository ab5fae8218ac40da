package history

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Compact rewrites the log keeping only the events that still shape lookups:
// the latest event per class and title, and every event whose layout is in
// its class's recency list. The new log replaces the old one atomically; on
// failure the old log and the in-memory state are left as they were.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compactLocked()
}

func (s *Store) compactLocked() error {
	before := len(s.events)
	s.logger.Infof("compacting history (%d events)", before)

	kept := s.retainedEvents()
	if err := writeEventsAtomic(s.path, kept); err != nil {
		return err
	}
	s.events = kept
	s.index.Rebuild(kept)
	s.logger.Infof("history compaction complete: kept %d of %d events", len(kept), before)
	return nil
}

func (s *Store) retainedEvents() []Event {
	latest := make(map[string]int, s.index.Titles())
	for i, ev := range s.events {
		key := ev.titleKey()
		if j, ok := latest[key]; !ok || ev.Timestamp >= s.events[j].Timestamp {
			latest[key] = i
		}
	}
	kept := make([]Event, 0, len(latest))
	for i, ev := range s.events {
		if latest[ev.titleKey()] == i || s.index.retains(ev) {
			kept = append(kept, ev)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Timestamp < kept[j].Timestamp
	})
	return kept
}

// writeEventsAtomic writes events to a temp file next to path and renames it
// over path.
func writeEventsAtomic(path string, events []Event) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	w := bufio.NewWriter(tmp)
	for _, ev := range events {
		line, err := encodeEvent(ev)
		if err != nil {
			return fail(err)
		}
		if _, err := w.Write(line); err != nil {
			return fail(fmt.Errorf("write temp file: %w", err))
		}
	}
	if err := w.Flush(); err != nil {
		return fail(fmt.Errorf("flush temp file: %w", err))
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fail(fmt.Errorf("chmod temp file: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace history file: %w", err)
	}
	return nil
}
