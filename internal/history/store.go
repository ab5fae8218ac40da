package history

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hyprpal/hyprslot/internal/util"
)

// DefaultCompactionThreshold is the event count above which Load compacts the log.
const DefaultCompactionThreshold = 5000

// LayoutIDSource reports the layout ids that currently exist. Events that
// reference any other id are dropped on load.
type LayoutIDSource interface {
	LayoutIDs() map[string]struct{}
}

// Source names the index that answered a lookup.
type Source string

const (
	SourceWindow Source = "window"
	SourceTitle  Source = "title"
	SourceClass  Source = "class"
)

// Match is the result of a history lookup.
type Match struct {
	LayoutID string `json:"layoutId"`
	Source   Source `json:"source"`
}

// Stats summarizes the store contents.
type Stats struct {
	Path     string `json:"path"`
	Events   int    `json:"events"`
	Classes  int    `json:"classes"`
	Titles   int    `json:"titles"`
	Sessions int    `json:"sessions"`
}

// Options configures a Store.
type Options struct {
	// Path is the JSON Lines log file.
	Path string
	// Layouts prunes events for deleted layouts. Nil keeps every event.
	Layouts LayoutIDSource
	Logger  *util.Logger
	// CompactionThreshold defaults to DefaultCompactionThreshold.
	CompactionThreshold int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Store owns the history log file. Create exactly one per path and share it;
// the log has no protection against a second writer.
type Store struct {
	path      string
	layouts   LayoutIDSource
	logger    *util.Logger
	threshold int
	now       func() time.Time

	mu      sync.Mutex
	events  []Event
	index   *Index
	session map[uint64]string
}

// New returns an empty store. Call Load to read the log.
func New(opts Options) *Store {
	threshold := opts.CompactionThreshold
	if threshold <= 0 {
		threshold = DefaultCompactionThreshold
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		path:      opts.Path,
		layouts:   opts.Layouts,
		logger:    opts.Logger,
		threshold: threshold,
		now:       now,
		index:     NewIndex(),
		session:   make(map[uint64]string),
	}
}

// Path returns the log file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the log, drops undecodable lines and events for unknown layouts,
// orders the rest by timestamp and rebuilds the index. It compacts the log
// when it has grown past the threshold. Failures are logged and leave the
// store empty; they are never returned.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.readEvents()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Infof("history file %s does not exist, starting empty", s.path)
		} else {
			s.logger.Errorf("load history: %v", err)
		}
		s.events = nil
		s.index = NewIndex()
		return
	}

	valid := s.validIDs()
	events := make([]Event, 0, len(raw))
	for _, ev := range raw {
		if valid != nil {
			if _, ok := valid[ev.LayoutID]; !ok {
				continue
			}
		}
		events = append(events, ev)
	}
	if dropped := len(raw) - len(events); dropped > 0 {
		s.logger.Infof("filtered %d history events with unknown layout ids", dropped)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
	s.events = events
	s.index.Rebuild(events)
	s.pruneSession(valid)
	s.logger.Infof("loaded %d history events", len(events))

	if len(s.events) > s.threshold {
		if err := s.compactLocked(); err != nil {
			s.logger.Errorf("compact history: %v", err)
		}
	}
}

func (s *Store) readEvents() ([]Event, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	r := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		line, readErr := r.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, fmt.Errorf("read %s: %w", s.path, readErr)
		}
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			ev, err := decodeEvent(trimmed)
			if err != nil {
				s.logger.Warnf("skipping invalid history line %d: %v", lineNo, err)
			} else {
				events = append(events, ev)
			}
		}
		if readErr != nil {
			return events, nil
		}
	}
}

func (s *Store) validIDs() map[string]struct{} {
	if s.layouts == nil {
		return nil
	}
	ids := s.layouts.LayoutIDs()
	if ids == nil {
		ids = map[string]struct{}{}
	}
	return ids
}

func (s *Store) pruneSession(valid map[string]struct{}) {
	if valid == nil {
		return
	}
	for id, layoutID := range s.session {
		if _, ok := valid[layoutID]; !ok {
			delete(s.session, id)
		}
	}
}

// SetSelectedLayout records that the window picked layoutID. Windows without
// a class cannot be tracked and are ignored. The session entry for windowID is
// updated even if the log append fails; the durable index only changes once
// the event is on disk.
func (s *Store) SetSelectedLayout(windowID uint64, class, title, layoutID string) {
	if class == "" {
		s.logger.Warnf("window %d has no class, skipping history update", windowID)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session[windowID] = layoutID
	ev := Event{
		Timestamp: s.now().UnixMilli(),
		ClassHash: Hash(class),
		TitleHash: Hash(title),
		LayoutID:  layoutID,
	}
	if err := s.appendEvent(ev); err != nil {
		s.logger.Errorf("append history event: %v", err)
		return
	}
	s.events = append(s.events, ev)
	s.index.Apply(ev)
	s.logger.Debugf("recorded selection window=%d class=%s title=%s -> %s", windowID, ev.ClassHash, ev.TitleHash, layoutID)
}

func (s *Store) appendEvent(ev Event) error {
	line, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("write history file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close history file: %w", err)
	}
	return nil
}

// SelectedLayoutID returns the layout previously chosen for the window.
func (s *Store) SelectedLayoutID(windowID uint64, class, title string) (string, bool) {
	m, ok := s.Lookup(windowID, class, title)
	return m.LayoutID, ok
}

// Lookup checks, in order, this session's choice for the window id, the
// latest choice for the exact class and title, and the newest choice for the
// class.
func (s *Store) Lookup(windowID uint64, class, title string) (Match, bool) {
	if class == "" {
		return Match{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.session[windowID]; ok {
		return Match{LayoutID: id, Source: SourceWindow}, true
	}
	classHash := Hash(class)
	if e, ok := s.index.ByTitle(classHash, Hash(title)); ok {
		return Match{LayoutID: e.LayoutID, Source: SourceTitle}, true
	}
	if e, ok := s.index.ByClass(classHash); ok {
		return Match{LayoutID: e.LayoutID, Source: SourceClass}, true
	}
	return Match{}, false
}

// Candidates lists every remembered layout for the window, best first: the
// session choice when withWindow is set, the class and title choice, then
// the class recency list. Each layout id appears once, under its best source.
func (s *Store) Candidates(windowID uint64, withWindow bool, class, title string) []Match {
	if class == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Match
	seen := make(map[string]struct{})
	add := func(id string, source Source) {
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, Match{LayoutID: id, Source: source})
	}
	if withWindow {
		if id, ok := s.session[windowID]; ok {
			add(id, SourceWindow)
		}
	}
	classHash := Hash(class)
	if e, ok := s.index.ByTitle(classHash, Hash(title)); ok {
		add(e.LayoutID, SourceTitle)
	}
	for _, e := range s.index.ClassEntries(classHash) {
		add(e.LayoutID, SourceClass)
	}
	return out
}

// ClassEntries returns the recency list for a raw window class.
func (s *Store) ClassEntries(class string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.ClassEntries(Hash(class))
}

// Forget drops the session entry for a closed window.
func (s *Store) Forget(windowID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.session, windowID)
}

// Events returns a copy of the loaded events in order.
func (s *Store) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Stats reports the current store size.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Path:     s.path,
		Events:   len(s.events),
		Classes:  s.index.Classes(),
		Titles:   s.index.Titles(),
		Sessions: len(s.session),
	}
}
