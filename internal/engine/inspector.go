package engine

import (
	"sync"
	"time"
)

type ApplicationStatus string

const (
	ApplicationStatusApplied ApplicationStatus = "applied"
	ApplicationStatusDryRun  ApplicationStatus = "dry-run"
	ApplicationStatusError   ApplicationStatus = "error"

	inspectorHistoryLimit = 128
)

// ApplicationRecord is one entry of the recent placements log.
type ApplicationRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	LayoutID  string            `json:"layoutId"`
	Address   string            `json:"address"`
	Monitor   string            `json:"monitor,omitempty"`
	Auto      bool              `json:"auto,omitempty"`
	Status    ApplicationStatus `json:"status"`
	Commands  [][]string        `json:"commands,omitempty"`
	Error     string            `json:"error,omitempty"`
}

type applicationLog struct {
	mu      sync.Mutex
	entries []ApplicationRecord
	limit   int
}

func newApplicationLog(limit int) *applicationLog {
	if limit <= 0 {
		limit = inspectorHistoryLimit
	}
	return &applicationLog{limit: limit}
}

func (l *applicationLog) record(entry ApplicationRecord) {
	if l == nil {
		return
	}
	entry.Commands = cloneCommands(entry.Commands)
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == l.limit {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:l.limit-1]
	}
	l.entries = append(l.entries, entry)
}

func (l *applicationLog) snapshot() []ApplicationRecord {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return nil
	}
	out := make([]ApplicationRecord, len(l.entries))
	for i, entry := range l.entries {
		out[i] = entry
		out[i].Commands = cloneCommands(entry.Commands)
	}
	return out
}

func cloneCommands(src [][]string) [][]string {
	if len(src) == 0 {
		return nil
	}
	out := make([][]string, len(src))
	for i, cmd := range src {
		out[i] = append([]string(nil), cmd...)
	}
	return out
}
