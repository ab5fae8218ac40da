package control

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/hyprpal/hyprslot/internal/metrics"
)

const (
	// SocketFileName is the filename of the control socket within the runtime dir.
	SocketFileName = "control.sock"

	// Action names supported by the control protocol.
	ActionLayoutsList        = "layouts.list"
	ActionLayoutApply        = "layout.apply"
	ActionLayoutSuggest      = "layout.suggest"
	ActionHistoryStats       = "history.stats"
	ActionHistoryCompact     = "history.compact"
	ActionMetricsGet         = "metrics.get"
	ActionApplicationsRecent = "applications.recent"
	ActionReload             = "reload"

	// Response statuses.
	StatusOK    = "ok"
	StatusError = "error"
)

// Request represents a control API request.
type Request struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// Response represents a control API response.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// LayoutInfo describes one layout of the catalog.
type LayoutInfo struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Collection string `json:"collection"`
	Group      string `json:"group"`
	Monitor    string `json:"monitor,omitempty"`
	X          string `json:"x"`
	Y          string `json:"y"`
	Width      string `json:"width"`
	Height     string `json:"height"`
}

// LayoutList is the catalog returned by layouts.list.
type LayoutList struct {
	ActiveCollection string       `json:"activeCollection"`
	Layouts          []LayoutInfo `json:"layouts"`
}

// ApplyParams are the parameters of layout.apply.
type ApplyParams struct {
	LayoutID string
	Address  string
	Monitor  string
	Record   bool
	DryRun   bool
}

// Placement is the outcome of layout.apply.
type Placement struct {
	LayoutID string     `json:"layoutId"`
	Address  string     `json:"address"`
	Monitor  string     `json:"monitor"`
	X        float64    `json:"x"`
	Y        float64    `json:"y"`
	Width    float64    `json:"width"`
	Height   float64    `json:"height"`
	Commands [][]string `json:"commands,omitempty"`
	DryRun   bool       `json:"dryRun,omitempty"`
	Recorded bool       `json:"recorded,omitempty"`
}

// Suggestion is the remembered layout for a window.
type Suggestion struct {
	Address  string `json:"address"`
	Class    string `json:"class,omitempty"`
	Found    bool   `json:"found"`
	LayoutID string `json:"layoutId,omitempty"`
	Label    string `json:"label,omitempty"`
	Source   string `json:"source,omitempty"`
}

// HistoryStats summarizes the history log.
type HistoryStats struct {
	Path     string `json:"path"`
	Events   int    `json:"events"`
	Classes  int    `json:"classes"`
	Titles   int    `json:"titles"`
	Sessions int    `json:"sessions"`
}

// CompactResult reports the log size around a compaction.
type CompactResult struct {
	Before int `json:"before"`
	After  int `json:"after"`
}

// MetricsSnapshot mirrors the daemon's counters.
type MetricsSnapshot = metrics.Snapshot

// ApplicationRecord mirrors an entry of the daemon's recent placements log.
type ApplicationRecord struct {
	Timestamp time.Time  `json:"timestamp"`
	LayoutID  string     `json:"layoutId"`
	Address   string     `json:"address"`
	Monitor   string     `json:"monitor,omitempty"`
	Auto      bool       `json:"auto,omitempty"`
	Status    string     `json:"status"`
	Commands  [][]string `json:"commands,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// DefaultSocketPath returns the expected location of the hyprslot control socket.
func DefaultSocketPath() (string, error) {
	if env := os.Getenv("HYPRSLOT_CONTROL_SOCKET"); env != "" {
		return env, nil
	}
	base := os.Getenv("XDG_RUNTIME_DIR")
	if base == "" {
		base = os.TempDir()
		if base == "" {
			return "", errors.New("no runtime directory available")
		}
	}
	return filepath.Join(base, "hyprslot", SocketFileName), nil
}
