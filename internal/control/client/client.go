package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hyprpal/hyprslot/internal/control"
)

const (
	// defaultTimeout is used when the caller does not provide a context deadline.
	defaultTimeout = 3 * time.Second
)

// Client talks to the running hyprslot daemon over its control socket.
type Client struct {
	socketPath string
}

type (
	// LayoutList is the daemon's layout catalog.
	LayoutList = control.LayoutList
	// ApplyParams selects the layout, window and options for Apply.
	ApplyParams = control.ApplyParams
	// Placement describes a window placement applied or previewed by the daemon.
	Placement = control.Placement
	// Suggestion is the remembered layout for a window.
	Suggestion = control.Suggestion
	// HistoryStats summarizes the daemon's history log.
	HistoryStats = control.HistoryStats
	// CompactResult reports the log size around a compaction.
	CompactResult = control.CompactResult
	// MetricsSnapshot mirrors the daemon's counters.
	MetricsSnapshot = control.MetricsSnapshot
	// ApplicationRecord mirrors a recent placement.
	ApplicationRecord = control.ApplicationRecord
)

// New creates a client that connects to the provided socket path. When path is
// empty, the default runtime path is used.
func New(path string) (*Client, error) {
	if path == "" {
		var err error
		path, err = control.DefaultSocketPath()
		if err != nil {
			return nil, err
		}
	}
	return &Client{socketPath: path}, nil
}

// Layouts retrieves the loaded layout catalog.
func (c *Client) Layouts(ctx context.Context) (LayoutList, error) {
	var list LayoutList
	if err := c.do(ctx, control.Request{Action: control.ActionLayoutsList}, &list); err != nil {
		return LayoutList{}, err
	}
	return list, nil
}

// Apply places a window into a layout.
func (c *Client) Apply(ctx context.Context, p ApplyParams) (Placement, error) {
	if p.LayoutID == "" {
		return Placement{}, errors.New("layout id cannot be empty")
	}
	params := map[string]any{
		"layoutId": p.LayoutID,
		"record":   p.Record,
		"dryRun":   p.DryRun,
	}
	if p.Address != "" {
		params["address"] = p.Address
	}
	if p.Monitor != "" {
		params["monitor"] = p.Monitor
	}
	var placement Placement
	if err := c.do(ctx, control.Request{Action: control.ActionLayoutApply, Params: params}, &placement); err != nil {
		return Placement{}, err
	}
	return placement, nil
}

// Suggest asks which layout the daemon remembers for a window. An empty
// address means the active window.
func (c *Client) Suggest(ctx context.Context, address string) (Suggestion, error) {
	var params map[string]any
	if address != "" {
		params = map[string]any{"address": address}
	}
	var suggestion Suggestion
	if err := c.do(ctx, control.Request{Action: control.ActionLayoutSuggest, Params: params}, &suggestion); err != nil {
		return Suggestion{}, err
	}
	return suggestion, nil
}

// HistoryStats retrieves the size of the history log.
func (c *Client) HistoryStats(ctx context.Context) (HistoryStats, error) {
	var stats HistoryStats
	if err := c.do(ctx, control.Request{Action: control.ActionHistoryStats}, &stats); err != nil {
		return HistoryStats{}, err
	}
	return stats, nil
}

// CompactHistory asks the daemon to rewrite its history log.
func (c *Client) CompactHistory(ctx context.Context) (CompactResult, error) {
	var result CompactResult
	if err := c.do(ctx, control.Request{Action: control.ActionHistoryCompact}, &result); err != nil {
		return CompactResult{}, err
	}
	return result, nil
}

// Metrics retrieves the daemon's counters.
func (c *Client) Metrics(ctx context.Context) (MetricsSnapshot, error) {
	var snapshot MetricsSnapshot
	if err := c.do(ctx, control.Request{Action: control.ActionMetricsGet}, &snapshot); err != nil {
		return MetricsSnapshot{}, err
	}
	return snapshot, nil
}

// Recent retrieves the most recent placements, oldest first.
func (c *Client) Recent(ctx context.Context) ([]ApplicationRecord, error) {
	var records []ApplicationRecord
	if err := c.do(ctx, control.Request{Action: control.ActionApplicationsRecent}, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Reload asks the daemon to reload its configuration.
func (c *Client) Reload(ctx context.Context) error {
	return c.do(ctx, control.Request{Action: control.ActionReload}, nil)
}

func (c *Client) do(ctx context.Context, req control.Request, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("dial control socket: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	var resp control.Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != control.StatusOK {
		if resp.Error == "" {
			resp.Error = "unknown control error"
		}
		return errors.New(resp.Error)
	}
	if out == nil || resp.Data == nil {
		return nil
	}
	data, err := json.Marshal(resp.Data)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
