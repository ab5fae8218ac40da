package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hyprpal/hyprslot/internal/layout"
)

// Client describes a Hyprland client window.
type Client struct {
	Address        string
	Class          string
	Title          string
	WorkspaceID    int
	MonitorName    string
	Floating       bool
	Geometry       layout.Rect
	Focused        bool
	FullscreenMode int
}

// WindowID parses the hexadecimal Hyprland address ("0x55d1c3a0") into the
// numeric id used for per-window history.
func (c Client) WindowID() (uint64, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(c.Address, "0x"), "0X")
	if raw == "" {
		return 0, fmt.Errorf("client has no address")
	}
	id, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse address %q: %w", c.Address, err)
	}
	return id, nil
}

// Fullscreen reports whether the client is maximized or fullscreen.
func (c Client) Fullscreen() bool {
	return c.FullscreenMode != 0
}

// Workspace describes a Hyprland workspace.
type Workspace struct {
	ID          int
	Name        string
	MonitorName string
	Windows     int
}

// Monitor describes a monitor, its logical size and the space bars reserve on it.
type Monitor struct {
	ID                 int
	Name               string
	Rectangle          layout.Rect
	Reserved           layout.Insets
	Focused            bool
	ActiveWorkspaceID  int
	FocusedWorkspaceID int
}

// WorkArea returns the monitor rectangle minus reserved space.
func (m Monitor) WorkArea() layout.Rect {
	return m.Reserved.ShrinkRect(m.Rectangle)
}

// World represents the current snapshot of Hyprland.
type World struct {
	Clients             []Client
	Workspaces          []Workspace
	Monitors            []Monitor
	ActiveWorkspaceID   int
	ActiveClientAddress string
}

// DataSource abstracts queries required to build the world snapshot.
type DataSource interface {
	ListClients(ctx context.Context) ([]Client, error)
	ListWorkspaces(ctx context.Context) ([]Workspace, error)
	ListMonitors(ctx context.Context) ([]Monitor, error)
	ActiveWorkspaceID(ctx context.Context) (int, error)
	ActiveClientAddress(ctx context.Context) (string, error)
}

// NewWorld creates a world snapshot using the provided data source.
func NewWorld(ctx context.Context, src DataSource) (*World, error) {
	clients, err := src.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	workspaces, err := src.ListWorkspaces(ctx)
	if err != nil {
		return nil, err
	}
	monitors, err := src.ListMonitors(ctx)
	if err != nil {
		return nil, err
	}
	activeWS, err := src.ActiveWorkspaceID(ctx)
	if err != nil {
		return nil, err
	}
	activeClient, err := src.ActiveClientAddress(ctx)
	if err != nil {
		return nil, err
	}
	world := &World{
		Clients:             clients,
		Workspaces:          workspaces,
		Monitors:            monitors,
		ActiveWorkspaceID:   activeWS,
		ActiveClientAddress: activeClient,
	}
	workspaceMonitor := make(map[int]string)
	for _, ws := range workspaces {
		workspaceMonitor[ws.ID] = ws.MonitorName
	}
	for i := range world.Clients {
		c := &world.Clients[i]
		if c.MonitorName == "" {
			if name, ok := workspaceMonitor[c.WorkspaceID]; ok {
				c.MonitorName = name
			}
		}
	}
	return world, nil
}

// FindClient returns the client with address, or nil.
func (w *World) FindClient(address string) *Client {
	for i := range w.Clients {
		if w.Clients[i].Address == address {
			return &w.Clients[i]
		}
	}
	return nil
}

// ActiveClient returns the active client if present.
func (w *World) ActiveClient() *Client {
	if w.ActiveClientAddress == "" {
		return nil
	}
	return w.FindClient(w.ActiveClientAddress)
}

// MonitorByName finds a monitor by name.
func (w *World) MonitorByName(name string) *Monitor {
	for i := range w.Monitors {
		if w.Monitors[i].Name == name {
			return &w.Monitors[i]
		}
	}
	return nil
}

// WorkspaceByID finds workspace by ID.
func (w *World) WorkspaceByID(id int) *Workspace {
	for i := range w.Workspaces {
		if w.Workspaces[i].ID == id {
			return &w.Workspaces[i]
		}
	}
	return nil
}

// MonitorForWorkspace resolves the monitor owning the workspace ID.
func (w *World) MonitorForWorkspace(id int) (*Monitor, error) {
	ws := w.WorkspaceByID(id)
	if ws == nil {
		return nil, errors.New("workspace not found")
	}
	mon := w.MonitorByName(ws.MonitorName)
	if mon == nil {
		return nil, errors.New("monitor not found for workspace")
	}
	return mon, nil
}

// MonitorForClient resolves the monitor showing the client: its own monitor
// name, then its workspace's monitor, then the monitor containing the
// window center.
func (w *World) MonitorForClient(c *Client) *Monitor {
	if c == nil {
		return nil
	}
	if mon := w.MonitorByName(c.MonitorName); mon != nil {
		return mon
	}
	if mon, err := w.MonitorForWorkspace(c.WorkspaceID); err == nil {
		return mon
	}
	cx, cy := c.Geometry.Center()
	for i := range w.Monitors {
		if w.Monitors[i].Rectangle.Contains(cx, cy) {
			return &w.Monitors[i]
		}
	}
	return nil
}

// FocusedMonitor returns the focused monitor, or the first one.
func (w *World) FocusedMonitor() *Monitor {
	for i := range w.Monitors {
		if w.Monitors[i].Focused {
			return &w.Monitors[i]
		}
	}
	if len(w.Monitors) > 0 {
		return &w.Monitors[0]
	}
	return nil
}
