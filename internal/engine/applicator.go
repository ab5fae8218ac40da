package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyprpal/hyprslot/internal/layout"
	"github.com/hyprpal/hyprslot/internal/state"
)

var (
	// ErrUnknownLayout is returned when the requested layout id is not in the catalog.
	ErrUnknownLayout = errors.New("unknown layout")
	// ErrWindowNotFound is returned when no target window can be resolved.
	ErrWindowNotFound = errors.New("window not found")
	// ErrMonitorNotFound is returned when the target monitor does not exist.
	ErrMonitorNotFound = errors.New("monitor not found")
)

// placementTolerance is how far, in pixels, a floating window may sit from
// its resolved rect and still count as already placed.
const placementTolerance = 1.0

// Request asks the engine to place a window into a layout slot.
type Request struct {
	// Address targets a window; empty means the active window.
	Address  string `json:"address,omitempty"`
	LayoutID string `json:"layoutId"`
	// Monitor overrides the window's monitor.
	Monitor string `json:"monitor,omitempty"`
	// Record stores the choice in the history log.
	Record bool `json:"record"`
	DryRun bool `json:"dryRun,omitempty"`
}

// Result describes a placement that was applied or previewed.
type Result struct {
	LayoutID string      `json:"layoutId"`
	Address  string      `json:"address"`
	Monitor  string      `json:"monitor"`
	Rect     layout.Rect `json:"rect"`
	Commands [][]string  `json:"commands"`
	DryRun   bool        `json:"dryRun,omitempty"`
	Recorded bool        `json:"recorded,omitempty"`
}

// Apply resolves the layout against the target window's monitor and moves
// the window there. Selections made by the user are recorded in history
// before the window is moved.
func (e *Engine) Apply(ctx context.Context, req Request) (Result, error) {
	return e.apply(ctx, req, false)
}

func (e *Engine) apply(ctx context.Context, req Request, auto bool) (Result, error) {
	slot, ok := e.slot(req.LayoutID)
	if !ok {
		return Result{}, fmt.Errorf("%w %q", ErrUnknownLayout, req.LayoutID)
	}
	world, err := state.NewWorld(ctx, e.hyprctl)
	if err != nil {
		return Result{}, fmt.Errorf("snapshot world: %w", err)
	}

	client := world.ActiveClient()
	if req.Address != "" {
		client = world.FindClient(req.Address)
	}
	if client == nil {
		target := req.Address
		if target == "" {
			target = "active window"
		}
		e.logger.Warnf("cannot apply layout %s: %s not found", slot.ID, target)
		return Result{}, fmt.Errorf("%w: %s", ErrWindowNotFound, target)
	}

	mon, err := resolveMonitor(world, client, slot, req.Monitor)
	if err != nil {
		e.logger.Warnf("cannot apply layout %s to %s: %v", slot.ID, client.Address, err)
		return Result{}, err
	}
	workArea := e.monitorInsets(*mon).ShrinkRect(mon.Rectangle)
	rect, err := slot.Resolve(workArea)
	if err != nil {
		e.metrics.RecordParseFailure()
		e.metrics.RecordError(slot.ID)
		e.recordApplication(ApplicationRecord{LayoutID: slot.ID, Address: client.Address, Monitor: mon.Name, Auto: auto, Status: ApplicationStatusError, Error: err.Error()})
		return Result{}, fmt.Errorf("resolve layout: %w", err)
	}

	plan := placementPlan(client, rect)
	result := Result{
		LayoutID: slot.ID,
		Address:  client.Address,
		Monitor:  mon.Name,
		Rect:     rect,
		Commands: cloneCommands(plan.Commands),
		DryRun:   req.DryRun || e.dryRunEnabled(),
	}
	if plan.Empty() {
		e.logger.Debugf("window %s already sits in layout %s", client.Address, slot.ID)
	}
	e.trace("layout.resolved", map[string]any{
		"layout":   slot.ID,
		"address":  client.Address,
		"class":    client.Class,
		"title":    e.loggableTitle(client.Title),
		"monitor":  mon.Name,
		"workArea": workArea,
		"rect":     rect,
		"auto":     auto,
	})

	if result.DryRun {
		for _, cmd := range plan.Commands {
			e.trace("dispatch.result", map[string]any{"status": "dry-run", "command": cmd})
		}
		e.metrics.RecordApplied(slot.ID, auto, true)
		e.recordApplication(ApplicationRecord{LayoutID: slot.ID, Address: client.Address, Monitor: mon.Name, Auto: auto, Status: ApplicationStatusDryRun, Commands: plan.Commands})
		return result, nil
	}

	if req.Record {
		result.Recorded = e.recordSelection(client, slot.ID)
	}
	if err := plan.Execute(e.hyprctl); err != nil {
		e.metrics.RecordError(slot.ID)
		e.recordApplication(ApplicationRecord{LayoutID: slot.ID, Address: client.Address, Monitor: mon.Name, Auto: auto, Status: ApplicationStatusError, Commands: plan.Commands, Error: err.Error()})
		return result, fmt.Errorf("place window %s: %w", client.Address, err)
	}
	e.metrics.RecordApplied(slot.ID, auto, false)
	e.recordApplication(ApplicationRecord{LayoutID: slot.ID, Address: client.Address, Monitor: mon.Name, Auto: auto, Status: ApplicationStatusApplied, Commands: plan.Commands})
	e.logger.Infof("applied layout %s to %s on %s", slot.ID, client.Address, mon.Name)
	return result, nil
}

// resolveMonitor picks the explicit monitor, then the layout's monitor
// restriction, then the monitor the window is on, then the focused monitor.
func resolveMonitor(world *state.World, client *state.Client, slot layout.Slot, requested string) (*state.Monitor, error) {
	name := requested
	if name == "" {
		name = slot.Monitor
	}
	if name == "" {
		mon := world.MonitorForClient(client)
		if mon == nil {
			mon = world.FocusedMonitor()
		}
		if mon == nil {
			return nil, fmt.Errorf("%w for window %s", ErrMonitorNotFound, client.Address)
		}
		return mon, nil
	}
	if slot.Monitor != "" && name != slot.Monitor {
		return nil, fmt.Errorf("layout %q is restricted to monitor %s", slot.ID, slot.Monitor)
	}
	mon := world.MonitorByName(name)
	if mon == nil {
		return nil, fmt.Errorf("%w: %s", ErrMonitorNotFound, name)
	}
	return mon, nil
}

// monitorInsets prefers a manual override for the monitor, then the "*"
// override, then what Hyprland reports.
func (e *Engine) monitorInsets(mon state.Monitor) layout.Insets {
	e.mu.Lock()
	manual := e.manualReserved
	e.mu.Unlock()
	if override, ok := manual[mon.Name]; ok {
		return override
	}
	if wildcard, ok := manual["*"]; ok {
		return wildcard
	}
	return mon.Reserved
}

func placementPlan(client *state.Client, rect layout.Rect) layout.Plan {
	var plan layout.Plan
	if client.Floating && !client.Fullscreen() && layout.ApproximatelyEqual(client.Geometry, rect, placementTolerance) {
		return plan
	}
	if client.Fullscreen() {
		plan.Merge(layout.Unmaximize(client.Address))
	}
	plan.Merge(layout.FloatAndPlace(client.Address, rect, client.Floating))
	return plan
}

// recordSelection stores the choice in history. Windows without a class
// still get placed but cannot be remembered.
func (e *Engine) recordSelection(client *state.Client, layoutID string) bool {
	if e.history == nil {
		return false
	}
	if client.Class == "" {
		e.logger.Infof("window %s has no class, not recording layout %s", client.Address, layoutID)
		return false
	}
	windowID, err := client.WindowID()
	if err != nil {
		e.logger.Warnf("not recording layout %s: %v", layoutID, err)
		return false
	}
	e.history.SetSelectedLayout(windowID, client.Class, client.Title, layoutID)
	return true
}

func (e *Engine) recordApplication(record ApplicationRecord) {
	record.Timestamp = time.Now()
	e.applications.record(record)
}
