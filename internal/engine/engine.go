package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hyprpal/hyprslot/internal/config"
	"github.com/hyprpal/hyprslot/internal/history"
	"github.com/hyprpal/hyprslot/internal/ipc"
	"github.com/hyprpal/hyprslot/internal/layout"
	"github.com/hyprpal/hyprslot/internal/metrics"
	"github.com/hyprpal/hyprslot/internal/state"
	"github.com/hyprpal/hyprslot/internal/util"
)

type hyprctlClient interface {
	state.DataSource
	layout.Dispatcher
}

type subscribeFunc func(ctx context.Context, logger *util.Logger) (<-chan ipc.Event, error)

// Engine owns the layout catalog and places windows into its slots, either
// on request or automatically when a remembered window opens.
type Engine struct {
	hyprctl hyprctlClient
	logger  *util.Logger
	history *history.Store
	metrics *metrics.Collector

	mu               sync.Mutex
	slots            map[string]layout.Slot
	order            []string
	activeCollection string
	autoApply        bool
	dryRun           bool
	redactTitles     bool
	manualReserved   map[string]layout.Insets

	applications *applicationLog
	subscribe    subscribeFunc
}

// Suggestion is the history answer for a window.
type Suggestion struct {
	Address  string         `json:"address"`
	Class    string         `json:"class,omitempty"`
	Found    bool           `json:"found"`
	LayoutID string         `json:"layoutId,omitempty"`
	Label    string         `json:"label,omitempty"`
	Source   history.Source `json:"source,omitempty"`
}

// Catalog lists the known slots in declaration order.
type Catalog struct {
	ActiveCollection string        `json:"activeCollection"`
	Slots            []layout.Slot `json:"slots"`
}

// New creates an engine. The history store and metrics collector may be nil.
func New(hyprctl hyprctlClient, logger *util.Logger, store *history.Store, collector *metrics.Collector, dryRun bool) *Engine {
	return &Engine{
		hyprctl:      hyprctl,
		logger:       logger,
		history:      store,
		metrics:      collector,
		slots:        make(map[string]layout.Slot),
		dryRun:       dryRun,
		applications: newApplicationLog(0),
		subscribe:    ipc.Subscribe,
	}
}

// Configure applies every runtime setting carried by cfg.
func (e *Engine) Configure(cfg *config.Config) {
	e.ReloadSlots(cfg.Slots(), cfg.ActiveCollection)
	e.SetManualReserved(cfg.ManualReserved)
	e.mu.Lock()
	e.autoApply = cfg.AutoApply
	e.redactTitles = cfg.RedactTitles
	e.mu.Unlock()
}

// ReloadSlots replaces the layout catalog.
func (e *Engine) ReloadSlots(slots []layout.Slot, activeCollection string) {
	byID := make(map[string]layout.Slot, len(slots))
	order := make([]string, 0, len(slots))
	for _, s := range slots {
		if _, dup := byID[s.ID]; dup {
			continue
		}
		byID[s.ID] = s
		order = append(order, s.ID)
	}
	e.mu.Lock()
	e.slots = byID
	e.order = order
	e.activeCollection = activeCollection
	e.mu.Unlock()
	e.logger.Infof("loaded %d layouts (active collection %q)", len(order), activeCollection)
}

// SetManualReserved replaces the manual monitor insets map.
func (e *Engine) SetManualReserved(manual map[string]layout.Insets) {
	cloned := make(map[string]layout.Insets, len(manual))
	for k, v := range manual {
		cloned[k] = v
	}
	e.mu.Lock()
	e.manualReserved = cloned
	e.mu.Unlock()
}

// SetAutoApply toggles automatic placement of reopened windows.
func (e *Engine) SetAutoApply(enabled bool) {
	e.mu.Lock()
	e.autoApply = enabled
	e.mu.Unlock()
}

// Catalog returns the slots in declaration order.
func (e *Engine) Catalog() Catalog {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := Catalog{ActiveCollection: e.activeCollection, Slots: make([]layout.Slot, 0, len(e.order))}
	for _, id := range e.order {
		out.Slots = append(out.Slots, e.slots[id])
	}
	return out
}

// LayoutIDs reports the ids of the loaded catalog.
func (e *Engine) LayoutIDs() map[string]struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make(map[string]struct{}, len(e.slots))
	for id := range e.slots {
		ids[id] = struct{}{}
	}
	return ids
}

// RecentApplications returns the most recent placements, oldest first.
func (e *Engine) RecentApplications() []ApplicationRecord {
	return e.applications.snapshot()
}

func (e *Engine) slot(id string) (layout.Slot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.slots[id]
	return s, ok
}

func (e *Engine) dryRunEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dryRun
}

func (e *Engine) autoApplyEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.autoApply
}

// Suggest looks up the remembered layout for a window (the active window
// when address is empty). Ids no longer in the catalog are not suggested.
func (e *Engine) Suggest(ctx context.Context, address string) (Suggestion, error) {
	world, err := state.NewWorld(ctx, e.hyprctl)
	if err != nil {
		return Suggestion{}, fmt.Errorf("snapshot world: %w", err)
	}
	client := world.ActiveClient()
	if address != "" {
		client = world.FindClient(address)
	}
	if client == nil {
		if address == "" {
			address = "active window"
		}
		return Suggestion{}, fmt.Errorf("%w: %s", ErrWindowNotFound, address)
	}
	windowID, err := client.WindowID()
	if err != nil {
		e.logger.Debugf("skipping session history for %s: %v", client.Address, err)
	}
	return e.suggest(windowID, err == nil, client.Address, client.Class, client.Title), nil
}

// suggest returns the best remembered layout that is still in the catalog.
// A stale session or title entry falls through to the class recency list.
func (e *Engine) suggest(windowID uint64, withWindow bool, address, class, title string) Suggestion {
	out := Suggestion{Address: address, Class: class}
	if e.history == nil {
		return out
	}
	for _, match := range e.history.Candidates(windowID, withWindow, class, title) {
		slot, known := e.slot(match.LayoutID)
		if !known {
			e.logger.Debugf("history suggests unknown layout %s for %s", match.LayoutID, address)
			continue
		}
		e.metrics.RecordLookup(string(match.Source))
		out.Found = true
		out.LayoutID = slot.ID
		out.Label = slot.Label
		out.Source = match.Source
		return out
	}
	e.metrics.RecordLookup("")
	return out
}

// Run consumes Hyprland events until context cancellation.
func (e *Engine) Run(ctx context.Context) error {
	events, err := e.subscribeEvents(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("event stream closed")
			}
			e.trace("event.received", map[string]any{
				"kind":    ev.Kind,
				"payload": e.loggablePayload(ev),
			})
			if err := e.handleEvent(ctx, ev); err != nil {
				e.logger.Errorf("handle %s: %v", ev.Kind, err)
			}
		}
	}
}

func (e *Engine) subscribeEvents(ctx context.Context) (<-chan ipc.Event, error) {
	if e.subscribe != nil {
		return e.subscribe(ctx, e.logger)
	}
	return ipc.Subscribe(ctx, e.logger)
}

func (e *Engine) handleEvent(ctx context.Context, ev ipc.Event) error {
	switch ev.Kind {
	case ipc.EventOpenWindow:
		if !e.autoApplyEnabled() {
			return nil
		}
		win, err := ev.Window()
		if err != nil {
			return err
		}
		return e.autoPlace(ctx, win)
	case ipc.EventCloseWindow:
		win, err := ev.Window()
		if err != nil {
			return err
		}
		windowID, err := state.Client{Address: win.Address}.WindowID()
		if err != nil {
			return err
		}
		if e.history != nil {
			e.history.Forget(windowID)
		}
		return nil
	default:
		return nil
	}
}

// autoPlace moves a newly opened window into its remembered layout. The
// placement is not recorded again.
func (e *Engine) autoPlace(ctx context.Context, win ipc.WindowEvent) error {
	if win.Class == "" {
		return nil
	}
	windowID, err := state.Client{Address: win.Address}.WindowID()
	if err != nil {
		return err
	}
	suggestion := e.suggest(windowID, true, win.Address, win.Class, win.Title)
	if !suggestion.Found {
		return nil
	}
	e.logger.Debugf("auto-applying layout %s (%s match) to %s", suggestion.LayoutID, suggestion.Source, win.Address)
	_, err = e.apply(ctx, Request{Address: win.Address, LayoutID: suggestion.LayoutID}, true)
	return err
}

func (e *Engine) trace(event string, fields map[string]any) {
	if e.logger == nil || e.logger.Level() > util.LevelTrace {
		return
	}
	e.logger.Tracef("%s %s", event, formatTraceFields(fields))
}

const redactedTitle = "[redacted]"

func (e *Engine) redactTitlesEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.redactTitles
}

func (e *Engine) loggableTitle(title string) string {
	if title != "" && e.redactTitlesEnabled() {
		return redactedTitle
	}
	return title
}

// loggablePayload hides window titles carried by openwindow events.
func (e *Engine) loggablePayload(ev ipc.Event) string {
	if ev.Kind != ipc.EventOpenWindow || !e.redactTitlesEnabled() {
		return ev.Payload
	}
	parts := strings.SplitN(ev.Payload, ",", 4)
	if len(parts) == 4 && parts[3] != "" {
		parts[3] = redactedTitle
	}
	return strings.Join(parts, ",")
}

func formatTraceFields(fields map[string]any) string {
	if len(fields) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte(':')
		val, err := json.Marshal(fields[k])
		if err != nil {
			b.WriteString(strconv.Quote(fmt.Sprintf("<marshal error: %v>", err)))
			continue
		}
		b.Write(val)
	}
	b.WriteByte('}')
	return b.String()
}
