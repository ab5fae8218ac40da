package engine

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hyprpal/hyprslot/internal/config"
	"github.com/hyprpal/hyprslot/internal/history"
	"github.com/hyprpal/hyprslot/internal/ipc"
	"github.com/hyprpal/hyprslot/internal/layout"
	"github.com/hyprpal/hyprslot/internal/metrics"
	"github.com/hyprpal/hyprslot/internal/state"
	"github.com/hyprpal/hyprslot/internal/util"
)

type fakeHyprctl struct {
	mu           sync.Mutex
	clients      []state.Client
	workspaces   []state.Workspace
	monitors     []state.Monitor
	activeClient string
	dispatched   [][]string
	dispatchErr  error
}

type batchHyprctl struct {
	*fakeHyprctl
	batchCalls int
}

func (f *fakeHyprctl) ListClients(context.Context) ([]state.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]state.Client(nil), f.clients...), nil
}

func (f *fakeHyprctl) ListWorkspaces(context.Context) ([]state.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]state.Workspace(nil), f.workspaces...), nil
}

func (f *fakeHyprctl) ListMonitors(context.Context) ([]state.Monitor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]state.Monitor(nil), f.monitors...), nil
}

func (f *fakeHyprctl) ActiveWorkspaceID(context.Context) (int, error) {
	return 1, nil
}

func (f *fakeHyprctl) ActiveClientAddress(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeClient, nil
}

func (f *fakeHyprctl) Dispatch(args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dispatchErr != nil {
		return f.dispatchErr
	}
	f.dispatched = append(f.dispatched, append([]string(nil), args...))
	return nil
}

func (f *fakeHyprctl) commands() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.dispatched...)
}

func (b *batchHyprctl) DispatchBatch(commands [][]string) error {
	b.batchCalls++
	for _, cmd := range commands {
		if err := b.fakeHyprctl.Dispatch(cmd...); err != nil {
			return err
		}
	}
	return nil
}

func waitForCondition(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func newFakeWorld() *fakeHyprctl {
	return &fakeHyprctl{
		clients: []state.Client{
			{Address: "0x1a", Class: "kitty", Title: "shell", WorkspaceID: 1, MonitorName: "DP-1"},
			{Address: "0x2b", Class: "kitty", Title: "shell", WorkspaceID: 1, MonitorName: "DP-1"},
			{Address: "0x3c", Class: "", Title: "splash", WorkspaceID: 2, Floating: true},
			{Address: "0x4d", Class: "mpv", Title: "movie", WorkspaceID: 1, MonitorName: "DP-1", FullscreenMode: 2},
		},
		workspaces: []state.Workspace{{ID: 1, MonitorName: "DP-1"}, {ID: 2, MonitorName: "HDMI-A-1"}},
		monitors: []state.Monitor{
			{Name: "DP-1", Rectangle: layout.Rect{Width: 1920, Height: 1080}, Reserved: layout.Insets{Top: 30}, Focused: true},
			{Name: "HDMI-A-1", Rectangle: layout.Rect{X: 1920, Width: 2560, Height: 1440}},
		},
		activeClient: "0x1a",
	}
}

func testSlots() []layout.Slot {
	return []layout.Slot{
		{ID: "left-half", Label: "Left", Collection: "Default", Group: "Halves", X: "0", Y: "0", Width: "50%", Height: "100%"},
		{ID: "center", Label: "Center", Collection: "Default", Group: "Halves", X: "1/4", Y: "10px", Width: "50%", Height: "100% - 20px"},
		{ID: "wide", Label: "Wide", Collection: "Default", Group: "Wide", Monitor: "HDMI-A-1", X: "0", Y: "0", Width: "100%", Height: "100%"},
		{ID: "broken", Label: "Broken", Collection: "Default", Group: "Halves", X: "0", Y: "0", Width: "1/0", Height: "100%"},
	}
}

func newTestEngine(t *testing.T, hypr hyprctlClient) (*Engine, *history.Store, *metrics.Collector) {
	t.Helper()
	store := history.New(history.Options{
		Path:   filepath.Join(t.TempDir(), "history.jsonl"),
		Logger: util.Discard(),
	})
	collector := metrics.NewCollector(true)
	eng := New(hypr, util.Discard(), store, collector, false)
	eng.ReloadSlots(testSlots(), "Default")
	return eng, store, collector
}

func TestApplyPlacesActiveWindowInsideWorkArea(t *testing.T) {
	hypr := newFakeWorld()
	eng, _, collector := newTestEngine(t, hypr)

	result, err := eng.Apply(context.Background(), Request{LayoutID: "left-half"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := [][]string{
		{"setfloating", "address:0x1a"},
		{"focuswindow", "address:0x1a"},
		{"movewindowpixel", "exact", "0", "30,address:0x1a"},
		{"resizewindowpixel", "exact", "960", "1050,address:0x1a"},
	}
	if diff := cmp.Diff(want, hypr.commands()); diff != "" {
		t.Fatalf("unexpected dispatches (-want +got):\n%s", diff)
	}
	if result.Monitor != "DP-1" || result.Rect != (layout.Rect{X: 0, Y: 30, Width: 960, Height: 1050}) {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Recorded {
		t.Fatalf("apply without Record must not touch history")
	}
	if snap := collector.Snapshot(); snap.Totals.Applied != 1 {
		t.Fatalf("expected one applied placement, got %+v", snap.Totals)
	}
	recent := eng.RecentApplications()
	if len(recent) != 1 || recent[0].Status != ApplicationStatusApplied {
		t.Fatalf("unexpected recent applications %+v", recent)
	}
}

func TestApplyMixedExpressionAndManualInsets(t *testing.T) {
	hypr := newFakeWorld()
	eng, _, _ := newTestEngine(t, hypr)
	eng.SetManualReserved(map[string]layout.Insets{"*": {Top: 40, Left: 20}})

	result, err := eng.Apply(context.Background(), Request{Address: "0x2b", LayoutID: "center"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// Work area is 20,40 1900x1040.
	want := layout.Rect{X: 20 + 475, Y: 40 + 10, Width: 950, Height: 1020}
	if result.Rect != want {
		t.Fatalf("got %+v want %+v", result.Rect, want)
	}
}

func TestApplyRecordsSelection(t *testing.T) {
	hypr := newFakeWorld()
	eng, store, _ := newTestEngine(t, hypr)

	result, err := eng.Apply(context.Background(), Request{Address: "0x1a", LayoutID: "center", Record: true})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !result.Recorded {
		t.Fatalf("expected selection to be recorded")
	}
	m, ok := store.Lookup(0x1a, "kitty", "shell")
	if !ok || m.LayoutID != "center" || m.Source != history.SourceWindow {
		t.Fatalf("unexpected lookup %+v ok=%v", m, ok)
	}
	m, ok = store.Lookup(0x2b, "kitty", "shell")
	if !ok || m.LayoutID != "center" || m.Source != history.SourceTitle {
		t.Fatalf("other windows should see the title entry, got %+v ok=%v", m, ok)
	}
}

func TestApplyWithoutClassStillPlaces(t *testing.T) {
	hypr := newFakeWorld()
	eng, store, _ := newTestEngine(t, hypr)

	result, err := eng.Apply(context.Background(), Request{Address: "0x3c", LayoutID: "wide", Record: true})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Recorded || store.Stats().Events != 0 || store.Stats().Sessions != 0 {
		t.Fatalf("classless window must not reach history: %+v %+v", result, store.Stats())
	}
	// Already floating: no setfloating, placed on its workspace monitor.
	want := [][]string{
		{"focuswindow", "address:0x3c"},
		{"movewindowpixel", "exact", "1920", "0,address:0x3c"},
		{"resizewindowpixel", "exact", "2560", "1440,address:0x3c"},
	}
	if diff := cmp.Diff(want, hypr.commands()); diff != "" {
		t.Fatalf("unexpected dispatches (-want +got):\n%s", diff)
	}
}

func TestApplyLeavesFullscreenFirst(t *testing.T) {
	hypr := newFakeWorld()
	eng, _, _ := newTestEngine(t, hypr)

	if _, err := eng.Apply(context.Background(), Request{Address: "0x4d", LayoutID: "left-half"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	cmds := hypr.commands()
	if len(cmds) != 6 {
		t.Fatalf("expected 6 dispatches, got %v", cmds)
	}
	if diff := cmp.Diff([]string{"fullscreenstate", "0", "0"}, cmds[1]); diff != "" {
		t.Fatalf("expected fullscreen to be cleared first (-want +got):\n%s", diff)
	}
}

func TestApplyAbandonsWithoutTarget(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		mutate  func(*fakeHyprctl)
		wantErr error
	}{
		{name: "unknown layout", req: Request{LayoutID: "nope", Record: true}, wantErr: ErrUnknownLayout},
		{name: "missing window", req: Request{Address: "0xdead", LayoutID: "left-half", Record: true}, wantErr: ErrWindowNotFound},
		{name: "no active window", req: Request{LayoutID: "left-half", Record: true}, mutate: func(f *fakeHyprctl) { f.activeClient = "" }, wantErr: ErrWindowNotFound},
		{name: "unknown monitor", req: Request{LayoutID: "left-half", Monitor: "eDP-9", Record: true}, wantErr: ErrMonitorNotFound},
		{name: "monitor mismatch", req: Request{LayoutID: "wide", Monitor: "DP-1", Record: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hypr := newFakeWorld()
			if tt.mutate != nil {
				tt.mutate(hypr)
			}
			eng, store, _ := newTestEngine(t, hypr)
			_, err := eng.Apply(context.Background(), tt.req)
			if err == nil {
				t.Fatalf("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if len(hypr.commands()) != 0 {
				t.Fatalf("abandoned call dispatched %v", hypr.commands())
			}
			if store.Stats().Events != 0 || store.Stats().Sessions != 0 {
				t.Fatalf("abandoned call touched history: %+v", store.Stats())
			}
		})
	}
}

func TestApplyParseFailure(t *testing.T) {
	hypr := newFakeWorld()
	eng, _, collector := newTestEngine(t, hypr)

	_, err := eng.Apply(context.Background(), Request{LayoutID: "broken"})
	if err == nil || !strings.Contains(err.Error(), "width") {
		t.Fatalf("expected width parse error, got %v", err)
	}
	if snap := collector.Snapshot(); snap.Totals.ParseFailures != 1 || snap.Totals.Errors != 1 {
		t.Fatalf("unexpected metrics %+v", snap.Totals)
	}
	if len(hypr.commands()) != 0 {
		t.Fatalf("parse failure must not dispatch")
	}
}

func TestApplyDryRun(t *testing.T) {
	hypr := newFakeWorld()
	eng, store, collector := newTestEngine(t, hypr)

	result, err := eng.Apply(context.Background(), Request{LayoutID: "left-half", Record: true, DryRun: true})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !result.DryRun || len(result.Commands) != 4 {
		t.Fatalf("expected previewed commands, got %+v", result)
	}
	if len(hypr.commands()) != 0 {
		t.Fatalf("dry run dispatched %v", hypr.commands())
	}
	if store.Stats().Events != 0 {
		t.Fatalf("dry run must not record history")
	}
	if snap := collector.Snapshot(); snap.Totals.DryRuns != 1 || snap.Totals.Applied != 0 {
		t.Fatalf("unexpected metrics %+v", snap.Totals)
	}
}

func TestApplyDispatchFailure(t *testing.T) {
	hypr := newFakeWorld()
	hypr.dispatchErr = errors.New("socket gone")
	eng, _, collector := newTestEngine(t, hypr)

	if _, err := eng.Apply(context.Background(), Request{LayoutID: "left-half"}); err == nil || !strings.Contains(err.Error(), "socket gone") {
		t.Fatalf("expected dispatch error, got %v", err)
	}
	if snap := collector.Snapshot(); snap.Totals.Errors != 1 {
		t.Fatalf("expected dispatch error to be counted, got %+v", snap.Totals)
	}
	recent := eng.RecentApplications()
	if len(recent) != 1 || recent[0].Status != ApplicationStatusError {
		t.Fatalf("unexpected recent applications %+v", recent)
	}
}

func TestApplyUsesBatchDispatcherWhenAvailable(t *testing.T) {
	hypr := &batchHyprctl{fakeHyprctl: newFakeWorld()}
	eng, _, _ := newTestEngine(t, hypr)

	if _, err := eng.Apply(context.Background(), Request{LayoutID: "left-half"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if hypr.batchCalls != 1 {
		t.Fatalf("expected one batch call, got %d", hypr.batchCalls)
	}
	if len(hypr.commands()) != 4 {
		t.Fatalf("expected 4 commands in the batch, got %v", hypr.commands())
	}
}

func TestSuggest(t *testing.T) {
	hypr := newFakeWorld()
	eng, store, collector := newTestEngine(t, hypr)

	s, err := eng.Suggest(context.Background(), "")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if s.Found {
		t.Fatalf("expected no suggestion for empty history, got %+v", s)
	}

	store.SetSelectedLayout(0x1a, "kitty", "shell", "center")
	s, err = eng.Suggest(context.Background(), "0x2b")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	want := Suggestion{Address: "0x2b", Class: "kitty", Found: true, LayoutID: "center", Label: "Center", Source: history.SourceTitle}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Fatalf("unexpected suggestion (-want +got):\n%s", diff)
	}

	// The window and title entries now point at a layout missing from the
	// catalog; the class recency list still remembers "center".
	store.SetSelectedLayout(0x2b, "kitty", "shell", "deleted-layout")
	s, err = eng.Suggest(context.Background(), "0x2b")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	want = Suggestion{Address: "0x2b", Class: "kitty", Found: true, LayoutID: "center", Label: "Center", Source: history.SourceClass}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Fatalf("stale entries should fall through to the class list (-want +got):\n%s", diff)
	}

	snap := collector.Snapshot()
	if snap.Lookups.Hits["title"] != 1 || snap.Lookups.Hits["class"] != 1 || snap.Lookups.Misses != 1 {
		t.Fatalf("unexpected lookup metrics %+v", snap.Lookups)
	}
	if _, err := eng.Suggest(context.Background(), "0xdead"); !errors.Is(err, ErrWindowNotFound) {
		t.Fatalf("expected ErrWindowNotFound, got %v", err)
	}
}

func TestSuggestSkipsSessionForUnparsableAddress(t *testing.T) {
	hypr := newFakeWorld()
	hypr.clients = append(hypr.clients, state.Client{Address: "0xzz", Class: "kitty", Title: "scratch", WorkspaceID: 1, MonitorName: "DP-1"})
	eng, store, _ := newTestEngine(t, hypr)

	store.SetSelectedLayout(0, "kitty", "notes", "wide")
	store.SetSelectedLayout(0x1a, "kitty", "shell", "center")

	s, err := eng.Suggest(context.Background(), "0xzz")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if !s.Found || s.LayoutID != "center" || s.Source != history.SourceClass {
		t.Fatalf("expected class match without the window tier, got %+v", s)
	}
}

func TestApplySkipsWindowAlreadyInPlace(t *testing.T) {
	hypr := newFakeWorld()
	hypr.clients[0].Floating = true
	hypr.clients[0].Geometry = layout.Rect{X: 0.4, Y: 30, Width: 960, Height: 1049.5}
	eng, store, _ := newTestEngine(t, hypr)

	result, err := eng.Apply(context.Background(), Request{LayoutID: "left-half", Record: true})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(hypr.commands()) != 0 || len(result.Commands) != 0 {
		t.Fatalf("window already in place was dispatched %v", hypr.commands())
	}
	if !result.Recorded || store.Stats().Events != 1 {
		t.Fatalf("selection should still be recorded: %+v %+v", result, store.Stats())
	}

	hypr.clients[0].Geometry.X = 40
	if _, err := eng.Apply(context.Background(), Request{LayoutID: "left-half"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(hypr.commands()) != 3 {
		t.Fatalf("expected a move after the window drifted, got %v", hypr.commands())
	}
}

func TestApplyFallsBackToFocusedMonitor(t *testing.T) {
	hypr := newFakeWorld()
	hypr.clients = append(hypr.clients, state.Client{Address: "0x5e", Class: "foot", Title: "orphan", WorkspaceID: 9, Geometry: layout.Rect{X: -500, Y: -500, Width: 10, Height: 10}})
	eng, _, _ := newTestEngine(t, hypr)

	result, err := eng.Apply(context.Background(), Request{Address: "0x5e", LayoutID: "left-half"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Monitor != "DP-1" {
		t.Fatalf("expected focused monitor DP-1, got %q", result.Monitor)
	}
}

func TestRunAutoAppliesAndForgetsClosedWindows(t *testing.T) {
	hypr := newFakeWorld()
	eng, store, collector := newTestEngine(t, hypr)
	eng.SetAutoApply(true)

	events := make(chan ipc.Event, 4)
	eng.subscribe = func(ctx context.Context, logger *util.Logger) (<-chan ipc.Event, error) {
		return events, nil
	}

	if _, err := eng.Apply(context.Background(), Request{Address: "0x1a", LayoutID: "center", Record: true}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	recordedEvents := store.Stats().Events

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- eng.Run(ctx)
	}()

	events <- ipc.ParseEvent("openwindow>>2b,1,kitty,shell")
	waitForCondition(t, time.Second, func() bool {
		for _, cmd := range hypr.commands() {
			if len(cmd) == 2 && cmd[0] == "focuswindow" && cmd[1] == "address:0x2b" {
				return true
			}
		}
		return false
	})
	if got := store.Stats().Events; got != recordedEvents {
		t.Fatalf("automatic placement must not be recorded, events %d -> %d", recordedEvents, got)
	}

	events <- ipc.ParseEvent("closewindow>>1a")
	waitForCondition(t, time.Second, func() bool {
		return store.Stats().Sessions == 0
	})
	if m, _ := store.Lookup(0x1a, "kitty", "shell"); m.Source != history.SourceTitle {
		t.Fatalf("closed window should fall back to the title entry, got %+v", m)
	}
	if snap := collector.Snapshot(); snap.Totals.AutoApplied != 1 {
		t.Fatalf("expected one automatic placement, got %+v", snap.Totals)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context canceled error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("engine Run did not exit after cancel")
	}
}

func TestRunIgnoresOpenWindowWhenAutoApplyDisabled(t *testing.T) {
	hypr := newFakeWorld()
	eng, store, _ := newTestEngine(t, hypr)
	store.SetSelectedLayout(0x1a, "kitty", "shell", "center")

	if err := eng.handleEvent(context.Background(), ipc.ParseEvent("openwindow>>2b,1,kitty,shell")); err != nil {
		t.Fatalf("handleEvent: %v", err)
	}
	if len(hypr.commands()) != 0 {
		t.Fatalf("expected no placement, got %v", hypr.commands())
	}
}

func TestRunReportsClosedStream(t *testing.T) {
	eng, _, _ := newTestEngine(t, newFakeWorld())
	events := make(chan ipc.Event)
	close(events)
	eng.subscribe = func(context.Context, *util.Logger) (<-chan ipc.Event, error) { return events, nil }
	if err := eng.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "closed") {
		t.Fatalf("expected closed stream error, got %v", err)
	}
}

func TestConfigureAndCatalog(t *testing.T) {
	cfg, err := config.Parse([]byte(`
autoApply: true
redactTitles: true
manualReserved:
  DP-1:
    top: 50
collections:
  - name: Default
    groups:
      - name: Halves
        layouts:
          - id: left-half
            label: Left
            width: 50%
            height: 100%
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	hypr := newFakeWorld()
	eng, _, _ := newTestEngine(t, hypr)
	eng.Configure(cfg)

	catalog := eng.Catalog()
	if catalog.ActiveCollection != "Default" || len(catalog.Slots) != 1 || catalog.Slots[0].ID != "left-half" {
		t.Fatalf("unexpected catalog %+v", catalog)
	}
	if _, ok := eng.LayoutIDs()["center"]; ok {
		t.Fatalf("reload should drop layouts missing from the new config")
	}
	if !eng.autoApplyEnabled() || !eng.redactTitlesEnabled() {
		t.Fatalf("expected autoApply and redactTitles to be enabled")
	}
	result, err := eng.Apply(context.Background(), Request{LayoutID: "left-half"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Rect.Y != 50 {
		t.Fatalf("expected manual insets for DP-1, got %+v", result.Rect)
	}
}

func TestTraceRedactsTitles(t *testing.T) {
	var logs bytes.Buffer
	hypr := newFakeWorld()
	eng := New(hypr, util.NewLoggerWithWriter(util.LevelTrace, &logs), nil, nil, true)
	eng.ReloadSlots(testSlots(), "Default")
	eng.mu.Lock()
	eng.redactTitles = true
	eng.mu.Unlock()

	if _, err := eng.Apply(context.Background(), Request{LayoutID: "left-half"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	out := logs.String()
	if strings.Contains(out, "shell") {
		t.Fatalf("title leaked into trace output: %s", out)
	}
	if !strings.Contains(out, redactedTitle) || !strings.Contains(out, `"status":"dry-run"`) {
		t.Fatalf("expected redacted dry-run trace, got %s", out)
	}
	if got := eng.loggablePayload(ipc.ParseEvent("openwindow>>2b,1,kitty,secret, stuff")); got != "2b,1,kitty,"+redactedTitle {
		t.Fatalf("unexpected redacted payload %q", got)
	}
}
