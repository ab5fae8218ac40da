package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/hyprpal/hyprslot/internal/engine"
	"github.com/hyprpal/hyprslot/internal/history"
	"github.com/hyprpal/hyprslot/internal/metrics"
	"github.com/hyprpal/hyprslot/internal/util"
)

// Server hosts the hyprslot control socket and serves requests.
type Server struct {
	engine     *engine.Engine
	history    *history.Store
	metrics    *metrics.Collector
	logger     *util.Logger
	reload     func(reason string) error
	socketPath string

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new control server. The history store and metrics
// collector may be nil.
func NewServer(eng *engine.Engine, store *history.Store, collector *metrics.Collector, logger *util.Logger, reload func(reason string) error) (*Server, error) {
	path, err := DefaultSocketPath()
	if err != nil {
		return nil, err
	}
	return &Server{
		engine:     eng,
		history:    store,
		metrics:    collector,
		logger:     logger,
		reload:     reload,
		socketPath: path,
	}, nil
}

// SocketPath reports where the server listens.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Serve listens on the control socket until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.prepareSocket(); err != nil {
		return err
	}
	s.logger.Infof("control server listening on %s", s.socketPath)
	defer s.cleanup()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Unlock()
	}()

	for {
		conn, err := s.accept(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			s.logger.Errorf("control accept error: %v", err)
			continue
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) accept(ctx context.Context) (net.Conn, error) {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return nil, context.Canceled
	}
	conn, err := listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return conn, nil
}

func (s *Server) prepareSocket() error {
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create control dir: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on control socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("chmod control socket: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	return nil
}

func (s *Server) cleanup() {
	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()
	if listener != nil {
		listener.Close()
	}
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warnf("remove control socket: %v", err)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	var req Request
	if err := dec.Decode(&req); err != nil {
		s.writeError(conn, fmt.Errorf("decode request: %w", err))
		return
	}
	s.logger.Debugf("control request %s", req.Action)
	switch req.Action {
	case ActionLayoutsList:
		s.handleLayoutsList(conn)
	case ActionLayoutApply:
		s.handleApply(ctx, conn, req.Params)
	case ActionLayoutSuggest:
		s.handleSuggest(ctx, conn, req.Params)
	case ActionHistoryStats:
		s.handleHistoryStats(conn)
	case ActionHistoryCompact:
		s.handleHistoryCompact(conn)
	case ActionMetricsGet:
		s.writeOK(conn, s.metrics.Snapshot())
	case ActionApplicationsRecent:
		s.handleApplicationsRecent(conn)
	case ActionReload:
		s.handleReload(conn)
	default:
		s.writeError(conn, fmt.Errorf("unknown action %q", req.Action))
	}
}

func (s *Server) handleLayoutsList(conn net.Conn) {
	catalog := s.engine.Catalog()
	list := LayoutList{ActiveCollection: catalog.ActiveCollection, Layouts: make([]LayoutInfo, 0, len(catalog.Slots))}
	for _, slot := range catalog.Slots {
		list.Layouts = append(list.Layouts, LayoutInfo{
			ID:         slot.ID,
			Label:      slot.Label,
			Collection: slot.Collection,
			Group:      slot.Group,
			Monitor:    slot.Monitor,
			X:          slot.X,
			Y:          slot.Y,
			Width:      slot.Width,
			Height:     slot.Height,
		})
	}
	s.writeOK(conn, list)
}

func decodeApplyParams(params map[string]any) ApplyParams {
	p := ApplyParams{Record: true}
	p.LayoutID, _ = params["layoutId"].(string)
	p.Address, _ = params["address"].(string)
	p.Monitor, _ = params["monitor"].(string)
	if record, ok := params["record"].(bool); ok {
		p.Record = record
	}
	p.DryRun, _ = params["dryRun"].(bool)
	return p
}

func (s *Server) handleApply(ctx context.Context, conn net.Conn, params map[string]any) {
	p := decodeApplyParams(params)
	if p.LayoutID == "" {
		s.writeError(conn, errors.New("missing layout id"))
		return
	}
	result, err := s.engine.Apply(ctx, engine.Request{
		Address:  p.Address,
		LayoutID: p.LayoutID,
		Monitor:  p.Monitor,
		Record:   p.Record,
		DryRun:   p.DryRun,
	})
	if err != nil {
		s.writeError(conn, err)
		return
	}
	s.writeOK(conn, Placement{
		LayoutID: result.LayoutID,
		Address:  result.Address,
		Monitor:  result.Monitor,
		X:        result.Rect.X,
		Y:        result.Rect.Y,
		Width:    result.Rect.Width,
		Height:   result.Rect.Height,
		Commands: cloneCommands(result.Commands),
		DryRun:   result.DryRun,
		Recorded: result.Recorded,
	})
}

func (s *Server) handleSuggest(ctx context.Context, conn net.Conn, params map[string]any) {
	address, _ := params["address"].(string)
	suggestion, err := s.engine.Suggest(ctx, address)
	if err != nil {
		s.writeError(conn, err)
		return
	}
	s.writeOK(conn, Suggestion{
		Address:  suggestion.Address,
		Class:    suggestion.Class,
		Found:    suggestion.Found,
		LayoutID: suggestion.LayoutID,
		Label:    suggestion.Label,
		Source:   string(suggestion.Source),
	})
}

func (s *Server) handleHistoryStats(conn net.Conn) {
	if s.history == nil {
		s.writeError(conn, errors.New("history disabled"))
		return
	}
	s.writeOK(conn, historyStats(s.history.Stats()))
}

func (s *Server) handleHistoryCompact(conn net.Conn) {
	if s.history == nil {
		s.writeError(conn, errors.New("history disabled"))
		return
	}
	before := s.history.Stats().Events
	if err := s.history.Compact(); err != nil {
		s.writeError(conn, fmt.Errorf("compact history: %w", err))
		return
	}
	after := s.history.Stats().Events
	s.logger.Infof("history compacted from %d to %d events", before, after)
	s.writeOK(conn, CompactResult{Before: before, After: after})
}

func historyStats(st history.Stats) HistoryStats {
	return HistoryStats{
		Path:     st.Path,
		Events:   st.Events,
		Classes:  st.Classes,
		Titles:   st.Titles,
		Sessions: st.Sessions,
	}
}

func (s *Server) handleApplicationsRecent(conn net.Conn) {
	records := s.engine.RecentApplications()
	out := make([]ApplicationRecord, 0, len(records))
	for _, r := range records {
		out = append(out, ApplicationRecord{
			Timestamp: r.Timestamp,
			LayoutID:  r.LayoutID,
			Address:   r.Address,
			Monitor:   r.Monitor,
			Auto:      r.Auto,
			Status:    string(r.Status),
			Commands:  cloneCommands(r.Commands),
			Error:     r.Error,
		})
	}
	s.writeOK(conn, out)
}

func (s *Server) handleReload(conn net.Conn) {
	if s.reload == nil {
		s.writeError(conn, errors.New("reload not supported"))
		return
	}
	if err := s.reload("control request"); err != nil {
		s.writeError(conn, err)
		return
	}
	s.writeOK(conn, nil)
}

func cloneCommands(cmds [][]string) [][]string {
	if len(cmds) == 0 {
		return nil
	}
	out := make([][]string, len(cmds))
	for i, cmd := range cmds {
		out[i] = append([]string(nil), cmd...)
	}
	return out
}

func (s *Server) writeOK(conn net.Conn, data any) {
	resp := Response{Status: StatusOK}
	if data != nil {
		resp.Data = data
	}
	_ = json.NewEncoder(conn).Encode(resp)
}

func (s *Server) writeError(conn net.Conn, err error) {
	resp := Response{Status: StatusError}
	if err != nil {
		resp.Error = err.Error()
	}
	_ = json.NewEncoder(conn).Encode(resp)
}
