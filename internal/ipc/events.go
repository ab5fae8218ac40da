package ipc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/hyprpal/hyprslot/internal/util"
)

// Event kinds consumed from the Hyprland event socket.
const (
	EventOpenWindow  = "openwindow"
	EventCloseWindow = "closewindow"
)

// Event represents a Hyprland event stream payload.
type Event struct {
	Kind    string
	Payload string
}

// WindowEvent is a decoded openwindow or closewindow payload.
type WindowEvent struct {
	Address   string
	Workspace string
	Class     string
	Title     string
}

// ParseEvent splits a raw "KIND>>PAYLOAD" line.
func ParseEvent(line string) Event {
	parts := strings.SplitN(line, ">>", 2)
	ev := Event{Kind: parts[0]}
	if len(parts) == 2 {
		ev.Payload = parts[1]
	}
	return ev
}

// Window decodes the payload of window events. Hyprland sends addresses
// without the 0x prefix that hyprctl uses; it is added back. Titles may
// contain commas, so the title is everything after the third field.
func (e Event) Window() (WindowEvent, error) {
	switch e.Kind {
	case EventOpenWindow:
		parts := strings.SplitN(e.Payload, ",", 4)
		if len(parts) < 3 || parts[0] == "" {
			return WindowEvent{}, fmt.Errorf("malformed %s payload %q", e.Kind, e.Payload)
		}
		ev := WindowEvent{Address: withHexPrefix(parts[0]), Workspace: parts[1], Class: parts[2]}
		if len(parts) == 4 {
			ev.Title = parts[3]
		}
		return ev, nil
	case EventCloseWindow:
		if e.Payload == "" {
			return WindowEvent{}, fmt.Errorf("malformed %s payload %q", e.Kind, e.Payload)
		}
		return WindowEvent{Address: withHexPrefix(e.Payload)}, nil
	default:
		return WindowEvent{}, fmt.Errorf("%s is not a window event", e.Kind)
	}
}

func withHexPrefix(address string) string {
	if strings.HasPrefix(address, "0x") {
		return address
	}
	return "0x" + address
}

// Subscribe connects to the Hyprland event socket and streams events until
// context cancellation. The channel closes when the stream ends.
func Subscribe(ctx context.Context, logger *util.Logger) (<-chan Event, error) {
	socket, err := hyprSocketPath(".socket2.sock")
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socket)
	if err != nil {
		return nil, fmt.Errorf("connect event socket: %w", err)
	}
	events := make(chan Event)
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	go func() {
		defer close(events)
		defer stop()
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			select {
			case events <- ParseEvent(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			logger.Warnf("event stream error: %v", err)
		}
	}()
	return events, nil
}
