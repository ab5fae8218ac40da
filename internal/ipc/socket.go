package ipc

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyprpal/hyprslot/internal/layout"
)

const dispatchTimeout = 2 * time.Second

type socketDispatcher struct {
	path    string
	timeout time.Duration
}

func newSocketDispatcher() (*socketDispatcher, error) {
	path, err := hyprSocketPath(".socket.sock")
	if err != nil {
		return nil, err
	}
	return &socketDispatcher{path: path, timeout: dispatchTimeout}, nil
}

func (d *socketDispatcher) Dispatch(args ...string) error {
	if len(args) == 0 {
		return nil
	}
	return d.DispatchBatch([][]string{args})
}

// DispatchBatch writes the commands on one connection and waits for
// Hyprland's reply. Several commands are framed by begin/commit markers so
// they apply together.
func (d *socketDispatcher) DispatchBatch(commands [][]string) error {
	lines := make([]string, 0, len(commands))
	for _, cmd := range commands {
		if len(cmd) == 0 {
			continue
		}
		lines = append(lines, "dispatch "+strings.Join(cmd, " "))
	}
	if len(lines) == 0 {
		return nil
	}
	if len(lines) > 1 {
		lines = append(append([]string{"begin"}, lines...), "commit")
	}
	payload := strings.Join(lines, "\n") + "\n"

	conn, err := net.DialTimeout("unix", d.path, d.timeout)
	if err != nil {
		return fmt.Errorf("connect dispatch socket: %w", err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(d.timeout)); err != nil {
		return fmt.Errorf("set dispatch deadline: %w", err)
	}
	if _, err := io.WriteString(conn, payload); err != nil {
		return fmt.Errorf("write dispatch payload: %w", err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		_ = uc.CloseWrite()
	}
	reply, err := io.ReadAll(conn)
	if err != nil {
		return fmt.Errorf("read dispatch reply: %w", err)
	}
	return checkReply(reply)
}

func (d *socketDispatcher) DispatchSocketPath() string {
	return d.path
}

// checkReply accepts empty replies and lines reading "ok".
func checkReply(reply []byte) error {
	for _, line := range strings.Split(string(reply), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "ok" {
			continue
		}
		return fmt.Errorf("hyprland rejected dispatch: %s", line)
	}
	return nil
}

func hyprSocketPath(name string) (string, error) {
	sig := os.Getenv("HYPRLAND_INSTANCE_SIGNATURE")
	if sig == "" {
		return "", fmt.Errorf("HYPRLAND_INSTANCE_SIGNATURE not set")
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", fmt.Errorf("XDG_RUNTIME_DIR not set")
	}
	return filepath.Join(runtimeDir, "hypr", sig, name), nil
}

var _ layout.BatchDispatcher = (*socketDispatcher)(nil)
