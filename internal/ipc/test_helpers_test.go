package ipc

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	original, had := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("setenv %s: %v", key, err)
	}
	t.Cleanup(func() {
		if !had {
			os.Unsetenv(key)
			return
		}
		os.Setenv(key, original)
	})
}

// listenHyprSocket points the Hyprland environment at a temp runtime dir and
// listens on the named socket inside it.
func listenHyprSocket(t *testing.T, name string) (net.Listener, string) {
	t.Helper()

	runtimeDir := t.TempDir()
	sig := "instance"
	setEnv(t, "XDG_RUNTIME_DIR", runtimeDir)
	setEnv(t, "HYPRLAND_INSTANCE_SIGNATURE", sig)

	socketPath := filepath.Join(runtimeDir, "hypr", sig, name)
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() {
		listener.Close()
	})
	return listener, socketPath
}

// serveDispatch accepts one connection, reads lines until the request is
// complete and answers with reply. The received lines are sent on the
// returned channel.
func serveDispatch(t *testing.T, listener net.Listener, reply string) (<-chan []string, <-chan error) {
	t.Helper()
	linesCh := make(chan []string, 1)
	errCh := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			errCh <- err
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		var lines []string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				errCh <- err
				return
			}
			line = strings.TrimSuffix(line, "\n")
			lines = append(lines, line)
			if line == "commit" || (len(lines) == 1 && line != "begin") {
				break
			}
		}
		if _, err := conn.Write([]byte(reply)); err != nil {
			errCh <- err
			return
		}
		linesCh <- lines
	}()
	return linesCh, errCh
}

// writeFakeHyprctl installs a shell script standing in for hyprctl. It
// prints the fixture named after the queried topic and "ok" for dispatches,
// logging dispatch arguments to dispatch.log.
func writeFakeHyprctl(t *testing.T, fixtures map[string]string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	for topic, body := range fixtures {
		if err := os.WriteFile(filepath.Join(dir, topic+".json"), []byte(body), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	logPath := filepath.Join(dir, "dispatch.log")
	script := "#!/bin/sh\n" +
		"dir=\"" + dir + "\"\n" +
		"if [ \"$1\" = \"dispatch\" ]; then\n" +
		"  shift\n" +
		"  echo \"$@\" >> \"$dir/dispatch.log\"\n" +
		"  case \"$1\" in bogus) echo \"Invalid dispatcher\" ;; *) echo ok ;; esac\n" +
		"  exit 0\n" +
		"fi\n" +
		"if [ -f \"$dir/$2.json\" ]; then cat \"$dir/$2.json\"; exit 0; fi\n" +
		"echo \"unknown request $2\" >&2\n" +
		"exit 1\n"
	bin := filepath.Join(dir, "hyprctl")
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return bin, logPath
}
