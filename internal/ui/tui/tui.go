package tui

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/hyprpal/hyprslot/internal/control/client"
)

const (
	defaultRefresh = time.Second
	recentRows     = 10
)

// Source is the subset of the control client the dashboard polls.
type Source interface {
	Layouts(ctx context.Context) (client.LayoutList, error)
	Metrics(ctx context.Context) (client.MetricsSnapshot, error)
	HistoryStats(ctx context.Context) (client.HistoryStats, error)
	Recent(ctx context.Context) ([]client.ApplicationRecord, error)
}

// Renderer periodically polls the daemon and renders a textual dashboard.
type Renderer struct {
	Client  Source
	Writer  io.Writer
	Refresh time.Duration
}

// New returns a renderer configured with sensible defaults.
func New(cli Source, w io.Writer) *Renderer {
	return &Renderer{Client: cli, Writer: w, Refresh: defaultRefresh}
}

// Run starts the render loop until the context is cancelled.
func (r *Renderer) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.Writer == nil {
		r.Writer = os.Stdout
	}
	if r.Client == nil {
		return fmt.Errorf("tui renderer requires a control client")
	}

	refresh := r.Refresh
	if refresh <= 0 {
		refresh = defaultRefresh
	}

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	fmt.Fprint(r.Writer, "\033[?25l")
	defer fmt.Fprint(r.Writer, "\033[?25h")

	r.render(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.render(ctx)
		}
	}
}

func (r *Renderer) render(ctx context.Context) {
	var buf bytes.Buffer
	buf.WriteString("\033[H\033[2J")
	buf.WriteString("hyprslot dashboard, Ctrl+C to exit\n")
	buf.WriteString(time.Now().Format(time.RFC1123))
	buf.WriteString("\n\n")
	buf.WriteString(Frame(ctx, r.Client))
	fmt.Fprint(r.Writer, buf.String())
}

// Frame renders one dashboard frame without terminal control sequences.
func Frame(ctx context.Context, src Source) string {
	var b bytes.Buffer
	list, err := src.Layouts(ctx)
	if err != nil {
		fmt.Fprintf(&b, "error: %v\n", err)
		return b.String()
	}
	b.WriteString(renderLayouts(list))

	if stats, err := src.HistoryStats(ctx); err != nil {
		fmt.Fprintf(&b, "History: unavailable (%v)\n\n", err)
	} else {
		fmt.Fprintf(&b, "History: %d events, %d classes, %d titles, %d session windows\n\n", stats.Events, stats.Classes, stats.Titles, stats.Sessions)
	}

	if snapshot, err := src.Metrics(ctx); err == nil {
		b.WriteString(renderMetrics(snapshot))
	}

	records, err := src.Recent(ctx)
	if err != nil {
		fmt.Fprintf(&b, "Recent placements: unavailable (%v)\n", err)
		return b.String()
	}
	b.WriteString(renderRecent(records))
	return b.String()
}

func renderLayouts(list client.LayoutList) string {
	var b bytes.Buffer
	active := list.ActiveCollection
	if active == "" {
		active = "(none)"
	}
	fmt.Fprintf(&b, "Active collection: %s\n", active)
	if len(list.Layouts) == 0 {
		b.WriteString("  (no layouts)\n\n")
		return b.String()
	}
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLabel\tGroup\tMonitor")
	for _, l := range list.Layouts {
		if l.Collection != list.ActiveCollection {
			continue
		}
		monitor := l.Monitor
		if monitor == "" {
			monitor = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.ID, l.Label, l.Group, monitor)
	}
	tw.Flush()
	b.WriteByte('\n')
	return b.String()
}

func renderMetrics(snapshot client.MetricsSnapshot) string {
	if !snapshot.Enabled {
		return "Telemetry: disabled\n\n"
	}
	t := snapshot.Totals
	hits := snapshot.Lookups.Hits
	return fmt.Sprintf("Applied: %d (auto %d), dry runs %d, errors %d\nLookups: window %d, title %d, class %d, misses %d\n\n",
		t.Applied, t.AutoApplied, t.DryRuns, t.Errors,
		hits["window"], hits["title"], hits["class"], snapshot.Lookups.Misses)
}

func renderRecent(records []client.ApplicationRecord) string {
	var b bytes.Buffer
	b.WriteString("Recent placements:\n")
	if len(records) == 0 {
		b.WriteString("  (none)\n")
		return b.String()
	}
	if len(records) > recentRows {
		records = records[len(records)-recentRows:]
	}
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Time\tStatus\tWindow\tLayout\tMonitor")
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		status := r.Status
		if r.Auto {
			status += " (auto)"
		}
		monitor := r.Monitor
		if monitor == "" {
			monitor = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Timestamp.Local().Format(time.TimeOnly), status, r.Address, r.LayoutID, monitor)
	}
	tw.Flush()
	return b.String()
}
