// Package main provides the slotctl CLI for the hyprslot daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyprpal/hyprslot/internal/config"
	"github.com/hyprpal/hyprslot/internal/control/client"
	"github.com/hyprpal/hyprslot/internal/layout/expr"
	"github.com/hyprpal/hyprslot/internal/ui/tui"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	socket  string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "slotctl",
		Short:         "Control the hyprslot layout daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.socket, "socket", "", "path to hyprslot control socket")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 3*time.Second, "control request timeout")

	rootCmd.AddCommand(layoutsCmd(opts))
	rootCmd.AddCommand(applyCmd(opts))
	rootCmd.AddCommand(suggestCmd(opts))
	rootCmd.AddCommand(historyCmd(opts))
	rootCmd.AddCommand(metricsCmd(opts))
	rootCmd.AddCommand(recentCmd(opts))
	rootCmd.AddCommand(reloadCmd(opts))
	rootCmd.AddCommand(watchCmd(opts))
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(evalCmd())
	return rootCmd
}

// withClient runs fn with a connected client and the request timeout applied.
func (o *rootOptions) withClient(cmd *cobra.Command, fn func(ctx context.Context, cli *client.Client) error) error {
	cli, err := client.New(o.socket)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	return fn(ctx, cli)
}

func layoutsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "layouts",
		Short: "List the loaded layouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, cli *client.Client) error {
				list, err := cli.Layouts(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Active collection: %s\n", list.ActiveCollection)
				if len(list.Layouts) == 0 {
					fmt.Fprintln(out, "No layouts loaded")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tLABEL\tCOLLECTION\tGROUP\tMONITOR\tGEOMETRY")
				for _, l := range list.Layouts {
					monitor := l.Monitor
					if monitor == "" {
						monitor = "-"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", l.ID, l.Label, l.Collection, l.Group, monitor,
						fmt.Sprintf("x=%s y=%s w=%s h=%s", l.X, l.Y, l.Width, l.Height))
				}
				return tw.Flush()
			})
		},
	}
}

func applyCmd(opts *rootOptions) *cobra.Command {
	var (
		address  string
		monitor  string
		noRecord bool
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "apply <layout-id>",
		Short: "Place a window into a layout",
		Long: `Place a window into a layout slot.

The active window is used unless --address is given. The choice is recorded
in history so the window reopens in the same slot, unless --no-record is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, cli *client.Client) error {
				placement, err := cli.Apply(ctx, client.ApplyParams{
					LayoutID: args[0],
					Address:  address,
					Monitor:  monitor,
					Record:   !noRecord,
					DryRun:   dryRun,
				})
				if err != nil {
					return err
				}
				printPlacement(cmd.OutOrStdout(), placement)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "window address (defaults to the active window)")
	cmd.Flags().StringVar(&monitor, "monitor", "", "monitor to resolve the layout against")
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "do not remember the choice in history")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the dispatches without moving the window")
	return cmd
}

func printPlacement(out io.Writer, p client.Placement) {
	verb := "Placed"
	if p.DryRun {
		verb = "Would place"
	}
	fmt.Fprintf(out, "%s %s in %s on %s at %.0f,%.0f %.0fx%.0f\n", verb, p.Address, p.LayoutID, p.Monitor, p.X, p.Y, p.Width, p.Height)
	if p.DryRun {
		for _, cmd := range p.Commands {
			fmt.Fprintf(out, "dispatch: %s\n", strings.Join(cmd, " "))
		}
	}
	if p.Recorded {
		fmt.Fprintln(out, "Recorded in history")
	}
}

func suggestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest [address]",
		Short: "Show the remembered layout for a window",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address := ""
			if len(args) == 1 {
				address = args[0]
			}
			return opts.withClient(cmd, func(ctx context.Context, cli *client.Client) error {
				s, err := cli.Suggest(ctx, address)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !s.Found {
					fmt.Fprintf(out, "No remembered layout for %s (%s)\n", s.Address, s.Class)
					return nil
				}
				fmt.Fprintf(out, "%s (%s): %s %q via %s history\n", s.Address, s.Class, s.LayoutID, s.Label, s.Source)
				return nil
			})
		},
	}
}

func historyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or compact the layout history log",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show history log size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, cli *client.Client) error {
				stats, err := cli.HistoryStats(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Path:     %s\n", stats.Path)
				fmt.Fprintf(out, "Events:   %d\n", stats.Events)
				fmt.Fprintf(out, "Classes:  %d\n", stats.Classes)
				fmt.Fprintf(out, "Titles:   %d\n", stats.Titles)
				fmt.Fprintf(out, "Sessions: %d\n", stats.Sessions)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "compact",
		Short: "Rewrite the history log keeping only events that still matter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, cli *client.Client) error {
				result, err := cli.CompactHistory(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Compacted history from %d to %d events\n", result.Before, result.After)
				return nil
			})
		},
	})
	return cmd
}

func metricsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show placement and lookup counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, cli *client.Client) error {
				snapshot, err := cli.Metrics(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !snapshot.Enabled {
					fmt.Fprintln(out, "Telemetry disabled (set telemetry.enabled in the config)")
					return nil
				}
				t := snapshot.Totals
				fmt.Fprintf(out, "Applied: %d (auto %d)  Dry runs: %d  Errors: %d  Parse failures: %d\n",
					t.Applied, t.AutoApplied, t.DryRuns, t.Errors, t.ParseFailures)
				fmt.Fprintf(out, "Lookups: window=%d title=%d class=%d misses=%d\n",
					snapshot.Lookups.Hits["window"], snapshot.Lookups.Hits["title"], snapshot.Lookups.Hits["class"], snapshot.Lookups.Misses)
				if len(snapshot.Layouts) == 0 {
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "LAYOUT\tAPPLIED\tAUTO\tDRY-RUN\tERRORS")
				for _, l := range snapshot.Layouts {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", l.LayoutID, l.Applied, l.AutoApplied, l.DryRuns, l.Errors)
				}
				return tw.Flush()
			})
		},
	}
}

func recentCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recent",
		Short: "Show recent placements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, cli *client.Client) error {
				records, err := cli.Recent(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No placements yet")
					return nil
				}
				for _, r := range records {
					origin := "manual"
					if r.Auto {
						origin = "auto"
					}
					line := fmt.Sprintf("%s  %-8s %-6s %s -> %s", r.Timestamp.Local().Format(time.TimeOnly), r.Status, origin, r.Address, r.LayoutID)
					if r.Monitor != "" {
						line += " on " + r.Monitor
					}
					if r.Error != "" {
						line += ": " + r.Error
					}
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}
}

func reloadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Trigger a live config reload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, cli *client.Client) error {
				if err := cli.Reload(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Reload requested")
				return nil
			})
		},
	}
}

func watchCmd(opts *rootOptions) *cobra.Command {
	var refresh time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show a live dashboard of layouts, history and recent placements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := client.New(opts.socket)
			if err != nil {
				return fmt.Errorf("create client: %w", err)
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			renderer := tui.New(cli, cmd.OutOrStdout())
			renderer.Refresh = refresh
			if err := renderer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&refresh, "refresh", time.Second, "refresh interval")
	return cmd
}

func checkCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				path, err := config.DefaultPath()
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				configPath = path
			}
			return runCheck(configPath, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to configuration file")
	return cmd
}

func runCheck(configPath string, stdout, stderr io.Writer) error {
	lintErrs, err := config.LintFile(configPath)
	if err != nil {
		return err
	}
	if len(lintErrs) == 0 {
		fmt.Fprintln(stdout, "Configuration OK")
		return nil
	}

	fmt.Fprintf(stderr, "Configuration has %d issue(s):\n", len(lintErrs))
	for _, lintErr := range lintErrs {
		fmt.Fprintf(stderr, "- %s\n", lintErr.Error())
	}
	return fmt.Errorf("configuration validation failed")
}

func evalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eval <expression> <size>",
		Short: "Evaluate a layout expression against a container size",
		Example: `  slotctl eval "1/3 + 10px" 1920
  slotctl eval "100% - 40px" 1080`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := expr.Parse(args[0])
			if err != nil {
				return err
			}
			size, err := strconv.ParseFloat(args[1], 64)
			if err != nil || size < 0 {
				return fmt.Errorf("invalid size %q", args[1])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %d\n", node, expr.Evaluate(node, size))
			return nil
		},
	}
}
