package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyprpal/hyprslot/internal/config"
	"github.com/hyprpal/hyprslot/internal/engine"
	"github.com/hyprpal/hyprslot/internal/ipc"
	"github.com/hyprpal/hyprslot/internal/layout"
	"github.com/hyprpal/hyprslot/internal/state"
	"github.com/hyprpal/hyprslot/internal/util"
)

// smokeClient reads the live compositor state but never dispatches.
type smokeClient struct {
	*ipc.Client
}

func (c *smokeClient) Dispatch(args ...string) error {
	return nil
}

func (c *smokeClient) DispatchBatch(commands [][]string) error {
	return nil
}

func main() {
	defaultConfig, err := config.DefaultPath()
	if err != nil {
		exitErr(fmt.Errorf("resolve config path: %w", err))
	}

	cfgPath := flag.String("config", defaultConfig, "path to YAML config")
	logLevel := flag.String("log-level", "info", "log level (trace|debug|info|warn|error)")
	address := flag.String("address", "", "window to preview against (defaults to the active window)")
	showConfig := flag.Bool("print-config", false, "print the decoded configuration")
	flag.Parse()

	logger := util.NewLogger(util.ParseLogLevel(*logLevel))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		exitErr(fmt.Errorf("load config: %w", err))
	}

	client := &smokeClient{Client: ipc.NewClient()}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	world, err := state.NewWorld(ctx, client)
	if err != nil {
		exitErr(fmt.Errorf("build world: %w", err))
	}

	fmt.Printf("Loaded config from %s\n", *cfgPath)
	if *showConfig {
		fmt.Println("\n=== Configuration ===")
		if err := marshalYAML(cfg); err != nil {
			logger.Warnf("failed to print config: %v", err)
		}
	}

	fmt.Println("\n=== Work Areas ===")
	for _, mon := range world.Monitors {
		fmt.Printf("%s: %s (reserved %+v)\n", mon.Name, formatRect(mon.WorkArea()), mon.Reserved)
	}

	eng := engine.New(client, logger, nil, nil, true)
	eng.Configure(cfg)

	catalog := eng.Catalog()
	fmt.Printf("\n=== Layout Preview (collection %s) ===\n", catalog.ActiveCollection)
	failures := 0
	for _, slot := range catalog.Slots {
		result, err := eng.Apply(ctx, engine.Request{Address: *address, LayoutID: slot.ID, DryRun: true})
		if err != nil {
			failures++
			fmt.Printf("%s (%s/%s/%s): error: %v\n", slot.ID, slot.Collection, slot.Group, slot.Label, err)
			continue
		}
		fmt.Printf("%s (%s/%s/%s) on %s: %s\n", slot.ID, slot.Collection, slot.Group, slot.Label, result.Monitor,
			formatRect(result.Rect))
		for _, cmd := range result.Commands {
			fmt.Printf("  dispatch: %s\n", strings.Join(cmd, " "))
		}
	}

	fmt.Println("\n=== Recent Previews ===")
	if err := marshalJSON(eng.RecentApplications()); err != nil {
		logger.Warnf("failed to print previews: %v", err)
	}
	if failures > 0 {
		exitErr(fmt.Errorf("%d layout(s) failed to resolve", failures))
	}
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func marshalYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

func marshalJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func formatRect(rect layout.Rect) string {
	return fmt.Sprintf("%.0fx%.0f @ %.0f,%.0f", rect.Width, rect.Height, rect.X, rect.Y)
}
