package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/adrg/xdg"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/hyprpal/hyprslot/internal/layout"
)

const (
	configRelPath  = "hyprslot/config.yaml"
	historyRelPath = "hyprslot/history.jsonl"
)

// layoutNamespace seeds derived layout ids so they stay stable across restarts.
var layoutNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/hyprpal/hyprslot/layouts"))

// Config is the top-level configuration document.
type Config struct {
	HistoryFile      string         `yaml:"historyFile"`
	AutoApply        bool           `yaml:"autoApply"`
	RedactTitles     bool           `yaml:"redactTitles"`
	ActiveCollection string         `yaml:"activeCollection"`
	ManualReserved   ReservedInsets `yaml:"manualReserved"`
	Telemetry        Telemetry      `yaml:"telemetry"`
	Collections      []Collection   `yaml:"collections"`
}

// Telemetry controls the in-process counters exposed over the control socket.
type Telemetry struct {
	Enabled bool `yaml:"enabled"`
}

// ReservedInsets overrides the insets Hyprland reports, keyed by monitor
// name. The "*" key applies to every monitor without its own entry.
type ReservedInsets map[string]layout.Insets

// UnmarshalYAML rejects duplicate monitor names.
func (r *ReservedInsets) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		*r = nil
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("manualReserved must be a mapping")
	}
	result := make(map[string]layout.Insets, len(value.Content)/2)
	for i := 0; i < len(value.Content); i += 2 {
		keyNode := value.Content[i]
		valNode := value.Content[i+1]
		if keyNode.Kind != yaml.ScalarNode {
			return fmt.Errorf("manualReserved monitor name must be a string")
		}
		name := strings.TrimSpace(keyNode.Value)
		if _, exists := result[name]; exists {
			return fmt.Errorf("duplicate manualReserved monitor %q", name)
		}
		var insets layout.Insets
		if err := valNode.Decode(&insets); err != nil {
			return fmt.Errorf("manualReserved %q: %w", name, err)
		}
		result[name] = insets
	}
	*r = result
	return nil
}

// Collection is a named set of layout groups; one collection is active at a time.
type Collection struct {
	Name   string  `yaml:"name"`
	Groups []Group `yaml:"groups"`
}

// Group bundles layouts shown together, optionally for a single monitor.
type Group struct {
	Name    string   `yaml:"name"`
	Monitor string   `yaml:"monitor"`
	Layouts []Layout `yaml:"layouts"`
}

// Layout is one slot definition. X, Y, Width and Height are slot expressions.
type Layout struct {
	ID     string `yaml:"id"`
	Label  string `yaml:"label"`
	X      string `yaml:"x"`
	Y      string `yaml:"y"`
	Width  string `yaml:"width"`
	Height string `yaml:"height"`
}

// DefaultPath returns the configuration file under the XDG config home.
func DefaultPath() (string, error) {
	if path, err := xdg.SearchConfigFile(configRelPath); err == nil {
		return path, nil
	}
	return xdg.ConfigFile(configRelPath)
}

// DefaultHistoryPath returns the history log under the XDG data home.
func DefaultHistoryPath() (string, error) {
	return xdg.DataFile(historyRelPath)
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a configuration document and applies defaults without validating it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ActiveCollection == "" && len(c.Collections) > 0 {
		c.ActiveCollection = c.Collections[0].Name
	}
	for ci := range c.Collections {
		col := &c.Collections[ci]
		for gi := range col.Groups {
			grp := &col.Groups[gi]
			grp.Monitor = strings.TrimSpace(grp.Monitor)
			for li := range grp.Layouts {
				l := &grp.Layouts[li]
				if l.X == "" {
					l.X = "0"
				}
				if l.Y == "" {
					l.Y = "0"
				}
				if l.ID == "" && l.Label != "" {
					l.ID = DeriveLayoutID(col.Name, grp.Name, l.Label)
				}
			}
		}
	}
}

// DeriveLayoutID returns the stable id used for layouts that do not set one.
func DeriveLayoutID(collection, group, label string) string {
	name := collection + "/" + group + "/" + label
	return uuid.NewSHA1(layoutNamespace, []byte(name)).String()
}

// Validate returns the first lint error, if any.
func (c *Config) Validate() error {
	if errs := c.Lint(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// HistoryPath resolves the history log location, falling back to the XDG data home.
func (c *Config) HistoryPath() (string, error) {
	if c.HistoryFile != "" {
		return expandHome(c.HistoryFile)
	}
	return DefaultHistoryPath()
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return home + strings.TrimPrefix(path, "~"), nil
}

// Slots flattens the catalog into placement slots in declaration order.
func (c *Config) Slots() []layout.Slot {
	var slots []layout.Slot
	for _, col := range c.Collections {
		for _, grp := range col.Groups {
			for _, l := range grp.Layouts {
				slots = append(slots, layout.Slot{
					ID:         l.ID,
					Label:      l.Label,
					Collection: col.Name,
					Group:      grp.Name,
					Monitor:    grp.Monitor,
					X:          l.X,
					Y:          l.Y,
					Width:      l.Width,
					Height:     l.Height,
				})
			}
		}
	}
	return slots
}

// LayoutIDs returns the set of layout ids defined by the catalog.
func (c *Config) LayoutIDs() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, col := range c.Collections {
		for _, grp := range col.Groups {
			for _, l := range grp.Layouts {
				if l.ID != "" {
					ids[l.ID] = struct{}{}
				}
			}
		}
	}
	return ids
}
