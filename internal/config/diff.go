package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/hyprpal/hyprslot/internal/layout"
)

// CatalogChange describes how the layout catalog moves between two configs.
// Removed ids leave their history entries stale until the log is reloaded.
type CatalogChange struct {
	Added            []string
	Removed          []string
	Modified         []string
	ActiveCollection [2]string
	// Detail is a go-cmp rendering of the slots keyed by layout id.
	Detail string
}

// DiffCatalogs compares the layout catalogs of two configs. A nil config is
// treated as an empty catalog.
func DiffCatalogs(previous, current *Config) CatalogChange {
	prev := slotsByID(previous)
	curr := slotsByID(current)

	var change CatalogChange
	for id, slot := range curr {
		old, ok := prev[id]
		switch {
		case !ok:
			change.Added = append(change.Added, id)
		case old != slot:
			change.Modified = append(change.Modified, id)
		}
	}
	for id := range prev {
		if _, ok := curr[id]; !ok {
			change.Removed = append(change.Removed, id)
		}
	}
	sort.Strings(change.Added)
	sort.Strings(change.Removed)
	sort.Strings(change.Modified)

	change.ActiveCollection = [2]string{activeCollection(previous), activeCollection(current)}
	change.Detail = cmp.Diff(prev, curr)
	return change
}

// Empty reports whether the catalogs are identical.
func (c CatalogChange) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Modified) == 0 &&
		c.ActiveCollection[0] == c.ActiveCollection[1]
}

// Summary renders the change on one line, e.g. "+right ~center -left".
func (c CatalogChange) Summary() string {
	if c.Empty() {
		return "no catalog changes"
	}
	var parts []string
	for _, id := range c.Added {
		parts = append(parts, "+"+id)
	}
	for _, id := range c.Modified {
		parts = append(parts, "~"+id)
	}
	for _, id := range c.Removed {
		parts = append(parts, "-"+id)
	}
	if from, to := c.ActiveCollection[0], c.ActiveCollection[1]; from != to {
		parts = append(parts, fmt.Sprintf("active %q -> %q", from, to))
	}
	return strings.Join(parts, " ")
}

func slotsByID(cfg *Config) map[string]layout.Slot {
	out := make(map[string]layout.Slot)
	if cfg == nil {
		return out
	}
	for _, slot := range cfg.Slots() {
		out[slot.ID] = slot
	}
	return out
}

func activeCollection(cfg *Config) string {
	if cfg == nil {
		return ""
	}
	return cfg.ActiveCollection
}
