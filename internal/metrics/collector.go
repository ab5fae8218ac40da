package metrics

import (
	"sort"
	"sync"
	"time"
)

// Collector aggregates anonymous counters for layout applications and
// history lookups. Nothing it records identifies a window.
type Collector struct {
	mu            sync.RWMutex
	enabled       bool
	started       time.Time
	layouts       map[string]*LayoutMetrics
	lookups       map[string]uint64
	misses        uint64
	parseFailures uint64
}

// LayoutMetrics captures per-layout counters tracked by the collector.
type LayoutMetrics struct {
	LayoutID    string    `json:"layoutId"`
	Applied     uint64    `json:"applied"`
	AutoApplied uint64    `json:"autoApplied"`
	DryRuns     uint64    `json:"dryRuns"`
	Errors      uint64    `json:"errors"`
	LastApplied time.Time `json:"lastApplied,omitempty"`
	LastErrored time.Time `json:"lastErrored,omitempty"`
}

// Totals aggregates counters across all layouts in a snapshot.
type Totals struct {
	Applied       uint64 `json:"applied"`
	AutoApplied   uint64 `json:"autoApplied"`
	DryRuns       uint64 `json:"dryRuns"`
	Errors        uint64 `json:"errors"`
	ParseFailures uint64 `json:"parseFailures"`
}

// Lookups counts history answers by the index that produced them.
type Lookups struct {
	Hits   map[string]uint64 `json:"hits,omitempty"`
	Misses uint64            `json:"misses"`
}

// Snapshot is the serializable view of the current metrics state.
type Snapshot struct {
	Enabled bool            `json:"enabled"`
	Started time.Time       `json:"started,omitempty"`
	Totals  Totals          `json:"totals"`
	Lookups Lookups         `json:"lookups"`
	Layouts []LayoutMetrics `json:"layouts,omitempty"`
}

// NewCollector returns a collector with the provided opt-in state.
func NewCollector(enabled bool) *Collector {
	c := &Collector{}
	c.SetEnabled(enabled)
	return c
}

// Enabled reports whether collection is currently active.
func (c *Collector) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// SetEnabled toggles collection, resetting counters when enabling.
func (c *Collector) SetEnabled(enabled bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled == enabled {
		return
	}
	c.enabled = enabled
	c.layouts = nil
	c.lookups = nil
	c.misses = 0
	c.parseFailures = 0
	c.started = time.Time{}
	if enabled {
		c.started = time.Now()
		c.layouts = make(map[string]*LayoutMetrics)
		c.lookups = make(map[string]uint64)
	}
}

// RecordApplied counts a placement. Automatic placements come from history
// on window open; dry runs are counted separately from real dispatches.
func (c *Collector) RecordApplied(layoutID string, auto, dryRun bool) {
	c.updateLayout(layoutID, func(m *LayoutMetrics, now time.Time) {
		switch {
		case dryRun:
			m.DryRuns++
		case auto:
			m.AutoApplied++
		default:
			m.Applied++
		}
		if !dryRun {
			m.LastApplied = now
		}
	})
}

// RecordError counts a failed placement.
func (c *Collector) RecordError(layoutID string) {
	c.updateLayout(layoutID, func(m *LayoutMetrics, now time.Time) {
		m.Errors++
		m.LastErrored = now
	})
}

// RecordParseFailure counts a layout whose expressions failed to parse.
func (c *Collector) RecordParseFailure() {
	c.update(func() { c.parseFailures++ })
}

// RecordLookup counts a history lookup answered by source, or a miss when
// source is empty.
func (c *Collector) RecordLookup(source string) {
	c.update(func() {
		if source == "" {
			c.misses++
			return
		}
		if c.lookups == nil {
			c.lookups = make(map[string]uint64)
		}
		c.lookups[source]++
	})
}

func (c *Collector) update(mutate func()) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	mutate()
}

func (c *Collector) updateLayout(layoutID string, mutate func(*LayoutMetrics, time.Time)) {
	now := time.Now()
	c.update(func() {
		if c.layouts == nil {
			c.layouts = make(map[string]*LayoutMetrics)
		}
		m, exists := c.layouts[layoutID]
		if !exists {
			m = &LayoutMetrics{LayoutID: layoutID}
			c.layouts[layoutID] = m
		}
		mutate(m, now)
	})
}

// Snapshot returns the current counters for serialization or display.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := Snapshot{Enabled: c.enabled}
	if !c.enabled {
		return snap
	}
	snap.Started = c.started
	snap.Totals.ParseFailures = c.parseFailures
	snap.Lookups.Misses = c.misses
	if len(c.lookups) > 0 {
		snap.Lookups.Hits = make(map[string]uint64, len(c.lookups))
		for source, n := range c.lookups {
			snap.Lookups.Hits[source] = n
		}
	}
	if len(c.layouts) == 0 {
		return snap
	}
	snap.Layouts = make([]LayoutMetrics, 0, len(c.layouts))
	for _, m := range c.layouts {
		clone := *m
		snap.Layouts = append(snap.Layouts, clone)
		snap.Totals.Applied += clone.Applied
		snap.Totals.AutoApplied += clone.AutoApplied
		snap.Totals.DryRuns += clone.DryRuns
		snap.Totals.Errors += clone.Errors
	}
	sort.Slice(snap.Layouts, func(i, j int) bool {
		return snap.Layouts[i].LayoutID < snap.Layouts[j].LayoutID
	})
	return snap
}
