package layout

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrBatchUnsupported is returned when a dispatcher cannot batch commands.
var ErrBatchUnsupported = errors.New("batch dispatch unsupported")

// Dispatcher executes hyprctl dispatch commands.
type Dispatcher interface {
	Dispatch(args ...string) error
}

// BatchDispatcher executes several dispatch commands in one round trip.
type BatchDispatcher interface {
	Dispatcher
	DispatchBatch(commands [][]string) error
}

// Plan is a collection of sequential hyprctl dispatch commands.
type Plan struct {
	Commands [][]string
}

// Add appends a dispatch invocation.
func (p *Plan) Add(args ...string) {
	p.Commands = append(p.Commands, args)
}

// Merge merges other plan into this one.
func (p *Plan) Merge(other Plan) {
	p.Commands = append(p.Commands, other.Commands...)
}

// Empty reports whether the plan has no commands.
func (p Plan) Empty() bool {
	return len(p.Commands) == 0
}

// FloatAndPlace ensures the client is floating and moved/resized to rect.
func FloatAndPlace(address string, rect Rect, floating bool) Plan {
	var p Plan
	addr := fmt.Sprintf("address:%s", address)
	if !floating {
		p.Add("setfloating", addr)
	}
	p.Add("focuswindow", addr)
	p.Add("movewindowpixel", "exact", pixel(rect.X), pixel(rect.Y)+","+addr)
	p.Add("resizewindowpixel", "exact", pixel(rect.Width), pixel(rect.Height)+","+addr)
	return p
}

// Unmaximize focuses the client and clears its fullscreen and maximized state.
func Unmaximize(address string) Plan {
	var p Plan
	p.Add("focuswindow", fmt.Sprintf("address:%s", address))
	p.Add("fullscreenstate", "0", "0")
	return p
}

// Execute applies the plan, batching when the dispatcher supports it.
func (p Plan) Execute(d Dispatcher) error {
	if p.Empty() {
		return nil
	}
	if batcher, ok := d.(BatchDispatcher); ok {
		err := batcher.DispatchBatch(p.Commands)
		if err == nil || !errors.Is(err, ErrBatchUnsupported) {
			return err
		}
	}
	for _, cmd := range p.Commands {
		if err := d.Dispatch(cmd...); err != nil {
			return fmt.Errorf("dispatch %s: %w", strings.Join(cmd, " "), err)
		}
	}
	return nil
}

func pixel(v float64) string {
	return fmt.Sprintf("%d", int(math.Round(v)))
}
