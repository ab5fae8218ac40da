package layout

import (
	"fmt"

	"github.com/hyprpal/hyprslot/internal/layout/expr"
)

// Slot is a named window placement whose fields are slot expressions
// evaluated against a monitor work area.
type Slot struct {
	ID         string
	Label      string
	Collection string
	Group      string
	// Monitor restricts the slot to one output when set.
	Monitor string
	X       string
	Y       string
	Width   string
	Height  string
}

// Compiled holds the parsed expressions of a slot.
type Compiled struct {
	X      expr.Node
	Y      expr.Node
	Width  expr.Node
	Height expr.Node
}

// Compile parses the four slot fields. The returned error names the field.
func (s Slot) Compile() (Compiled, error) {
	var c Compiled
	fields := []struct {
		name string
		src  string
		dst  *expr.Node
	}{
		{"x", s.X, &c.X},
		{"y", s.Y, &c.Y},
		{"width", s.Width, &c.Width},
		{"height", s.Height, &c.Height},
	}
	for _, f := range fields {
		n, err := expr.Parse(f.src)
		if err != nil {
			return Compiled{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = n
	}
	return c, nil
}

// Resolve evaluates the slot inside workArea. X and Y are offsets from the
// work area origin; every component is a whole pixel.
func (s Slot) Resolve(workArea Rect) (Rect, error) {
	c, err := s.Compile()
	if err != nil {
		return Rect{}, fmt.Errorf("slot %q: %w", s.ID, err)
	}
	return c.Resolve(workArea), nil
}

// Resolve evaluates compiled expressions inside workArea.
func (c Compiled) Resolve(workArea Rect) Rect {
	return Rect{
		X:      workArea.X + float64(expr.Evaluate(c.X, workArea.Width)),
		Y:      workArea.Y + float64(expr.Evaluate(c.Y, workArea.Height)),
		Width:  float64(expr.Evaluate(c.Width, workArea.Width)),
		Height: float64(expr.Evaluate(c.Height, workArea.Height)),
	}
}
