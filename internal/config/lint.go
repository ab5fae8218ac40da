package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hyprpal/hyprslot/internal/layout/expr"
)

// LintError describes a configuration problem at a YAML path.
type LintError struct {
	Path    string
	Message string
}

func (e LintError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// LintFile parses the file at path and lints it. Decode failures are
// returned as the error; semantic problems come back as lint errors.
func LintFile(path string) ([]LintError, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg.Lint(), nil
}

// Lint reports every problem found in the configuration.
func (c *Config) Lint() []LintError {
	var errs []LintError
	add := func(path, format string, args ...any) {
		errs = append(errs, LintError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if len(c.Collections) == 0 {
		add("collections", "config must define at least one collection")
	}
	for name, insets := range c.ManualReserved {
		if name == "" {
			add("manualReserved", "monitor name cannot be empty")
		}
		if insets.Negative() {
			add(fmt.Sprintf("manualReserved.%s", name), "insets cannot be negative")
		}
	}

	collections := map[string]struct{}{}
	seenIDs := map[string]string{}
	for ci, col := range c.Collections {
		colPath := fmt.Sprintf("collections[%d]", ci)
		if strings.TrimSpace(col.Name) == "" {
			add(colPath+".name", "collection name cannot be empty")
		} else if _, dup := collections[col.Name]; dup {
			add(colPath+".name", "duplicate collection %q", col.Name)
		}
		collections[col.Name] = struct{}{}

		for gi, grp := range col.Groups {
			grpPath := fmt.Sprintf("%s.groups[%d]", colPath, gi)
			if strings.TrimSpace(grp.Name) == "" {
				add(grpPath+".name", "group name cannot be empty")
			}
			if len(grp.Layouts) == 0 {
				add(grpPath+".layouts", "group must define at least one layout")
			}
			for li, l := range grp.Layouts {
				layoutPath := fmt.Sprintf("%s.layouts[%d]", grpPath, li)
				if l.ID == "" {
					add(layoutPath, "layout needs an id or a label")
				} else if prev, dup := seenIDs[l.ID]; dup {
					add(layoutPath+".id", "duplicate layout id %q (first defined at %s)", l.ID, prev)
				} else {
					seenIDs[l.ID] = layoutPath
				}
				lintExpression(layoutPath+".x", l.X, add)
				lintExpression(layoutPath+".y", l.Y, add)
				lintExpression(layoutPath+".width", l.Width, add)
				lintExpression(layoutPath+".height", l.Height, add)
			}
		}
	}

	if c.ActiveCollection != "" {
		if _, ok := collections[c.ActiveCollection]; !ok {
			add("activeCollection", "unknown collection %q", c.ActiveCollection)
		}
	}
	return errs
}

func lintExpression(path, source string, add func(path, format string, args ...any)) {
	if _, err := expr.Parse(source); err != nil {
		add(path, "%v", err)
	}
}
