package model

import (
	"fmt"
	"time"
)

// Window names a date range over which aggregates are recomputed.
type Window string

// Supported windows.
const (
	WindowAll    Window = "all"
	WindowLast30 Window = "last_30"
	WindowLast90 Window = "last_90"
)

// Windows lists every window in the order a daily update processes them.
var Windows = []Window{WindowLast30, WindowLast90, WindowAll}

// ParseWindow validates a window name.
func ParseWindow(s string) (Window, error) {
	switch w := Window(s); w {
	case WindowAll, WindowLast30, WindowLast90:
		return w, nil
	default:
		return "", fmt.Errorf("unknown window %q", s)
	}
}

// Days returns the trailing length of the window, or 0 for the unbounded window.
func (w Window) Days() int {
	switch w {
	case WindowLast30:
		return 30
	case WindowLast90:
		return 90
	default:
		return 0
	}
}

// Trailing reports whether the window is a fixed trailing range.
func (w Window) Trailing() bool { return w.Days() > 0 }

// Start returns the first day of a trailing window ending at end.
// The second result is false for the unbounded window.
func (w Window) Start(end time.Time) (time.Time, bool) {
	days := w.Days()
	if days == 0 {
		return time.Time{}, false
	}
	return Day(end).AddDate(0, 0, -(days - 1)), true
}

func (w Window) String() string { return string(w) }
