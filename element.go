package main

import "time"

// ControlType mirrors the UI Automation control type ids the scanner cares
// about.
type ControlType int

const (
	ControlButton   ControlType = 50000
	ControlEdit     ControlType = 50004
	ControlTree     ControlType = 50023
	ControlTreeItem ControlType = 50024
)

// ToggleVal mirrors the UIA ToggleState enum. ToggleUnknown means the
// control does not expose the Toggle pattern (or the read failed).
type ToggleVal int

const (
	ToggleOff           ToggleVal = 0
	ToggleOn            ToggleVal = 1
	ToggleIndeterminate ToggleVal = 2
	ToggleUnknown       ToggleVal = -1
)

// Element is a weak, time-bounded handle onto one node of the host's
// accessibility tree. The tree is owned by a foreign process and can be
// rebuilt at any moment, so every method performs a live query and may
// fail; a successful call never implies the next one will succeed. Handles
// are never persisted and are discarded wholesale on rescan.
type Element interface {
	// Name returns the UIA name property (pywinauto's window_text).
	Name() (string, error)
	AutomationID() (string, error)
	ControlType() (ControlType, error)
	// Value returns the Value-pattern text, or "" when the pattern is
	// absent.
	Value() (string, error)
	Children() ([]Element, error)
	Invoke() error
	ToggleState() ToggleVal
	// Release frees the underlying COM reference. Safe to call on handles
	// that already went stale.
	Release()
}

// Level identifies one toggleable visibility target as seen by a single
// scan. Number is only unique within that scan; Name is the key used to
// carry user metadata across rescans. The element handles are owned by the
// cache and replaced wholesale whenever a rescan runs.
type Level struct {
	Number string
	Name   string

	item   Element // the tree item; nil only in tests
	toggle Element // visibility button seen at scan time; may be nil
}

// Togglable reports whether the scan saw a visibility button for this
// level. A false value only means the item needs a rescan before it can be
// toggled, not that it is broken.
func (l *Level) Togglable() bool { return l.toggle != nil }

func findLevel(levels []Level, number string) *Level {
	for i := range levels {
		if levels[i].Number == number {
			return &levels[i]
		}
	}
	return nil
}

// boundedProbe runs attach out-of-line and abandons it after the timeout;
// an attach against a dead window can hang indefinitely. An abandoned
// attach may still complete later, so its references are drained and
// released in the background rather than left sitting in the channel.
func boundedProbe(label string, timeout time.Duration, attach func() (panel, tree Element)) (Element, Element, bool) {
	type result struct {
		panel Element
		tree  Element
	}
	resCh := make(chan result, 1)
	go func() {
		defer safeDefer("candidate probe")
		p, t := attach()
		resCh <- result{panel: p, tree: t}
	}()
	select {
	case res := <-resCh:
		return res.panel, res.tree, res.tree != nil
	case <-time.After(timeout):
		if logger != nil {
			logger.Printf("[LOCATE] candidate %s timed out", label)
		}
		go func() {
			res := <-resCh
			if res.tree != nil {
				res.tree.Release()
			}
			if res.panel != nil {
				res.panel.Release()
			}
		}()
		return nil, nil, false
	}
}
