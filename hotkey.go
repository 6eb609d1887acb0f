package main

import (
	"sort"
	"strings"
	"sync"
)

// Hotkey is a single trigger token plus a modifier set. The JSON shape
// matches the settings file layout: modifiers is a sorted list drawn from
// "ctrl", "alt", "shift"; the key is a lowercase character, a digit, or a
// named key like "f4" or "space".
type Hotkey struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers"`
}

// ModifierSet is the held-modifier state tracked by the key dispatcher.
type ModifierSet struct {
	Ctrl  bool
	Alt   bool
	Shift bool
}

func (m ModifierSet) equal(o ModifierSet) bool {
	return m.Ctrl == o.Ctrl && m.Alt == o.Alt && m.Shift == o.Shift
}

func newHotkey(key string, mods ModifierSet) Hotkey {
	var list []string
	if mods.Alt {
		list = append(list, "alt")
	}
	if mods.Ctrl {
		list = append(list, "ctrl")
	}
	if mods.Shift {
		list = append(list, "shift")
	}
	sort.Strings(list)
	return Hotkey{Key: strings.ToLower(key), Modifiers: list}
}

func (h Hotkey) modifierSet() ModifierSet {
	var m ModifierSet
	for _, mod := range h.Modifiers {
		switch mod {
		case "ctrl":
			m.Ctrl = true
		case "alt":
			m.Alt = true
		case "shift":
			m.Shift = true
		}
	}
	return m
}

// Equal reports hotkey identity: equal modifier sets and the same trigger,
// case-insensitively for character keys.
func (h Hotkey) Equal(o Hotkey) bool {
	return h.modifierSet().equal(o.modifierSet()) &&
		strings.EqualFold(h.Key, o.Key)
}

// Matches reports whether a pressed trigger token under the currently held
// modifiers fires this hotkey. The modifier sets must be exactly equal; a
// hotkey wanting {ctrl} does not fire while ctrl+shift are held.
func (h Hotkey) Matches(token string, held ModifierSet) bool {
	if token == "" || h.Key == "" {
		return false
	}
	if !h.modifierSet().equal(held) {
		return false
	}
	return strings.EqualFold(h.Key, token)
}

// String renders the combo for display, e.g. "Ctrl+Shift+L".
func (h Hotkey) String() string {
	parts := make([]string, 0, len(h.Modifiers)+1)
	for _, mod := range h.Modifiers {
		if mod == "" {
			continue
		}
		parts = append(parts, strings.ToUpper(mod[:1])+mod[1:])
	}
	parts = append(parts, strings.ToUpper(h.Key))
	return strings.Join(parts, "+")
}

func hotkeyLabel(h *Hotkey) string {
	if h == nil || h.Key == "" {
		return "(none)"
	}
	return h.String()
}

// KeyEvent is one press or release delivered by the physical key source.
// Token is empty for keys the router has no use for; Modifier is set for
// ctrl/alt/shift variants so the dispatcher can track held state without
// caring which side of the keyboard was hit.
type KeyEvent struct {
	Press    bool
	VK       uint32
	Token    string
	Modifier string // "ctrl", "alt", "shift" or ""
}

const cancelToken = "esc"

// groupTargetPrefix marks a recording target as a group name rather than a
// level number, mirroring the settings-file convention.
const groupTargetPrefix = "grp:"

// HotkeyRouter consumes the key-event stream on its own goroutine. In live
// mode it tracks held modifiers and reports each non-modifier press as a
// chord; in recording mode the live path is suspended entirely and the
// first non-modifier press (or Esc) ends the recording. Only one of the
// two behaviors is ever active, so recording a combination can never be
// misread as a live hotkey firing.
type HotkeyRouter struct {
	mu        sync.Mutex
	recording bool
	recTarget string
	recMods   ModifierSet

	// onChord and the recording callbacks are invoked from the dispatcher
	// goroutine; the wiring in Manager immediately marshals them onto the
	// owner thread.
	onChord    func(token string, held ModifierSet)
	onRecorded func(target string, hk Hotkey)
	onCanceled func(target string)

	quit chan struct{}
	done chan struct{}
}

func newHotkeyRouter(onChord func(string, ModifierSet), onRecorded func(string, Hotkey), onCanceled func(string)) *HotkeyRouter {
	return &HotkeyRouter{
		onChord:    onChord,
		onRecorded: onRecorded,
		onCanceled: onCanceled,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// StartRecording switches the dispatcher into record mode for the given
// target (a level number, or a group name with the "grp:" prefix). Returns
// false when a recording is already in flight.
func (r *HotkeyRouter) StartRecording(target string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return false
	}
	r.recording = true
	r.recTarget = target
	r.recMods = ModifierSet{}
	return true
}

// CancelRecording aborts an in-flight recording, restoring live dispatch.
func (r *HotkeyRouter) CancelRecording() {
	r.mu.Lock()
	target := r.recTarget
	active := r.recording
	r.recording = false
	r.recTarget = ""
	r.mu.Unlock()
	if active && r.onCanceled != nil {
		r.onCanceled(target)
	}
}

func (r *HotkeyRouter) RecordingTarget() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recTarget, r.recording
}

func (r *HotkeyRouter) Stop() {
	select {
	case <-r.quit:
	default:
		close(r.quit)
	}
	<-r.done
}

// Run drains the event channel until Stop is called or the channel closes.
// It owns the held-modifier state; nothing else reads or writes it.
func (r *HotkeyRouter) Run(events <-chan KeyEvent) {
	defer close(r.done)
	var held ModifierSet
	for {
		select {
		case <-r.quit:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.handle(ev, &held)
		}
	}
}

func (r *HotkeyRouter) handle(ev KeyEvent, held *ModifierSet) {
	if ev.Modifier != "" {
		setModifier(held, ev.Modifier, ev.Press)
		if ev.Press {
			r.mu.Lock()
			if r.recording {
				setModifier(&r.recMods, ev.Modifier, true)
			}
			r.mu.Unlock()
		}
		return
	}
	if !ev.Press {
		return
	}

	r.mu.Lock()
	recording := r.recording
	target := r.recTarget
	mods := r.recMods
	r.mu.Unlock()

	if recording {
		if ev.Token == cancelToken {
			r.CancelRecording()
			return
		}
		if ev.Token == "" {
			return // unmapped key; keep recording
		}
		r.mu.Lock()
		r.recording = false
		r.recTarget = ""
		r.mu.Unlock()
		if r.onRecorded != nil {
			r.onRecorded(target, newHotkey(ev.Token, mods))
		}
		return
	}

	if ev.Token != "" && r.onChord != nil {
		r.onChord(ev.Token, *held)
	}
}

func setModifier(m *ModifierSet, name string, down bool) {
	switch name {
	case "ctrl":
		m.Ctrl = down
	case "alt":
		m.Alt = down
	case "shift":
		m.Shift = down
	}
}
