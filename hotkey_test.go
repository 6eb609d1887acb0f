package main

import (
	"reflect"
	"testing"
	"time"
)

func TestHotkeyMatchesExactModifiers(t *testing.T) {
	hk := Hotkey{Key: "l", Modifiers: []string{"ctrl"}}

	tests := []struct {
		name  string
		token string
		held  ModifierSet
		want  bool
	}{
		{"exact", "l", ModifierSet{Ctrl: true}, true},
		{"case folded", "L", ModifierSet{Ctrl: true}, true},
		{"superset held", "l", ModifierSet{Ctrl: true, Shift: true}, false},
		{"subset held", "l", ModifierSet{}, false},
		{"wrong modifier", "l", ModifierSet{Alt: true}, false},
		{"wrong key", "k", ModifierSet{Ctrl: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hk.Matches(tt.token, tt.held); got != tt.want {
				t.Errorf("Matches(%q, %+v) = %v, want %v", tt.token, tt.held, got, tt.want)
			}
		})
	}
}

func TestHotkeyBareKey(t *testing.T) {
	hk := Hotkey{Key: "f4"}
	if !hk.Matches("f4", ModifierSet{}) {
		t.Error("bare f4 did not match with no modifiers held")
	}
	if hk.Matches("f4", ModifierSet{Ctrl: true}) {
		t.Error("bare f4 matched while ctrl held")
	}
}

func TestHotkeyEqual(t *testing.T) {
	a := Hotkey{Key: "l", Modifiers: []string{"ctrl", "shift"}}
	b := Hotkey{Key: "L", Modifiers: []string{"shift", "ctrl"}}
	if !a.Equal(b) {
		t.Error("modifier order and key case must not affect equality")
	}
	c := Hotkey{Key: "l", Modifiers: []string{"ctrl"}}
	if a.Equal(c) {
		t.Error("different modifier sets reported equal")
	}
}

func TestNewHotkeySortsModifiers(t *testing.T) {
	hk := newHotkey("L", ModifierSet{Shift: true, Ctrl: true})
	if hk.Key != "l" {
		t.Errorf("key = %q, want lowercased l", hk.Key)
	}
	if !reflect.DeepEqual(hk.Modifiers, []string{"ctrl", "shift"}) {
		t.Errorf("modifiers = %v, want sorted [ctrl shift]", hk.Modifiers)
	}
}

func TestHotkeyString(t *testing.T) {
	tests := []struct {
		hk   Hotkey
		want string
	}{
		{Hotkey{Key: "l", Modifiers: []string{"ctrl", "shift"}}, "Ctrl+Shift+L"},
		{Hotkey{Key: "f4"}, "F4"},
		{Hotkey{Key: "space", Modifiers: []string{"alt"}}, "Alt+SPACE"},
	}
	for _, tt := range tests {
		if got := tt.hk.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestHotkeyLabel(t *testing.T) {
	if got := hotkeyLabel(nil); got != "(none)" {
		t.Errorf("hotkeyLabel(nil) = %q", got)
	}
	if got := hotkeyLabel(&Hotkey{Key: "k", Modifiers: []string{"ctrl"}}); got != "Ctrl+K" {
		t.Errorf("hotkeyLabel = %q, want Ctrl+K", got)
	}
}

// routerHarness collects callback invocations from a running router.
type routerHarness struct {
	events   chan KeyEvent
	router   *HotkeyRouter
	chords   chan string
	recorded chan Hotkey
	canceled chan string
}

func newRouterHarness() *routerHarness {
	h := &routerHarness{
		events:   make(chan KeyEvent, 16),
		chords:   make(chan string, 16),
		recorded: make(chan Hotkey, 4),
		canceled: make(chan string, 4),
	}
	h.router = newHotkeyRouter(
		func(token string, held ModifierSet) {
			label := token
			if held.Ctrl {
				label = "ctrl+" + label
			}
			if held.Shift {
				label = "shift+" + label
			}
			h.chords <- label
		},
		func(target string, hk Hotkey) { h.recorded <- hk },
		func(target string) { h.canceled <- target },
	)
	go h.router.Run(h.events)
	return h
}

func (h *routerHarness) press(token, modifier string) {
	h.events <- KeyEvent{Press: true, Token: token, Modifier: modifier}
}

func (h *routerHarness) release(token, modifier string) {
	h.events <- KeyEvent{Press: false, Token: token, Modifier: modifier}
}

func waitFor[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func expectQuiet[T any](t *testing.T, ch chan T, what string) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected %s: %v", what, v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRouterDispatchTracksHeldModifiers(t *testing.T) {
	h := newRouterHarness()
	defer h.router.Stop()

	h.press("", "ctrl")
	h.press("l", "")
	if got := waitFor(t, h.chords, "chord"); got != "ctrl+l" {
		t.Errorf("chord = %q, want ctrl+l", got)
	}

	h.release("", "ctrl")
	h.press("l", "")
	if got := waitFor(t, h.chords, "chord"); got != "l" {
		t.Errorf("chord after ctrl release = %q, want l", got)
	}
}

func TestRouterRecordingSuppressesDispatch(t *testing.T) {
	h := newRouterHarness()
	defer h.router.Stop()

	if !h.router.StartRecording("12") {
		t.Fatal("StartRecording returned false")
	}
	h.press("", "ctrl")
	h.press("", "shift")
	h.press("k", "")

	hk := waitFor(t, h.recorded, "recorded hotkey")
	want := Hotkey{Key: "k", Modifiers: []string{"ctrl", "shift"}}
	if !hk.Equal(want) {
		t.Errorf("recorded %+v, want %+v", hk, want)
	}
	expectQuiet(t, h.chords, "chord during recording")

	if _, active := h.router.RecordingTarget(); active {
		t.Error("router still recording after capture")
	}
}

func TestRouterRecordingEscCancels(t *testing.T) {
	h := newRouterHarness()
	defer h.router.Stop()

	h.router.StartRecording("3")
	h.press(cancelToken, "")

	waitFor(t, h.canceled, "cancel callback")
	expectQuiet(t, h.recorded, "recorded hotkey after cancel")
	if _, active := h.router.RecordingTarget(); active {
		t.Error("router still recording after Esc")
	}
}

func TestRouterSecondRecordingRejected(t *testing.T) {
	h := newRouterHarness()
	defer h.router.Stop()

	if !h.router.StartRecording("1") {
		t.Fatal("first StartRecording returned false")
	}
	if h.router.StartRecording("2") {
		t.Error("second StartRecording succeeded while one was in flight")
	}
	target, _ := h.router.RecordingTarget()
	if target != "1" {
		t.Errorf("recording target = %q, want the original 1", target)
	}
}

func TestRouterUnmappedKeyKeepsRecording(t *testing.T) {
	h := newRouterHarness()
	defer h.router.Stop()

	h.router.StartRecording("1")
	h.press("", "") // a key outside the vocabulary
	h.press("x", "")

	hk := waitFor(t, h.recorded, "recorded hotkey")
	if hk.Key != "x" {
		t.Errorf("recorded key = %q, want x", hk.Key)
	}
}
