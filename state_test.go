package main

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fakeLocator(tree Element, guid string, err error) locateFunc {
	return func(cached string) (Element, Element, string, error) {
		if err != nil {
			return nil, nil, "", err
		}
		return &fakeElement{name: "panel"}, tree, guid, nil
	}
}

func startManager(t *testing.T, locate locateFunc) *Manager {
	t.Helper()
	cfg := defaultConfig()
	store := newSettingsStore(filepath.Join(t.TempDir(), "settings.json"))
	m := newManager(&cfg, store, nil, locate)
	go m.loop()
	t.Cleanup(m.stop)
	return m
}

func waitStatus(t *testing.T, m *Manager, substr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var last string
	for time.Now().Before(deadline) {
		m.call(func() { last = m.statusMsg })
		if strings.Contains(last, substr) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("status never contained %q, last was %q", substr, last)
}

func TestManagerConnectAndScan(t *testing.T) {
	tree := fakeTree(fakeItem("1", "Stock", true), fakeItem("2", "Fixtures", true))
	m := startManager(t, fakeLocator(tree, "a1b2c3d4", nil))

	m.call(m.connectAndScan)

	var sv StatusView
	m.call(func() { sv = m.statusView() })
	if sv.Session != "connected" {
		t.Fatalf("session = %s, want connected", sv.Session)
	}
	if len(sv.Levels) != 2 {
		t.Fatalf("levels = %d, want 2", len(sv.Levels))
	}

	// The discovered GUID is persisted for the next fast-path lookup.
	var guid string
	m.call(func() { guid = m.settings.PanelGUID })
	if guid != "a1b2c3d4" {
		t.Errorf("PanelGUID = %q, want a1b2c3d4", guid)
	}
}

func TestManagerConnectFailure(t *testing.T) {
	m := startManager(t, fakeLocator(nil, "", errors.New("no Mastercam window found")))
	m.call(m.connectAndScan)

	var sv StatusView
	m.call(func() { sv = m.statusView() })
	if sv.Session != "disconnected" {
		t.Errorf("session = %s, want disconnected", sv.Session)
	}
	if !strings.Contains(sv.Message, "no Mastercam window") {
		t.Errorf("message = %q, want the locate error surfaced", sv.Message)
	}
}

func TestManagerRefreshReconcilesHotkeys(t *testing.T) {
	tree := fakeTree(fakeItem("10", "Fixtures", true), fakeItem("11", "Clamps", true))
	m := startManager(t, fakeLocator(tree, "", nil))
	m.call(m.connectAndScan)

	m.call(func() {
		m.settings.Hotkeys["10"] = Hotkey{Key: "f", Modifiers: []string{"ctrl"}}
	})

	// The host renumbers Fixtures 10 -> 20; the refresh follows the name.
	tree.children = []*fakeElement{fakeItem("20", "Fixtures", true), fakeItem("11", "Clamps", true)}
	m.call(m.connectAndScan)

	var hk Hotkey
	var hasOld bool
	m.call(func() {
		hk = m.settings.Hotkeys["20"]
		_, hasOld = m.settings.Hotkeys["10"]
	})
	if hasOld {
		t.Error("hotkey still on the old number 10")
	}
	if hk.Key != "f" {
		t.Errorf("hotkey on 20 = %+v, want ctrl+f", hk)
	}
}

func TestManagerHotkeyToggleRetriesAfterRescan(t *testing.T) {
	staleItem := fakeItem("1", "Stock", true)
	staleItem.children[2].onInvoke = nil // invokes succeed but nothing moves
	tree := fakeTree(staleItem)
	m := startManager(t, fakeLocator(tree, "", nil))
	m.call(m.connectAndScan)

	// Fresh handles appear before the automatic rescan runs.
	tree.children = []*fakeElement{fakeItem("1", "Stock", true)}

	m.call(func() { m.hotkeyToggle("1", true) })
	waitStatus(t, m, "Toggled level 1")

	var sv StatusView
	m.call(func() { sv = m.statusView() })
	if sv.Stale {
		t.Error("stale flag raised after a successful retry")
	}
}

func TestManagerHotkeyToggleStaleAfterFailedRescan(t *testing.T) {
	staleItem := fakeItem("1", "Stock", true)
	staleItem.children[2].onInvoke = nil
	tree := fakeTree(staleItem)
	m := startManager(t, fakeLocator(tree, "", nil))
	m.call(m.connectAndScan)

	// The rescan finds nothing: the tree instance is dead.
	tree.childErr = errors.New("element not available")

	m.call(func() { m.hotkeyToggle("1", true) })
	waitStatus(t, m, "stale")

	var sv StatusView
	m.call(func() { sv = m.statusView() })
	if sv.Session != "stale" || !sv.Stale {
		t.Errorf("session = %s stale = %v, want stale session", sv.Session, sv.Stale)
	}
}

func TestManagerDispatchPrefersGroups(t *testing.T) {
	lone := fakeItem("1", "Stock", true)
	memberA := fakeItem("2", "Clamps", true)
	memberB := fakeItem("3", "Vise", true)
	tree := fakeTree(lone, memberA, memberB)
	m := startManager(t, fakeLocator(tree, "", nil))
	m.call(m.connectAndScan)

	chord := Hotkey{Key: "g", Modifiers: []string{"ctrl"}}
	m.call(func() {
		m.settings.Hotkeys["1"] = chord
		m.settings.Groups["Clamps + Vise"] = &Group{
			Levels: []string{"2", "3"},
			Hotkey: &Hotkey{Key: "g", Modifiers: []string{"ctrl"}},
		}
	})

	m.call(func() { m.dispatchChord("g", ModifierSet{Ctrl: true}) })
	waitStatus(t, m, "Toggled group")

	if lone.children[2].toggle != ToggleOn {
		t.Error("level hotkey fired even though a group owned the chord")
	}
	if memberA.children[2].toggle != ToggleOff || memberB.children[2].toggle != ToggleOff {
		t.Error("group members were not toggled")
	}
}

func TestManagerDispatchExactModifiers(t *testing.T) {
	item := fakeItem("1", "Stock", true)
	tree := fakeTree(item)
	m := startManager(t, fakeLocator(tree, "", nil))
	m.call(m.connectAndScan)

	m.call(func() {
		m.settings.Hotkeys["1"] = Hotkey{Key: "l", Modifiers: []string{"ctrl"}}
	})

	m.call(func() { m.dispatchChord("l", ModifierSet{Ctrl: true, Shift: true}) })
	if item.children[2].toggle != ToggleOn {
		t.Error("chord fired with extra shift held")
	}

	m.call(func() { m.dispatchChord("l", ModifierSet{Ctrl: true}) })
	if item.children[2].toggle != ToggleOff {
		t.Error("exact chord did not fire")
	}
}

func TestManagerRecordingConflictRejected(t *testing.T) {
	tree := fakeTree(fakeItem("1", "Stock", true), fakeItem("2", "Fixtures", true))
	m := startManager(t, fakeLocator(tree, "", nil))
	m.call(m.connectAndScan)

	taken := Hotkey{Key: "l", Modifiers: []string{"ctrl"}}
	m.call(func() { m.settings.Hotkeys["1"] = taken })

	m.call(func() { m.finishRecording("2", Hotkey{Key: "L", Modifiers: []string{"ctrl"}}) })

	var sv StatusView
	var assigned bool
	m.call(func() {
		sv = m.statusView()
		_, assigned = m.settings.Hotkeys["2"]
	})
	if assigned {
		t.Error("conflicting hotkey was assigned anyway")
	}
	if !strings.Contains(sv.Message, "Conflict") || !strings.Contains(sv.Message, "level 1") {
		t.Errorf("message = %q, want conflict naming level 1", sv.Message)
	}

	// Re-recording the same combo onto its current owner is not a
	// conflict.
	m.call(func() { m.finishRecording("1", taken) })
	var still bool
	m.call(func() { _, still = m.settings.Hotkeys["1"] })
	if !still {
		t.Error("re-recording onto the owner removed the assignment")
	}
}

func TestManagerGroupHotkeyAssignAndClear(t *testing.T) {
	tree := fakeTree(fakeItem("1", "A", true), fakeItem("2", "B", true))
	m := startManager(t, fakeLocator(tree, "", nil))
	m.call(m.connectAndScan)

	m.call(func() {
		m.settings.Groups["A + B"] = &Group{Levels: []string{"1", "2"}}
	})

	m.call(func() { m.finishRecording("grp:A + B", Hotkey{Key: "g", Modifiers: []string{"alt"}}) })
	var hk *Hotkey
	m.call(func() { hk = m.settings.Groups["A + B"].Hotkey })
	if hk == nil || hk.Key != "g" {
		t.Fatalf("group hotkey = %+v, want alt+g", hk)
	}

	var clearErr error
	m.call(func() { clearErr = m.clearHotkey("grp:A + B") })
	if clearErr != nil {
		t.Fatalf("clearHotkey: %v", clearErr)
	}
	m.call(func() { hk = m.settings.Groups["A + B"].Hotkey })
	if hk != nil {
		t.Error("group hotkey not cleared")
	}
}

func TestManagerToggleNumbersCountsMissing(t *testing.T) {
	tree := fakeTree(fakeItem("1", "Stock", true))
	m := startManager(t, fakeLocator(tree, "", nil))
	m.call(m.connectAndScan)

	var toggled []string
	var failures int
	m.call(func() { toggled, failures = m.toggleNumbers([]string{"1", "99"}, "api") })
	if len(toggled) != 1 || toggled[0] != "1" {
		t.Errorf("toggled = %v, want [1]", toggled)
	}
	if failures != 1 {
		t.Errorf("failures = %d, want 1 for the missing level", failures)
	}
}

func TestManagerStartRecordingValidatesTarget(t *testing.T) {
	tree := fakeTree(fakeItem("1", "Stock", true))
	m := startManager(t, fakeLocator(tree, "", nil))
	m.call(m.connectAndScan)

	var err error
	m.call(func() { err = m.startRecording("grp:does-not-exist") })
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	m.call(func() { err = m.startRecording("1") })
	if err != nil {
		t.Fatalf("startRecording: %v", err)
	}
	if target, active := m.router.RecordingTarget(); !active || target != "1" {
		t.Errorf("recording target = %q active=%v", target, active)
	}
	m.router.CancelRecording()
}
