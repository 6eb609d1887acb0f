package main

import (
	"fmt"
	"sort"
	"strings"
)

const currentVersion = "1.2.0"

func safeDefer(where string) {
	if r := recover(); r != nil {
		if logger != nil {
			logger.Printf("[RECOVER] %s: %v", where, r)
		}
	}
}

// SessionState tracks the connection to the host panel.
type SessionState int

const (
	SessionDisconnected SessionState = iota
	SessionConnecting
	SessionConnected
	SessionStale
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionConnected:
		return "connected"
	case SessionStale:
		return "stale"
	default:
		return "disconnected"
	}
}

// locateFunc is the PanelLocator contract: given the cached panel GUID
// (may be empty), return the panel and tree handles plus the GUID that
// should be cached for the next fast-path lookup.
type locateFunc func(guid string) (panel, tree Element, discoveredGUID string, err error)

// Manager owns every piece of interactive state: the cached level list,
// the hotkey and group maps, and the panel session. All mutation happens
// on the single goroutine running loop(); everything else (the key
// dispatcher, HTTP handlers, health probes) posts closures through runOn
// or call and never touches the fields directly. Background workers only
// compute; their results come back through the same funnel.
type Manager struct {
	cfg   *Config
	store *SettingsStore
	hist  *History

	ops  chan func()
	quit chan struct{}

	locate locateFunc

	router   *HotkeyRouter
	notifier *staleNotifier

	// Owner-goroutine state below.
	settings   Settings
	levels     []Level
	panel      Element
	tree       Element
	session    SessionState
	statusMsg  string
	rescanning bool
	remapTotal int

	// Handles a background worker may still be touching. While pinned is
	// non-zero, swapped-out handles park in retired instead of releasing.
	pinned  int
	retired []Element
}

func newManager(cfg *Config, store *SettingsStore, hist *History, locate locateFunc) *Manager {
	m := &Manager{
		cfg:      cfg,
		store:    store,
		hist:     hist,
		ops:      make(chan func(), 64),
		quit:     make(chan struct{}),
		locate:   locate,
		notifier: newStaleNotifier(),
		settings: defaultSettings(),
	}
	if store != nil {
		m.settings = store.Load()
	}
	m.router = newHotkeyRouter(
		func(token string, held ModifierSet) {
			m.runOn(func() { m.dispatchChord(token, held) })
		},
		func(target string, hk Hotkey) {
			m.runOn(func() { m.finishRecording(target, hk) })
		},
		func(target string) {
			m.runOn(func() { m.cancelRecordingUI(target) })
		},
	)
	return m
}

// runOn posts a closure to the owner goroutine. Never blocks past
// shutdown.
func (m *Manager) runOn(fn func()) {
	select {
	case m.ops <- fn:
	case <-m.quit:
	}
}

// call runs fn on the owner goroutine and waits for it. Must not be
// called from the owner goroutine itself.
func (m *Manager) call(fn func()) {
	done := make(chan struct{})
	m.runOn(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
	case <-m.quit:
	}
}

func (m *Manager) loop() {
	defer safeDefer("manager loop")
	for {
		select {
		case fn := <-m.ops:
			fn()
		case <-m.quit:
			return
		}
	}
}

func (m *Manager) stop() {
	m.call(func() {
		m.saveSettings()
		m.retireLevels(m.levels)
		m.levels = nil
		m.retire(m.tree)
		m.tree = nil
		m.retire(m.panel)
		m.panel = nil
		m.session = SessionDisconnected
	})
	close(m.quit)
}

// pinHandles marks a background worker as holding element handles. Both
// pin and unpin run on the owner goroutine; releasing a COM element while
// a worker is mid-call on it frees the pointer under the call, so every
// owner-side release goes through retire instead.
func (m *Manager) pinHandles() {
	m.pinned++
}

func (m *Manager) unpinHandles() {
	m.pinned--
	if m.pinned > 0 {
		return
	}
	for _, el := range m.retired {
		el.Release()
	}
	m.retired = nil
}

// retire releases a handle now, or parks it until the last pinned worker
// reports back.
func (m *Manager) retire(el Element) {
	if el == nil {
		return
	}
	if m.pinned > 0 {
		m.retired = append(m.retired, el)
		return
	}
	el.Release()
}

func (m *Manager) retireLevels(levels []Level) {
	for i := range levels {
		m.retire(levels[i].item)
		m.retire(levels[i].toggle)
	}
}

func (m *Manager) saveSettings() {
	if m.store != nil {
		m.store.Save(m.settings)
	}
}

func (m *Manager) setStatus(msg string) {
	m.statusMsg = msg
	if logger != nil {
		logger.Printf("[STATE] %s (session=%s)", msg, m.session)
	}
	broadcast(map[string]interface{}{
		"session": m.session.String(),
		"message": msg,
		"stale":   m.notifier.current() == NotifyStale,
	})
}

// pushState broadcasts the full level/group view, used after anything
// that changes the table the UI shows.
func (m *Manager) pushState() {
	broadcast(map[string]interface{}{
		"session": m.session.String(),
		"message": m.statusMsg,
		"stale":   m.notifier.current() == NotifyStale,
		"levels":  m.levelViews(),
		"groups":  m.groupViews(),
	})
}

// ---------- Connection / rescan ----------

// connectAndScan is the user-facing Connect/Refresh entry point. A live
// tree gets the cheap rescan path first; only when that fails (or no
// session exists) does the full locate run.
func (m *Manager) connectAndScan() {
	if m.tree != nil {
		m.setStatus("Refreshing levels...")
		if m.rescanInPlace() {
			m.pushState()
			m.setStatus(fmt.Sprintf("Refreshed — %d level(s) found", len(m.levels)))
			return
		}
	}

	m.session = SessionConnecting
	m.setStatus("Connecting to " + m.cfg.HostTitle + " Levels panel...")

	panel, tree, guid, err := m.locate(m.settings.PanelGUID)
	if err != nil {
		m.session = SessionDisconnected
		m.setStatus("Error: " + err.Error())
		return
	}
	m.retire(m.tree)
	m.retire(m.panel)
	m.panel = panel
	m.tree = tree
	if guid != "" && guid != m.settings.PanelGUID {
		m.settings.PanelGUID = guid
		m.saveSettings()
	}

	newLevels := scanLevels(tree, m.cfg)
	remapped := m.adoptScan(newLevels)
	m.session = SessionConnected
	m.notifier.markRecovered()
	m.pushState()
	if remapped > 0 {
		m.setStatus(fmt.Sprintf("Connected — %d level(s), remapped %d hotkey(s)", len(m.levels), remapped))
	} else {
		m.setStatus(fmt.Sprintf("Connected — %d level(s) found", len(m.levels)))
	}
}

// rescanInPlace re-scans through the existing tree handle. Returns false
// when the tree itself has gone stale (zero items or a dead handle).
func (m *Manager) rescanInPlace() bool {
	if m.tree == nil {
		return false
	}
	newLevels := scanLevels(m.tree, m.cfg)
	if len(newLevels) == 0 {
		return false
	}
	m.adoptScan(newLevels)
	m.session = SessionConnected
	m.notifier.markRecovered()
	return true
}

// adoptScan swaps in a fresh scan wholesale; element handles are never
// diffed, only the number/name pairs are, via reconciliation. Returns the
// remap count.
func (m *Manager) adoptScan(newLevels []Level) int {
	remap := buildRemap(m.levels, newLevels)
	if len(remap) > 0 {
		applyRemap(m.settings.Hotkeys, m.settings.Groups, remap)
		m.saveSettings()
		m.remapTotal += len(remap)
		if logger != nil {
			logger.Printf("[RECONCILE] remapped %d level number(s)", len(remap))
		}
	}
	m.retireLevels(m.levels)
	m.levels = newLevels
	return len(remap)
}

// startBackgroundRescan scans off the owner goroutine and posts the
// result back. after runs on the owner goroutine. The rescanning guard
// makes concurrent triggers (hotkey retry + health probe) collapse into
// one scan.
func (m *Manager) startBackgroundRescan(after func(ok bool)) {
	if m.rescanning {
		return
	}
	m.rescanning = true
	m.pinHandles()
	tree := m.tree
	cfg := m.cfg
	go func() {
		defer safeDefer("rescan worker")
		var newLevels []Level
		if tree != nil {
			newLevels = scanLevels(tree, cfg)
		}
		m.runOn(func() {
			m.unpinHandles()
			m.rescanning = false
			if len(newLevels) == 0 {
				if after != nil {
					after(false)
				}
				return
			}
			m.adoptScan(newLevels)
			m.session = SessionConnected
			m.notifier.markRecovered()
			m.pushState()
			if after != nil {
				after(true)
			}
		})
	}()
}

// tryRelocate re-runs panel discovery after the existing handles went
// dead; the panel may have been re-docked or the host restarted under a
// new window. Returns false when no usable panel turns up, leaving the
// caller to decide between stale and disconnected.
func (m *Manager) tryRelocate() bool {
	panel, tree, guid, err := m.locate(m.settings.PanelGUID)
	if err != nil {
		return false
	}
	m.retire(m.tree)
	m.retire(m.panel)
	m.panel = panel
	m.tree = tree
	if guid != "" && guid != m.settings.PanelGUID {
		m.settings.PanelGUID = guid
		m.saveSettings()
	}
	newLevels := scanLevels(tree, m.cfg)
	if len(newLevels) == 0 {
		return false
	}
	m.adoptScan(newLevels)
	m.session = SessionConnected
	m.notifier.markRecovered()
	m.pushState()
	return true
}

// notifyStale surfaces the persistent "stale, please reconnect" state.
func (m *Manager) notifyStale() {
	m.session = SessionStale
	if m.notifier.markStale() {
		m.setStatus("Connection stale — refresh to reconnect")
	}
}

// ---------- Toggling ----------

func (m *Manager) recordToggle(lvl *Level, source string, ok bool) {
	if m.hist == nil {
		return
	}
	m.hist.Record(ToggleRecord{
		Number:   lvl.Number,
		Name:     lvl.Name,
		Source:   source,
		OK:       ok,
		Verified: ok,
	})
}

// toggleNumbers toggles each number in order, recording the audit trail.
// Numbers absent from the current scan are counted as failures (they may
// be virtualized out of view).
func (m *Manager) toggleNumbers(nums []string, source string) (toggled []string, failures int) {
	for _, num := range nums {
		lvl := findLevel(m.levels, num)
		if lvl == nil {
			failures++
			continue
		}
		if toggleLevel(lvl, m.cfg) {
			toggled = append(toggled, num)
			m.recordToggle(lvl, source, true)
		} else {
			failures++
			m.recordToggle(lvl, source, false)
		}
	}
	return toggled, failures
}

// hotkeyToggle runs a single-level toggle dispatched from a hotkey, with
// the one-retry-after-rescan policy. retry=false is the post-rescan
// attempt; its failure surfaces the stale notification and stops.
func (m *Manager) hotkeyToggle(number string, retry bool) {
	lvl := findLevel(m.levels, number)
	if lvl == nil {
		m.setStatus(fmt.Sprintf("Level %s not found — try Refresh", number))
		return
	}
	if toggleLevel(lvl, m.cfg) {
		m.recordToggle(lvl, "hotkey", true)
		m.setStatus(fmt.Sprintf("Toggled level %s (%s)", number, lvl.Name))
		return
	}
	m.recordToggle(lvl, "hotkey", false)
	if retry {
		m.setStatus("Auto-refreshing...")
		m.startBackgroundRescan(func(ok bool) {
			if !ok {
				m.notifyStale()
				return
			}
			m.hotkeyToggle(number, false)
		})
		return
	}
	m.notifyStale()
}

// hotkeyToggleGroup toggles every member; a wholly failed group gets the
// rescan-and-retry treatment, a partial failure just reports the count.
func (m *Manager) hotkeyToggleGroup(members []string, name string, retry bool) {
	toggled, failures := m.toggleNumbers(members, "hotkey")
	switch {
	case failures > 0 && len(toggled) == 0:
		if retry {
			m.setStatus("Auto-refreshing...")
			m.startBackgroundRescan(func(ok bool) {
				if !ok {
					m.notifyStale()
					return
				}
				m.hotkeyToggleGroup(members, name, false)
			})
		} else {
			m.notifyStale()
		}
	case failures > 0:
		m.setStatus(fmt.Sprintf("Toggled group %q (%d/%d levels) — some stale, refresh soon",
			name, len(toggled), len(members)))
	default:
		m.setStatus(fmt.Sprintf("Toggled group %q (%d/%d levels)", name, len(toggled), len(members)))
	}
}

// dispatchChord resolves a pressed chord against group hotkeys first,
// then individual levels; first match wins and stops the search. Iteration
// is name/number ordered so "first" is deterministic.
func (m *Manager) dispatchChord(token string, held ModifierSet) {
	for _, name := range sortedGroupNames(m.settings.Groups) {
		grp := m.settings.Groups[name]
		if grp.Hotkey != nil && grp.Hotkey.Matches(token, held) {
			m.hotkeyToggleGroup(append([]string(nil), grp.Levels...), name, true)
			return
		}
	}
	for _, num := range sortedHotkeyNumbers(m.settings.Hotkeys) {
		hk := m.settings.Hotkeys[num]
		if hk.Matches(token, held) {
			m.hotkeyToggle(num, true)
			return
		}
	}
}

// ---------- Hotkey assignment ----------

// findConflict reports which level or group already owns an equal hotkey,
// skipping the assignment target itself.
func (m *Manager) findConflict(hk Hotkey, target string) string {
	isGroup := strings.HasPrefix(target, groupTargetPrefix)
	for num, existing := range m.settings.Hotkeys {
		if !isGroup && num == target {
			continue
		}
		if existing.Equal(hk) {
			return "level " + num
		}
	}
	for name, grp := range m.settings.Groups {
		if isGroup && name == strings.TrimPrefix(target, groupTargetPrefix) {
			continue
		}
		if grp.Hotkey != nil && grp.Hotkey.Equal(hk) {
			return fmt.Sprintf("group %q", name)
		}
	}
	return ""
}

// finishRecording lands a recorded combination on its target. A conflict
// aborts the assignment and restores the prior display; the previous
// owner's hotkey is never silently overwritten.
func (m *Manager) finishRecording(target string, hk Hotkey) {
	if owner := m.findConflict(hk, target); owner != "" {
		m.setStatus(fmt.Sprintf("Conflict: %s already assigned to %s", hk.String(), owner))
		m.pushState()
		return
	}
	if name, ok := strings.CutPrefix(target, groupTargetPrefix); ok {
		if err := setGroupHotkey(m.settings.Groups, name, &hk); err != nil {
			m.setStatus("Error: " + err.Error())
			return
		}
		m.saveSettings()
		m.pushState()
		m.setStatus(fmt.Sprintf("Group %q: hotkey set to %s", name, hk.String()))
		return
	}
	m.settings.Hotkeys[target] = hk
	m.saveSettings()
	m.pushState()
	m.setStatus(fmt.Sprintf("Level %s: hotkey set to %s", target, hk.String()))
}

func (m *Manager) cancelRecordingUI(string) {
	m.setStatus("Hotkey recording cancelled")
	m.pushState()
}

func (m *Manager) startRecording(target string) error {
	if strings.HasPrefix(target, groupTargetPrefix) {
		name := strings.TrimPrefix(target, groupTargetPrefix)
		if _, ok := m.settings.Groups[name]; !ok {
			return fmt.Errorf("group %q: %w", name, ErrNotFound)
		}
	}
	if !m.router.StartRecording(target) {
		return fmt.Errorf("another recording is in progress: %w", ErrConflict)
	}
	label := "level " + target
	if name, ok := strings.CutPrefix(target, groupTargetPrefix); ok {
		label = fmt.Sprintf("group %q", name)
	}
	m.setStatus("Press a key combo for " + label + "... (Esc to cancel)")
	return nil
}

func (m *Manager) clearHotkey(target string) error {
	if name, ok := strings.CutPrefix(target, groupTargetPrefix); ok {
		if err := setGroupHotkey(m.settings.Groups, name, nil); err != nil {
			return err
		}
		m.saveSettings()
		m.pushState()
		m.setStatus(fmt.Sprintf("Cleared hotkey for group %q", name))
		return nil
	}
	if _, ok := m.settings.Hotkeys[target]; !ok {
		return fmt.Errorf("level %s has no hotkey: %w", target, ErrNotFound)
	}
	delete(m.settings.Hotkeys, target)
	m.saveSettings()
	m.pushState()
	m.setStatus("Cleared hotkey for level " + target)
	return nil
}

// ---------- Settings reload ----------

// adoptSettings replaces hotkeys/groups after an external file edit. The
// panel GUID follows the file too so a hand-cleared cache takes effect.
func (m *Manager) adoptSettings(st Settings) {
	m.settings = st
	m.pushState()
	m.setStatus("Settings reloaded from disk")
}

// ---------- Views ----------

// LevelView is one row of the management table.
type LevelView struct {
	Number    string `json:"number"`
	Name      string `json:"name"`
	Hotkey    string `json:"hotkey"`
	Group     string `json:"group,omitempty"`
	Togglable bool   `json:"togglable"`
}

// GroupView is one group header row.
type GroupView struct {
	Name   string   `json:"name"`
	Hotkey string   `json:"hotkey"`
	Levels []string `json:"levels"`
}

// StatusView is the full snapshot served over /api/status.
type StatusView struct {
	Version    string      `json:"version"`
	Session    string      `json:"session"`
	Message    string      `json:"message"`
	Stale      bool        `json:"stale"`
	Recording  string      `json:"recording,omitempty"`
	RemapTotal int         `json:"remapTotal"`
	Levels     []LevelView `json:"levels"`
	Groups     []GroupView `json:"groups"`
}

func (m *Manager) levelViews() []LevelView {
	memberOf := make(map[string]string)
	for name, grp := range m.settings.Groups {
		for _, n := range grp.Levels {
			memberOf[n] = name
		}
	}
	out := make([]LevelView, 0, len(m.levels))
	for i := range m.levels {
		lvl := &m.levels[i]
		var hk string
		if h, ok := m.settings.Hotkeys[lvl.Number]; ok {
			hk = h.String()
		} else {
			hk = "(none)"
		}
		out = append(out, LevelView{
			Number:    lvl.Number,
			Name:      lvl.Name,
			Hotkey:    hk,
			Group:     memberOf[lvl.Number],
			Togglable: lvl.Togglable(),
		})
	}
	return out
}

func (m *Manager) groupViews() []GroupView {
	out := make([]GroupView, 0, len(m.settings.Groups))
	for _, name := range sortedGroupNames(m.settings.Groups) {
		grp := m.settings.Groups[name]
		out = append(out, GroupView{
			Name:   name,
			Hotkey: hotkeyLabel(grp.Hotkey),
			Levels: append([]string(nil), grp.Levels...),
		})
	}
	return out
}

func (m *Manager) statusView() StatusView {
	sv := StatusView{
		Version:    currentVersion,
		Session:    m.session.String(),
		Message:    m.statusMsg,
		Stale:      m.notifier.current() == NotifyStale,
		RemapTotal: m.remapTotal,
		Levels:     m.levelViews(),
		Groups:     m.groupViews(),
	}
	if target, ok := m.router.RecordingTarget(); ok {
		sv.Recording = target
	}
	return sv
}

func sortedGroupNames(groups map[string]*Group) []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedHotkeyNumbers(hotkeys map[string]Hotkey) []string {
	nums := make([]string, 0, len(hotkeys))
	for num := range hotkeys {
		nums = append(nums, num)
	}
	sort.Slice(nums, func(i, j int) bool {
		if len(nums[i]) != len(nums[j]) {
			return len(nums[i]) < len(nums[j])
		}
		return nums[i] < nums[j]
	})
	return nums
}
