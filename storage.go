package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Settings is the persisted user state. The JSON keys are stable so an
// existing settings.json keeps working across upgrades. Load failures
// are swallowed; settings loss is recoverable by re-assigning hotkeys,
// so a corrupt file degrades to defaults instead of refusing to start.
type Settings struct {
	Hotkeys     map[string]Hotkey `json:"hotkeys"`
	Groups      map[string]*Group `json:"groups"`
	PanelGUID   string            `json:"levels_guid,omitempty"`
	AlwaysOnTop bool              `json:"always_on_top"`
	Geometry    string            `json:"geometry,omitempty"`
}

// parseGeometry reads the persisted window geometry, either "WxH" or
// "WxH+X+Y". hasPos reports whether an on-screen position was given.
func parseGeometry(s string) (w, h, x, y int32, hasPos, ok bool) {
	if n, _ := fmt.Sscanf(s, "%dx%d+%d+%d", &w, &h, &x, &y); n == 4 {
		return w, h, x, y, true, w > 0 && h > 0
	}
	if n, _ := fmt.Sscanf(s, "%dx%d", &w, &h); n == 2 {
		return w, h, 0, 0, false, w > 0 && h > 0
	}
	return 0, 0, 0, 0, false, false
}

func defaultSettings() Settings {
	return Settings{
		Hotkeys:     make(map[string]Hotkey),
		Groups:      make(map[string]*Group),
		AlwaysOnTop: true,
	}
}

// SettingsStore owns the settings file. Writes are serialized; the
// watcher distinguishes our own saves from external edits so a save never
// triggers a reload of itself.
type SettingsStore struct {
	path string

	mu        sync.Mutex
	lastWrite time.Time

	watcher *fsnotify.Watcher
}

func newSettingsStore(path string) *SettingsStore {
	return &SettingsStore{path: path}
}

func (s *SettingsStore) Load() Settings {
	st := defaultSettings()
	data, err := os.ReadFile(s.path)
	if err != nil {
		return st
	}
	if err := json.Unmarshal(data, &st); err != nil {
		if logger != nil {
			logger.Printf("[SETTINGS] unreadable settings file, using defaults: %v", err)
		}
		return defaultSettings()
	}
	if st.Hotkeys == nil {
		st.Hotkeys = make(map[string]Hotkey)
	}
	if st.Groups == nil {
		st.Groups = make(map[string]*Group)
	}
	return st
}

func (s *SettingsStore) Save(st Settings) {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return
	}
	s.mu.Lock()
	s.lastWrite = time.Now()
	_ = os.WriteFile(s.path, data, 0644)
	s.mu.Unlock()
}

// Watch reloads the file on external edits, debounced, and hands the
// parsed result to onChange. onChange runs on the watcher goroutine; the
// caller marshals it onto the owner thread.
func (s *SettingsStore) Watch(onChange func(Settings)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory, not the file: the file may not exist until the
	// first save, and editors replace it wholesale rather than writing in
	// place. Events for sibling files are filtered below.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return err
	}
	s.watcher = w

	go func() {
		defer safeDefer("settings watcher")
		var pending *time.Timer
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				s.mu.Lock()
				selfEdit := time.Since(s.lastWrite) < 500*time.Millisecond
				s.mu.Unlock()
				if selfEdit {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(250*time.Millisecond, func() {
					if logger != nil {
						logger.Printf("[SETTINGS] external edit detected, reloading")
					}
					onChange(s.Load())
				})
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				if logger != nil {
					logger.Printf("[SETTINGS] watcher error: %v", err)
				}
			}
		}
	}()
	return nil
}

func (s *SettingsStore) Close() {
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
}
