//go:build windows

package main

import (
	"fmt"
	"strings"
	"syscall"
	"time"
	"unsafe"

	"github.com/lxn/win"
)

var (
	user32               = syscall.NewLazyDLL("user32.dll")
	procEnumWindows      = user32.NewProc("EnumWindows")
	procEnumChildWindows = user32.NewProc("EnumChildWindows")
	procGetWindowTextW   = user32.NewProc("GetWindowTextW")
	procGetClassNameW    = user32.NewProc("GetClassNameW")
)

// Enum callbacks cannot close over locals (syscall.NewCallback allocates
// a permanent thunk), so results accumulate here. Enumeration only
// happens on the manager goroutine.
var enumCollect []win.HWND

var enumCallback = syscall.NewCallback(func(hwnd uintptr, lparam uintptr) uintptr {
	enumCollect = append(enumCollect, win.HWND(hwnd))
	return 1
})

func topLevelWindows() []win.HWND {
	enumCollect = nil
	procEnumWindows.Call(enumCallback, 0)
	return enumCollect
}

func childWindows(parent win.HWND) []win.HWND {
	enumCollect = nil
	procEnumChildWindows.Call(uintptr(parent), enumCallback, 0)
	return enumCollect
}

func windowText(hwnd win.HWND) string {
	var buf [512]uint16
	n, _, _ := procGetWindowTextW.Call(uintptr(hwnd),
		uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return syscall.UTF16ToString(buf[:n])
}

func windowClass(hwnd win.HWND) string {
	var buf [256]uint16
	n, _, _ := procGetClassNameW.Call(uintptr(hwnd),
		uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return syscall.UTF16ToString(buf[:n])
}

// findHostWindow picks the host's main window: a visible top-level window
// whose title carries the host name, preferring one with a document open
// (title contains the marker).
func findHostWindow(cfg *Config) (win.HWND, error) {
	var fallback win.HWND
	for _, hwnd := range topLevelWindows() {
		if !win.IsWindowVisible(hwnd) {
			continue
		}
		title := windowText(hwnd)
		if !strings.Contains(title, cfg.HostTitle) {
			continue
		}
		if cfg.HostMarker != "" && strings.Contains(title, cfg.HostMarker) {
			return hwnd, nil
		}
		if fallback == 0 {
			fallback = hwnd
		}
	}
	if fallback != 0 {
		return fallback, nil
	}
	return 0, fmt.Errorf("no %s window found: %w", cfg.HostTitle, ErrNotFound)
}

// classGUID extracts the GUID portion of a panel wrapper class name. The
// wrappers look like "HwndWrapper[host.exe;;xxxxxxxx-....]"; the xxxxxxxx
// prefix is stable for the process lifetime and unique per panel, which
// is what makes the fast path work.
func classGUID(class string) string {
	i := strings.LastIndex(class, ";")
	if i < 0 || i+1 >= len(class) {
		return ""
	}
	guid := strings.TrimSuffix(class[i+1:], "]")
	if len(guid) > 8 {
		guid = guid[:8]
	}
	return guid
}

// findTreeByID walks the subtree breadth-first looking for the level tree
// control. Depth-capped so a huge panel never stalls the probe forever on
// its own.
func findTreeByID(el Element, id string, depth int) Element {
	if depth < 0 {
		return nil
	}
	children, err := el.Children()
	if err != nil {
		return nil
	}
	var found Element
	for _, ch := range children {
		if found == nil {
			chID, err := ch.AutomationID()
			if err == nil && chID == id {
				found = ch
				continue
			}
		}
		if found == nil {
			found = findTreeByID(ch, id, depth-1)
		}
		ch.Release()
	}
	return found
}

// probeCandidate attaches to one wrapper window and looks for the level
// tree inside it, bounded by the given timeout.
func probeCandidate(auto *uiAutomation, hwnd win.HWND, cfg *Config, timeout time.Duration) (panel, tree Element, ok bool) {
	return boundedProbe(fmt.Sprintf("%#x", hwnd), timeout, func() (Element, Element) {
		initCOM()
		el, err := auto.ElementFromHandle(hwnd)
		if err != nil {
			return nil, nil
		}
		t := findTreeByID(el, cfg.TreeAutomationID, 4)
		if t == nil {
			el.Release()
			return nil, nil
		}
		return el, t
	})
}

// newPanelLocator builds the locateFunc: cached-GUID fast path first,
// then a full probe of every wrapper child of the host window.
func newPanelLocator(auto *uiAutomation, cfg *Config) locateFunc {
	return func(guid string) (Element, Element, string, error) {
		host, err := findHostWindow(cfg)
		if err != nil {
			return nil, nil, "", err
		}

		var candidates []win.HWND
		var cached win.HWND
		for _, child := range childWindows(host) {
			class := windowClass(child)
			if !strings.Contains(class, cfg.WrapperClassHint) {
				continue
			}
			if guid != "" && strings.Contains(class, guid) {
				// Fast path: the cached panel, tried before everything else
				// with only the short confirm window.
				candidates = append([]win.HWND{child}, candidates...)
				cached = child
				continue
			}
			candidates = append(candidates, child)
		}
		if len(candidates) == 0 {
			return nil, nil, "", fmt.Errorf("no %s panels under host window: %w",
				cfg.WrapperClassHint, ErrNotFound)
		}
		if logger != nil {
			logger.Printf("[LOCATE] probing %d candidate panel(s), cached guid=%q",
				len(candidates), guid)
		}

		for _, hwnd := range candidates {
			panel, tree, ok := probeCandidate(auto, hwnd, cfg,
				candidateProbeTimeout(cfg, hwnd == cached && cached != 0))
			if !ok {
				continue
			}
			discovered := classGUID(windowClass(hwnd))
			if logger != nil {
				logger.Printf("[LOCATE] found levels panel hwnd=%#x guid=%q", hwnd, discovered)
			}
			return panel, tree, discovered, nil
		}
		return nil, nil, "", fmt.Errorf("levels panel not found in any candidate: %w", ErrNotFound)
	}
}
