//go:build windows

package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/jchv/go-webview2"
	"github.com/lxn/win"
)

var (
	dataDir      string
	settingsFile string
	logFile      string
	historyFile  string
	configFile   string

	w webview2.WebView
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.Printf("[FATAL RECOVER] %v\n%s", r, debug.Stack())
			} else {
				log.Printf("[FATAL RECOVER] %v\n%s", r, debug.Stack())
			}
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runApp() error {
	local := os.Getenv("LOCALAPPDATA")
	if local == "" {
		local = "."
	}
	dataDir = filepath.Join(local, "LevelManager")
	os.MkdirAll(dataDir, 0755)
	settingsFile = filepath.Join(dataDir, "settings.json")
	logFile = filepath.Join(dataDir, "debug.log")
	historyFile = filepath.Join(dataDir, "history.db")
	configFile = filepath.Join(dataDir, "config.toml")
	if p := os.Getenv("LEVELMGR_CONFIG"); p != "" {
		configFile = p
	}

	setupLogging(logFile)

	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	port := cfg.ServerPort
	if p := os.Getenv("LEVELMGR_PORT"); p != "" {
		port = p
	}

	store := newSettingsStore(settingsFile)
	hist, err := openHistory(historyFile, cfg.HistoryDays)
	if err != nil {
		if logger != nil {
			logger.Printf("[STARTUP] history unavailable: %v", err)
		}
		hist = nil
	}

	initCOM()
	auto, err := newUIAutomation()
	if err != nil {
		return err
	}
	defer auto.Release()

	m := newManager(&cfg, store, hist, newPanelLocator(auto, &cfg))
	go func() {
		defer safeDefer("manager goroutine")
		initCOM()
		m.loop()
	}()

	events := startKeyboardHook()
	go m.router.Run(events)

	if err := store.Watch(func(st Settings) {
		m.runOn(func() { m.adoptSettings(st) })
	}); err != nil && logger != nil {
		logger.Printf("[STARTUP] settings watch unavailable: %v", err)
	}

	m.startHealthMonitor()
	go startWebServer(m, port)

	m.runOn(m.connectAndScan)

	if os.Getenv("LEVELMGR_NO_UI") == "1" {
		if logger != nil {
			logger.Printf("[STARTUP] LEVELMGR_NO_UI set; running headless (server + hotkeys only)")
		}
		select {}
	}

	os.Setenv("WEBVIEW2_ADDITIONAL_BROWSER_ARGUMENTS",
		"--disable-gpu --disable-background-networking --disk-cache-size=1 --media-cache-size=1")

	if logger != nil {
		logger.Printf("[STARTUP] creating WebView2 instance")
	}
	prefs := store.Load()
	width, height := uint(480), uint(640)
	gw, gh, gx, gy, hasPos, geomOK := parseGeometry(prefs.Geometry)
	if geomOK {
		width, height = uint(gw), uint(gh)
	}
	w = webview2.NewWithOptions(webview2.WebViewOptions{
		Debug:     false,
		AutoFocus: true,
		WindowOptions: webview2.WindowOptions{
			Title:  "Level Manager",
			Width:  width,
			Height: height,
			IconId: 0,
		},
	})
	if w == nil {
		return fmt.Errorf("WebView2 runtime unavailable")
	}
	defer w.Destroy()

	webviewHwnd := win.HWND(w.Window())
	if logger != nil {
		logger.Printf("[STARTUP] webview HWND = 0x%X", uintptr(webviewHwnd))
	}
	if geomOK && hasPos {
		win.SetWindowPos(webviewHwnd, 0, gx, gy, 0, 0, win.SWP_NOSIZE|win.SWP_NOZORDER)
	}
	if prefs.AlwaysOnTop {
		win.SetWindowPos(webviewHwnd, win.HWND_TOPMOST, 0, 0, 0, 0, win.SWP_NOMOVE|win.SWP_NOSIZE)
	}

	url := fmt.Sprintf("http://localhost:%s", port)
	w.Navigate(url)
	w.Run()

	if logger != nil {
		logger.Printf("[SHUTDOWN] window closed, saving and exiting")
	}
	stopKeyboardHook()
	m.router.Stop()
	m.stop()
	store.Close()
	hist.Close()
	return nil
}
