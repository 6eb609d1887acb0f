package main

import (
	"embed"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
)

//go:embed ui.html
var content embed.FS

var (
	mgr        *Manager
	serverPort string

	clients   = make(map[chan string]bool)
	clientsMu sync.RWMutex
)

func serveHTML(w http.ResponseWriter, r *http.Request) {
	data, _ := content.ReadFile("ui.html")
	w.Header().Set("Content-Type", "text/html")
	w.Write(data)
}

func startWebServer(m *Manager, port string) {
	mgr = m
	serverPort = port

	http.HandleFunc("/", serveHTML)
	http.HandleFunc("/api/status", handleStatus)
	http.HandleFunc("/events", handleSSE)
	http.HandleFunc("/api/connect", handleConnect)
	http.HandleFunc("/api/toggle", handleToggle)
	http.HandleFunc("/api/hotkey", handleHotkey)
	http.HandleFunc("/api/group", handleGroup)
	http.HandleFunc("/api/history", handleHistory)
	http.HandleFunc("/api/tree", handleTree)
	http.HandleFunc("/api/settings", handleSettings)

	addr := "localhost:" + port
	if logger != nil {
		logger.Printf("[HTTP] listening on %s", addr)
	}
	if err := http.ListenAndServe(addr, nil); err != nil {
		if logger != nil {
			logger.Printf("[HTTP] server error: %v", err)
		} else {
			log.Printf("[HTTP] server error: %v", err)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func handleStatus(w http.ResponseWriter, r *http.Request) {
	var sv StatusView
	mgr.call(func() { sv = mgr.statusView() })
	writeJSON(w, http.StatusOK, sv)
}

func handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	mgr.runOn(mgr.connectAndScan)
	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

func handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Number  string   `json:"number"`
		Numbers []string `json:"numbers"`
		Query   string   `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	nums := req.Numbers
	if req.Number != "" {
		nums = append(nums, req.Number)
	}
	if len(nums) == 0 && req.Query == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no level numbers or query given"))
		return
	}
	var toggled []string
	var failures int
	var resolveErr error
	mgr.call(func() {
		if req.Query != "" {
			lvl, err := resolveLevel(mgr.levels, req.Query)
			if err != nil {
				resolveErr = err
				return
			}
			nums = append(nums, lvl.Number)
		}
		toggled, failures = mgr.toggleNumbers(nums, "api")
	})
	if resolveErr != nil {
		writeErr(w, http.StatusNotFound, resolveErr)
		return
	}
	if failures > 0 && len(toggled) == 0 {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"toggled":  toggled,
			"failures": failures,
			"error":    ErrStale.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"toggled":  toggled,
		"failures": failures,
	})
}

// handleHotkey drives the recording lifecycle. The actual key capture
// happens on the keyboard hook; this endpoint only arms, cancels, or
// clears.
func handleHotkey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Action string `json:"action"`
		Target string `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	var opErr error
	switch req.Action {
	case "record":
		mgr.call(func() { opErr = mgr.startRecording(req.Target) })
	case "cancel":
		mgr.router.CancelRecording()
	case "clear":
		mgr.call(func() { opErr = mgr.clearHotkey(req.Target) })
	default:
		writeErr(w, http.StatusBadRequest, fmt.Errorf("unknown action %q", req.Action))
		return
	}
	if opErr != nil {
		writeErr(w, http.StatusConflict, opErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func handleGroup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Action  string   `json:"action"`
		Name    string   `json:"name"`
		Members []string `json:"members"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	var name string
	var opErr error
	switch req.Action {
	case "create":
		mgr.call(func() {
			name, opErr = createGroup(mgr.settings.Groups, mgr.levels, req.Members)
			if opErr == nil {
				mgr.saveSettings()
				mgr.pushState()
				mgr.setStatus(fmt.Sprintf("Created group %q", name))
			}
		})
	case "dissolve":
		mgr.call(func() {
			opErr = dissolveGroup(mgr.settings.Groups, req.Name)
			if opErr == nil {
				mgr.saveSettings()
				mgr.pushState()
				mgr.setStatus(fmt.Sprintf("Dissolved group %q", req.Name))
			}
		})
	default:
		writeErr(w, http.StatusBadRequest, fmt.Errorf("unknown action %q", req.Action))
		return
	}
	if opErr != nil {
		writeErr(w, http.StatusBadRequest, opErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

func handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}
	recs, err := mgr.hist.Recent(limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func handleTree(w http.ResponseWriter, r *http.Request) {
	var dump string
	mgr.call(func() { dump = mgr.treeDump() })
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, dump)
}

// handleSettings serves the persisted state and accepts window-pref
// updates. Hotkeys and groups have their own endpoints; only the prefs
// the UI owns directly are writable here.
func handleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			AlwaysOnTop *bool   `json:"always_on_top"`
			Geometry    *string `json:"geometry"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		mgr.call(func() {
			if req.AlwaysOnTop != nil {
				mgr.settings.AlwaysOnTop = *req.AlwaysOnTop
			}
			if req.Geometry != nil {
				mgr.settings.Geometry = *req.Geometry
			}
			mgr.saveSettings()
		})
	}
	var st Settings
	mgr.call(func() { st = mgr.settings })
	writeJSON(w, http.StatusOK, st)
}

func handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if f, ok := w.(http.Flusher); ok {
		fmt.Fprint(w, ":ok\n\n")
		var sv StatusView
		mgr.call(func() { sv = mgr.statusView() })
		if j, err := json.Marshal(map[string]interface{}{
			"session": sv.Session,
			"message": sv.Message,
			"stale":   sv.Stale,
			"levels":  sv.Levels,
			"groups":  sv.Groups,
		}); err == nil {
			fmt.Fprintf(w, "data: %s\n\n", j)
		}
		f.Flush()
	}

	messageChan := make(chan string, 8)

	clientsMu.Lock()
	clients[messageChan] = true
	clientsMu.Unlock()

	defer func() {
		clientsMu.Lock()
		delete(clients, messageChan)
		close(messageChan)
		clientsMu.Unlock()
	}()

	flusher, _ := w.(http.Flusher)
	ctxDone := r.Context().Done()

	for {
		select {
		case <-ctxDone:
			return
		case msg, ok := <-messageChan:
			if !ok {
				return
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", msg)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func broadcast(data map[string]interface{}) {
	jsonData, _ := json.Marshal(data)
	payload := string(jsonData)

	clientsMu.RLock()
	for client := range clients {
		func(ch chan string, m string) {
			defer func() {
				if r := recover(); r != nil {
					if logger != nil {
						logger.Printf("[SSE] dropped send to closed channel: %v", r)
					}
				}
			}()
			select {
			case ch <- m:
			default:
			}
		}(client, payload)
	}
	clientsMu.RUnlock()
}
