package main

import (
	"fmt"
	"time"
)

// probeElement checks whether an item handle is still live by walking its
// children for the visibility toggle. UIA calls on a dead element can
// block well past any useful deadline, so the walk runs in its own
// goroutine and the timeout abandons it. The returned channel closes only
// when the walk has actually exited; the item handle must stay alive
// until then, timeout or not.
func probeElement(item Element, toggleID string, timeout time.Duration) (bool, <-chan struct{}) {
	done := make(chan struct{})
	if item == nil {
		close(done)
		return false, done
	}
	resCh := make(chan bool, 1)
	go func() {
		defer safeDefer("probe walk")
		defer close(done)
		children, err := item.Children()
		if err != nil {
			resCh <- false
			return
		}
		found := false
		for _, ch := range children {
			if !found {
				id, err := ch.AutomationID()
				if err == nil && id == toggleID {
					found = true
				}
			}
			ch.Release()
		}
		resCh <- found
	}()
	select {
	case ok := <-resCh:
		return ok, done
	case <-time.After(timeout):
		return false, done
	}
}

// startHealthMonitor runs the periodic freshness check: every interval it
// probes the first cached level and, on failure, kicks off one background
// rescan. When the rescan also comes back empty a full panel relocate is
// tried before the stale banner goes up. Stops when the manager shuts
// down.
func (m *Manager) startHealthMonitor() {
	go func() {
		defer safeDefer("health monitor")
		ticker := time.NewTicker(m.cfg.HealthInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.runOn(m.healthTick)
			case <-m.quit:
				return
			}
		}
	}()
}

// healthTick runs on the owner goroutine: snapshot the probe target, then
// probe off-thread so a hung UIA call never stalls hotkey dispatch.
func (m *Manager) healthTick() {
	if m.session != SessionConnected || m.rescanning || len(m.levels) == 0 {
		return
	}
	item := m.levels[0].item
	toggleID := m.cfg.ToggleAutomationID
	timeout := m.cfg.ProbeTimeout()
	m.pinHandles()
	go func() {
		defer safeDefer("health probe")
		fresh, walkDone := probeElement(item, toggleID, timeout)
		go func() {
			<-walkDone
			m.runOn(m.unpinHandles)
		}()
		if fresh {
			return
		}
		m.runOn(func() {
			if m.session != SessionConnected || m.rescanning {
				return
			}
			if logger != nil {
				logger.Printf("[HEALTH] probe failed, refreshing level cache")
			}
			m.setStatus("Detected panel change — refreshing...")
			m.startBackgroundRescan(func(ok bool) {
				if ok {
					return
				}
				if m.tryRelocate() {
					m.setStatus(fmt.Sprintf("Reconnected — %d level(s) found", len(m.levels)))
					return
				}
				m.notifyStale()
			})
		})
	}()
}
