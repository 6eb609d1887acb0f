package main

import (
	"sync"
	"time"
)

// NotifyState is the attention state shown to the user for the panel
// connection.
type NotifyState int

const (
	NotifyNone NotifyState = iota
	NotifyStale
)

// staleNotifier implements edge detection with a cooloff so the user sees
// one prominent "stale, please reconnect" notification per episode instead
// of a stream of them while retries keep failing. Recovery clears the
// cooloff so the next episode notifies immediately.
type staleNotifier struct {
	mu           sync.Mutex
	state        NotifyState
	lastNotified time.Time
	cooloff      time.Duration
}

func newStaleNotifier() *staleNotifier {
	return &staleNotifier{cooloff: 30 * time.Second}
}

// markStale records the stale condition and reports whether a visible
// notification should fire now.
func (n *staleNotifier) markStale() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now()
	crossed := n.state != NotifyStale
	n.state = NotifyStale
	if !crossed && !n.lastNotified.IsZero() && now.Sub(n.lastNotified) < n.cooloff {
		return false
	}
	n.lastNotified = now
	return true
}

// markRecovered clears the stale condition; returns true when the UI was
// showing a stale banner that should now be withdrawn.
func (n *staleNotifier) markRecovered() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	wasStale := n.state == NotifyStale
	n.state = NotifyNone
	n.lastNotified = time.Time{}
	return wasStale
}

func (n *staleNotifier) current() NotifyState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}
