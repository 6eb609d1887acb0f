package main

// toggleLevel flips a level's visibility. It re-fetches the visibility
// button from the item's current live children on every call instead of
// trusting the handle captured at scan time: a button wrapper from a
// destroyed tree instance can still Invoke without error while doing
// nothing, and the re-fetch (~150 ms) is what actually catches that.
//
// Success policy: when the button exposes the Toggle pattern, success
// means the observed toggle state changed across the Invoke. Buttons
// without the pattern (some host builds expose only Invoke) fall back to
// invoke-did-not-fail. Failure is reported as false, never a panic, so the
// caller can decide to rescan and retry.
func toggleLevel(lvl *Level, cfg *Config) bool {
	if lvl == nil || lvl.item == nil {
		return false
	}
	children, err := lvl.item.Children()
	if err != nil {
		// Item destroyed; the whole cache is suspect.
		return false
	}

	var btn Element
	for _, child := range children {
		if btn == nil {
			ct, ctErr := child.ControlType()
			aid, aidErr := child.AutomationID()
			if ctErr == nil && aidErr == nil && ct == ControlButton && aid == cfg.ToggleAutomationID {
				btn = child
				continue
			}
		}
		child.Release()
	}
	if btn == nil {
		return false // button gone → stale
	}
	defer btn.Release()

	before := btn.ToggleState()
	if err := btn.Invoke(); err != nil {
		return false
	}
	if before == ToggleUnknown {
		return true
	}
	after := btn.ToggleState()
	if after == ToggleUnknown {
		// State read stopped resolving mid-call; the Invoke itself went
		// through, count it.
		return true
	}
	return after != before
}
