package main

import "strings"

// scanLevels walks the tree's currently materialized children and extracts
// one Level per toggleable item. The host virtualizes the list, so items
// scrolled out of the viewport simply have no UIA element and are absent
// from the result; that is not an error, the scan makes no exhaustiveness
// claim. Result order follows the tree's own enumeration; nothing sorts it.
func scanLevels(tree Element, cfg *Config) []Level {
	items, err := tree.Children()
	if err != nil {
		if logger != nil {
			logger.Printf("[SCAN] tree children failed: %v", err)
		}
		return nil
	}

	var levels []Level
	for _, item := range items {
		lvl, ok := scanItem(item, cfg)
		if !ok {
			item.Release()
			continue
		}
		levels = append(levels, lvl)
	}
	return levels
}

// scanItem classifies a single tree child. Group headers and other
// non-level rows are skipped via the textual discriminator; rows whose
// numeric field never materialized (partially rendered) are skipped too.
// A missing visibility button is tolerated; the level is recorded but not
// togglable until a rescan sees the button.
func scanItem(item Element, cfg *Config) (Level, bool) {
	name, err := item.Name()
	if err != nil || !strings.Contains(name, cfg.ItemDiscriminator) {
		return Level{}, false
	}

	children, err := item.Children()
	if err != nil {
		return Level{}, false
	}

	lvl := Level{item: item}
	for _, child := range children {
		keep := false
		ct, err := child.ControlType()
		if err == nil {
			switch ct {
			case ControlEdit:
				if v, err := child.Value(); err == nil && v != "" {
					if isAllDigits(v) {
						if lvl.Number == "" {
							lvl.Number = v
						}
					} else if lvl.Name == "" {
						lvl.Name = v
					}
				}
			case ControlButton:
				if aid, err := child.AutomationID(); err == nil && aid == cfg.ToggleAutomationID && lvl.toggle == nil {
					lvl.toggle = child
					keep = true
				}
			}
		}
		if !keep {
			child.Release()
		}
	}

	if lvl.Number == "" {
		if lvl.toggle != nil {
			lvl.toggle.Release()
		}
		return Level{}, false
	}
	if lvl.Name == "" {
		lvl.Name = "Level " + lvl.Number
	}
	return lvl, true
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
