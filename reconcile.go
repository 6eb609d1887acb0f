package main

// Reconciliation re-matches levels across scans by name so user metadata
// (hotkeys, group membership) survives the host renumbering its levels.
// Only names unique within BOTH scans take part; a duplicated name is
// ambiguous and silently excluded; partial non-reconciliation is an
// acceptable degraded outcome, misassigning a hotkey is not.

// uniqueNameMap builds name → number for the levels whose name appears
// exactly once in the set.
func uniqueNameMap(levels []Level) map[string]string {
	counts := make(map[string]int, len(levels))
	for i := range levels {
		counts[levels[i].Name]++
	}
	out := make(map[string]string, len(levels))
	for i := range levels {
		if counts[levels[i].Name] == 1 {
			out[levels[i].Name] = levels[i].Number
		}
	}
	return out
}

// buildRemap computes oldNumber → newNumber for every uniquely named level
// whose number changed between the scans. A nil or empty old scan (the
// first-ever scan) yields an empty remap.
func buildRemap(oldLevels, newLevels []Level) map[string]string {
	if len(oldLevels) == 0 {
		return nil
	}
	oldMap := uniqueNameMap(oldLevels)
	newMap := uniqueNameMap(newLevels)

	remap := make(map[string]string)
	for name, oldNum := range oldMap {
		if newNum, ok := newMap[name]; ok && newNum != oldNum {
			remap[oldNum] = newNum
		}
	}
	return remap
}

// applyRemap moves hotkey assignments to their new keys and rewrites group
// member lists in place. Applying the same remap twice is a no-op the
// second time: once a key has moved, the old key no longer exists, and
// member entries already rewritten no longer match the remap's domain.
func applyRemap(hotkeys map[string]Hotkey, groups map[string]*Group, remap map[string]string) {
	// Two phases so a renumber that swaps two levels moves both
	// assignments instead of clobbering one.
	moved := make(map[string]Hotkey, len(remap))
	for oldNum, newNum := range remap {
		if hk, ok := hotkeys[oldNum]; ok {
			moved[newNum] = hk
			delete(hotkeys, oldNum)
		}
	}
	for newNum, hk := range moved {
		hotkeys[newNum] = hk
	}
	for _, grp := range groups {
		for i, n := range grp.Levels {
			if newNum, ok := remap[n]; ok {
				grp.Levels[i] = newNum
			}
		}
	}
}
