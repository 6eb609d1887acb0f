package main

import (
	"fmt"
	"strings"
)

// Group is a user-defined named set of levels sharing one hotkey. Members
// are level numbers in selection order. A group never has fewer than two
// members; any mutation that would shrink it below that dissolves it, and
// a level number belongs to at most one group at a time.
type Group struct {
	Levels []string `json:"levels"`
	Hotkey *Hotkey  `json:"hotkey"`
}

// groupDisplayName derives a name from up to three member display names,
// with a "+N" suffix for the overflow.
func groupDisplayName(levels []Level, members []string) string {
	names := make([]string, 0, 3)
	for _, num := range members {
		if len(names) == 3 {
			break
		}
		if lvl := findLevel(levels, num); lvl != nil {
			names = append(names, lvl.Name)
		} else {
			names = append(names, "Level "+num)
		}
	}
	name := strings.Join(names, " + ")
	if len(members) > 3 {
		name += fmt.Sprintf(" +%d", len(members)-3)
	}
	return name
}

// createGroup adds a new group over the given member numbers, enforcing
// the at-most-one-group invariant at creation time: members are first
// pulled out of any group they already belong to, and a donor group left
// with fewer than two members is dissolved outright, its hotkey discarded
// with it. Returns the derived group name.
func createGroup(groups map[string]*Group, levels []Level, members []string) (string, error) {
	nums := dedupe(members)
	if len(nums) < 2 {
		return "", fmt.Errorf("group needs at least 2 levels, got %d", len(nums))
	}

	selected := make(map[string]bool, len(nums))
	for _, n := range nums {
		selected[n] = true
	}
	for name, grp := range groups {
		remaining := grp.Levels[:0:0]
		for _, n := range grp.Levels {
			if !selected[n] {
				remaining = append(remaining, n)
			}
		}
		if len(remaining) == len(grp.Levels) {
			continue
		}
		if len(remaining) < 2 {
			delete(groups, name)
		} else {
			grp.Levels = remaining
		}
	}

	name := groupDisplayName(levels, nums)
	groups[name] = &Group{Levels: nums}
	return name, nil
}

func dissolveGroup(groups map[string]*Group, name string) error {
	if _, ok := groups[name]; !ok {
		return fmt.Errorf("group %q: %w", name, ErrNotFound)
	}
	delete(groups, name)
	return nil
}

func setGroupHotkey(groups map[string]*Group, name string, hk *Hotkey) error {
	grp, ok := groups[name]
	if !ok {
		return fmt.Errorf("group %q: %w", name, ErrNotFound)
	}
	grp.Hotkey = hk
	return nil
}

// groupedNumbers returns the set of level numbers currently claimed by any
// group.
func groupedNumbers(groups map[string]*Group) map[string]bool {
	out := make(map[string]bool)
	for _, grp := range groups {
		for _, n := range grp.Levels {
			out[n] = true
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
