package main

import (
	"fmt"
	"strings"
)

const treeDumpMaxDepth = 6

// dumpElement appends one line per element, indented by depth, then
// recurses into children up to the depth cap. Read errors become part of
// the dump instead of aborting it, since a half-dead panel is exactly
// what this exists to diagnose.
func dumpElement(sb *strings.Builder, el Element, depth int) {
	indent := strings.Repeat("  ", depth)
	name, nameErr := el.Name()
	id, _ := el.AutomationID()
	ct, ctErr := el.ControlType()
	if nameErr != nil || ctErr != nil {
		fmt.Fprintf(sb, "%s<unreadable element: name=%v type=%v>\n", indent, nameErr, ctErr)
		return
	}
	fmt.Fprintf(sb, "%stype=%d id=%q name=%q", indent, ct, id, name)
	if val, err := el.Value(); err == nil && val != "" {
		fmt.Fprintf(sb, " value=%q", val)
	}
	sb.WriteByte('\n')

	if depth >= treeDumpMaxDepth {
		return
	}
	children, err := el.Children()
	if err != nil {
		fmt.Fprintf(sb, "%s  <children error: %v>\n", indent, err)
		return
	}
	for _, ch := range children {
		dumpElement(sb, ch, depth+1)
		ch.Release()
	}
}

// treeDump renders the cached panel subtree for the diagnostics endpoint.
// Owner-goroutine only.
func (m *Manager) treeDump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Level Manager v%s diagnostics\n", currentVersion)
	fmt.Fprintf(&sb, "session=%s levels=%d rescanning=%v remapTotal=%d guid=%q\n",
		m.session, len(m.levels), m.rescanning, m.remapTotal, m.settings.PanelGUID)
	if m.tree == nil {
		sb.WriteString("no panel attached\n")
		return sb.String()
	}
	sb.WriteString("\n")
	dumpElement(&sb, m.tree, 0)
	return sb.String()
}
