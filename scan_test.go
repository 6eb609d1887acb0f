package main

import (
	"errors"
	"testing"
)

func TestScanLevels(t *testing.T) {
	tree := fakeTree(
		fakeItem("1", "Base Geometry", true),
		fakeItem("10", "Fixtures", true),
		fakeItem("200", "Toolpaths", false),
	)

	levels := scanLevels(tree, testConfig())
	if len(levels) != 3 {
		t.Fatalf("scanLevels returned %d levels, want 3", len(levels))
	}

	want := []struct {
		number, name string
		togglable    bool
	}{
		{"1", "Base Geometry", true},
		{"10", "Fixtures", true},
		{"200", "Toolpaths", false},
	}
	for i, w := range want {
		if levels[i].Number != w.number || levels[i].Name != w.name {
			t.Errorf("level[%d] = %s/%q, want %s/%q",
				i, levels[i].Number, levels[i].Name, w.number, w.name)
		}
		if levels[i].Togglable() != w.togglable {
			t.Errorf("level[%d].Togglable() = %v, want %v", i, levels[i].Togglable(), w.togglable)
		}
	}
}

func TestScanSkipsNonItemRows(t *testing.T) {
	header := &fakeElement{name: "GroupHeader Machine Setup", ctype: ControlTreeItem}
	tree := fakeTree(header, fakeItem("5", "Clamps", true))

	levels := scanLevels(tree, testConfig())
	if len(levels) != 1 || levels[0].Number != "5" {
		t.Fatalf("scanLevels = %+v, want only level 5", levels)
	}
	if header.released == 0 {
		t.Error("skipped header row was not released")
	}
}

func TestScanSkipsRowWithoutNumber(t *testing.T) {
	partial := &fakeElement{
		name:  "LevelTreeItem pending",
		ctype: ControlTreeItem,
		children: []*fakeElement{
			{ctype: ControlEdit, value: "Unnamed"},
		},
	}
	tree := fakeTree(partial, fakeItem("2", "Stock", true))

	levels := scanLevels(tree, testConfig())
	if len(levels) != 1 || levels[0].Number != "2" {
		t.Fatalf("scanLevels = %+v, want only level 2", levels)
	}
}

func TestScanDefaultsMissingName(t *testing.T) {
	item := &fakeElement{
		name:  "LevelTreeItem 7",
		ctype: ControlTreeItem,
		children: []*fakeElement{
			{ctype: ControlEdit, value: "7"},
		},
	}
	levels := scanLevels(fakeTree(item), testConfig())
	if len(levels) != 1 {
		t.Fatalf("scanLevels returned %d levels, want 1", len(levels))
	}
	if levels[0].Name != "Level 7" {
		t.Errorf("default name = %q, want %q", levels[0].Name, "Level 7")
	}
}

func TestScanFirstEditWins(t *testing.T) {
	// Two numeric edits: the first is the level number, the second is some
	// other numeric column and must not overwrite it.
	item := &fakeElement{
		name:  "LevelTreeItem 3",
		ctype: ControlTreeItem,
		children: []*fakeElement{
			{ctype: ControlEdit, value: "3"},
			{ctype: ControlEdit, value: "42"},
			{ctype: ControlEdit, value: "Holes"},
			{ctype: ControlEdit, value: "Backup Holes"},
		},
	}
	levels := scanLevels(fakeTree(item), testConfig())
	if len(levels) != 1 {
		t.Fatalf("scanLevels returned %d levels, want 1", len(levels))
	}
	if levels[0].Number != "3" || levels[0].Name != "Holes" {
		t.Errorf("scan = %s/%q, want 3/%q", levels[0].Number, levels[0].Name, "Holes")
	}
}

func TestScanDeadTree(t *testing.T) {
	tree := &fakeElement{childErr: errors.New("element not available")}
	if levels := scanLevels(tree, testConfig()); levels != nil {
		t.Errorf("scanLevels on dead tree = %+v, want nil", levels)
	}
}

func TestIsAllDigits(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0", true},
		{"12345", true},
		{"", false},
		{"12a", false},
		{"-1", false},
		{"1.5", false},
	}
	for _, tt := range tests {
		if got := isAllDigits(tt.in); got != tt.want {
			t.Errorf("isAllDigits(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
