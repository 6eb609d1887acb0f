package main

// fakeElement is an in-memory stand-in for a UIA node. Fields with Err
// suffixes simulate a handle going stale mid-walk; onInvoke lets a test
// model the host actually flipping (or failing to flip) its state.
type fakeElement struct {
	name   string
	autoID string
	ctype  ControlType
	value  string

	children []*fakeElement
	toggle   ToggleVal

	nameErr   error
	childErr  error
	invokeErr error

	onInvoke   func(*fakeElement)
	onChildren func()
	onRelease  func()
	released   int
}

func (f *fakeElement) Name() (string, error) {
	if f.nameErr != nil {
		return "", f.nameErr
	}
	return f.name, nil
}

func (f *fakeElement) AutomationID() (string, error) { return f.autoID, nil }

func (f *fakeElement) ControlType() (ControlType, error) { return f.ctype, nil }

func (f *fakeElement) Value() (string, error) { return f.value, nil }

func (f *fakeElement) Children() ([]Element, error) {
	if f.onChildren != nil {
		f.onChildren()
	}
	if f.childErr != nil {
		return nil, f.childErr
	}
	out := make([]Element, len(f.children))
	for i, ch := range f.children {
		out[i] = ch
	}
	return out, nil
}

func (f *fakeElement) Invoke() error {
	if f.invokeErr != nil {
		return f.invokeErr
	}
	if f.onInvoke != nil {
		f.onInvoke(f)
	}
	return nil
}

func (f *fakeElement) ToggleState() ToggleVal { return f.toggle }

func (f *fakeElement) Release() {
	f.released++
	if f.onRelease != nil {
		f.onRelease()
	}
}

// flipOnInvoke is the well-behaved host: each Invoke flips the observable
// toggle state.
func flipOnInvoke(f *fakeElement) {
	if f.toggle == ToggleOn {
		f.toggle = ToggleOff
	} else {
		f.toggle = ToggleOn
	}
}

// fakeItem builds one level row the way the host renders it: a wrapper
// whose name carries the item discriminator, with Edit children for the
// number and name and a Button child for the visibility toggle.
func fakeItem(number, name string, withToggle bool) *fakeElement {
	item := &fakeElement{
		name:  "LevelTreeItem " + number,
		ctype: ControlTreeItem,
	}
	item.children = append(item.children,
		&fakeElement{ctype: ControlEdit, value: number},
		&fakeElement{ctype: ControlEdit, value: name},
	)
	if withToggle {
		item.children = append(item.children, &fakeElement{
			ctype:    ControlButton,
			autoID:   "IsLevelVisibleButton",
			toggle:   ToggleOn,
			onInvoke: flipOnInvoke,
		})
	}
	return item
}

func fakeTree(items ...*fakeElement) *fakeElement {
	return &fakeElement{
		name:     "Levels",
		autoID:   "LevelTreeListBox",
		ctype:    ControlTree,
		children: items,
	}
}

func testConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}
