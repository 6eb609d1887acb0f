//go:build windows

package main

import (
	"fmt"
	"syscall"
	"unsafe"

	"github.com/go-ole/go-ole"
	"github.com/lxn/win"
)

// UI Automation is a plain COM API with no IDispatch surface, so the
// calls below go straight through the vtables. Slot numbers follow the
// interface layouts in UIAutomationClient.h.
var (
	clsidCUIAutomation = ole.NewGUID("{FF48DBA4-60EF-4201-AA87-54103EEF594E}")
	iidIUIAutomation   = ole.NewGUID("{30CBE57D-D9D0-452A-AB13-7AC5AC4825EE}")

	iidInvokePattern = ole.NewGUID("{FB377FBE-8EA6-46D5-9C73-6499642D3059}")
	iidValuePattern  = ole.NewGUID("{A94CD8B1-0844-4CD6-9D2D-640537AB39E9}")
	iidTogglePattern = ole.NewGUID("{94CF8058-9B8D-4AB9-8BFD-4CD0A33C8C70}")
)

const (
	treeScopeChildren = 2

	patternInvoke = 10000
	patternValue  = 10002
	patternToggle = 10015
)

// comCall invokes vtable slot n on a raw COM pointer and returns the
// HRESULT as an error when it is a failure code.
func comCall(obj unsafe.Pointer, slot int, args ...uintptr) error {
	vtbl := *(**[64]uintptr)(obj)
	full := make([]uintptr, 0, len(args)+1)
	full = append(full, uintptr(obj))
	full = append(full, args...)
	hr, _, _ := syscall.SyscallN(vtbl[slot], full...)
	if int32(hr) < 0 {
		return ole.NewError(hr)
	}
	return nil
}

func comRelease(obj unsafe.Pointer) {
	if obj != nil {
		comCall(obj, 2)
	}
}

func takeBstr(bstr uintptr) string {
	if bstr == 0 {
		return ""
	}
	s := ole.BstrToString((*uint16)(unsafe.Pointer(bstr)))
	ole.SysFreeString((*int16)(unsafe.Pointer(bstr)))
	return s
}

// initCOM must run at the start of every goroutine that touches UIA. The
// multithreaded apartment lets element handles created on one goroutine
// be probed from another.
func initCOM() {
	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		// S_FALSE just means this thread was already initialized.
		if oleErr, ok := err.(*ole.OleError); !ok || oleErr.Code() != 1 {
			if logger != nil {
				logger.Printf("[UIA] CoInitializeEx: %v", err)
			}
		}
	}
}

// uiAutomation wraps the CUIAutomation root object.
type uiAutomation struct {
	ptr unsafe.Pointer
}

func newUIAutomation() (*uiAutomation, error) {
	unk, err := ole.CreateInstance(clsidCUIAutomation, iidIUIAutomation)
	if err != nil {
		return nil, fmt.Errorf("create CUIAutomation: %w", err)
	}
	return &uiAutomation{ptr: unsafe.Pointer(unk)}, nil
}

func (a *uiAutomation) Release() {
	comRelease(a.ptr)
	a.ptr = nil
}

// trueCondition allocates a fresh match-everything condition. Caller
// releases.
func (a *uiAutomation) trueCondition() (unsafe.Pointer, error) {
	var cond unsafe.Pointer
	if err := comCall(a.ptr, 21, uintptr(unsafe.Pointer(&cond))); err != nil {
		return nil, fmt.Errorf("CreateTrueCondition: %w", err)
	}
	return cond, nil
}

// ElementFromHandle attaches to the UIA element behind a window handle.
func (a *uiAutomation) ElementFromHandle(hwnd win.HWND) (Element, error) {
	var raw unsafe.Pointer
	if err := comCall(a.ptr, 6, uintptr(hwnd), uintptr(unsafe.Pointer(&raw))); err != nil {
		return nil, fmt.Errorf("ElementFromHandle(%#x): %w", hwnd, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("ElementFromHandle(%#x): %w", hwnd, ErrNotFound)
	}
	return &uiaElement{auto: a, ptr: raw}, nil
}

// uiaElement implements Element over IUIAutomationElement.
type uiaElement struct {
	auto *uiAutomation
	ptr  unsafe.Pointer
}

func (e *uiaElement) Name() (string, error) {
	var bstr uintptr
	if err := comCall(e.ptr, 21, uintptr(unsafe.Pointer(&bstr))); err != nil {
		return "", fmt.Errorf("get name: %w", err)
	}
	return takeBstr(bstr), nil
}

func (e *uiaElement) AutomationID() (string, error) {
	var bstr uintptr
	if err := comCall(e.ptr, 27, uintptr(unsafe.Pointer(&bstr))); err != nil {
		return "", fmt.Errorf("get automation id: %w", err)
	}
	return takeBstr(bstr), nil
}

func (e *uiaElement) ControlType() (ControlType, error) {
	var ct int32
	if err := comCall(e.ptr, 19, uintptr(unsafe.Pointer(&ct))); err != nil {
		return 0, fmt.Errorf("get control type: %w", err)
	}
	return ControlType(ct), nil
}

// pattern fetches one of the control patterns via GetCurrentPatternAs.
// Returns nil without error when the element does not implement it.
func (e *uiaElement) pattern(id int, iid *ole.GUID) (unsafe.Pointer, error) {
	var raw unsafe.Pointer
	if err := comCall(e.ptr, 14, uintptr(id), uintptr(unsafe.Pointer(iid)),
		uintptr(unsafe.Pointer(&raw))); err != nil {
		return nil, err
	}
	return raw, nil
}

func (e *uiaElement) Value() (string, error) {
	pat, err := e.pattern(patternValue, iidValuePattern)
	if err != nil {
		return "", fmt.Errorf("value pattern: %w", err)
	}
	if pat == nil {
		return "", nil
	}
	defer comRelease(pat)
	var bstr uintptr
	if err := comCall(pat, 4, uintptr(unsafe.Pointer(&bstr))); err != nil {
		return "", fmt.Errorf("get value: %w", err)
	}
	return takeBstr(bstr), nil
}

func (e *uiaElement) Children() ([]Element, error) {
	cond, err := e.auto.trueCondition()
	if err != nil {
		return nil, err
	}
	defer comRelease(cond)

	var arr unsafe.Pointer
	if err := comCall(e.ptr, 6, uintptr(treeScopeChildren), uintptr(cond),
		uintptr(unsafe.Pointer(&arr))); err != nil {
		return nil, fmt.Errorf("FindAll children: %w", err)
	}
	if arr == nil {
		return nil, nil
	}
	defer comRelease(arr)

	var n int32
	if err := comCall(arr, 3, uintptr(unsafe.Pointer(&n))); err != nil {
		return nil, fmt.Errorf("element array length: %w", err)
	}
	out := make([]Element, 0, n)
	for i := int32(0); i < n; i++ {
		var raw unsafe.Pointer
		if err := comCall(arr, 4, uintptr(i), uintptr(unsafe.Pointer(&raw))); err != nil {
			releaseAll(out)
			return nil, fmt.Errorf("element array get(%d): %w", i, err)
		}
		if raw != nil {
			out = append(out, &uiaElement{auto: e.auto, ptr: raw})
		}
	}
	return out, nil
}

func (e *uiaElement) Invoke() error {
	pat, err := e.pattern(patternInvoke, iidInvokePattern)
	if err != nil {
		return fmt.Errorf("invoke pattern: %w", err)
	}
	if pat == nil {
		return fmt.Errorf("invoke pattern: %w", ErrNotFound)
	}
	defer comRelease(pat)
	if err := comCall(pat, 3); err != nil {
		return fmt.Errorf("invoke: %w", err)
	}
	return nil
}

func (e *uiaElement) ToggleState() ToggleVal {
	pat, err := e.pattern(patternToggle, iidTogglePattern)
	if err != nil || pat == nil {
		return ToggleUnknown
	}
	defer comRelease(pat)
	var state int32
	if err := comCall(pat, 4, uintptr(unsafe.Pointer(&state))); err != nil {
		return ToggleUnknown
	}
	return ToggleVal(state)
}

func (e *uiaElement) Release() {
	comRelease(e.ptr)
	e.ptr = nil
}

func releaseAll(els []Element) {
	for _, el := range els {
		el.Release()
	}
}
