//go:build windows

package main

import (
	"fmt"
	"runtime"
	"syscall"
	"unsafe"

	"github.com/lxn/win"
)

var (
	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
)

const whKeyboardLL = 13

type kbdllHookStruct struct {
	vkCode      uint32
	scanCode    uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

// vkToToken maps a virtual-key code to the chord vocabulary: a trigger
// token, or a modifier name for the ctrl/alt/shift family. Both empty for
// keys outside the vocabulary.
func vkToToken(vk uint32) (token, modifier string) {
	switch {
	case vk >= 0x41 && vk <= 0x5A:
		return string(rune('a' + vk - 0x41)), ""
	case vk >= 0x30 && vk <= 0x39:
		return string(rune('0' + vk - 0x30)), ""
	case vk >= win.VK_F1 && vk <= win.VK_F24:
		return fmt.Sprintf("f%d", vk-win.VK_F1+1), ""
	}
	switch vk {
	case win.VK_SPACE:
		return "space", ""
	case win.VK_ESCAPE:
		return cancelToken, ""
	case win.VK_CONTROL, win.VK_LCONTROL, win.VK_RCONTROL:
		return "", "ctrl"
	case win.VK_MENU, win.VK_LMENU, win.VK_RMENU:
		return "", "alt"
	case win.VK_SHIFT, win.VK_LSHIFT, win.VK_RSHIFT:
		return "", "shift"
	}
	return "", ""
}

var (
	hookEvents   chan KeyEvent
	hookHandle   uintptr
	hookThreadID uint32
)

// The hook proc never swallows keys. The host keeps seeing everything it
// normally would; chords act in addition to, not instead of, the host's
// own bindings.
var keyboardProc = syscall.NewCallback(func(code int32, wparam, lparam uintptr) uintptr {
	if code >= 0 && hookEvents != nil {
		kb := (*kbdllHookStruct)(unsafe.Pointer(lparam))
		press := wparam == win.WM_KEYDOWN || wparam == win.WM_SYSKEYDOWN
		token, mod := vkToToken(kb.vkCode)
		if token != "" || mod != "" {
			ev := KeyEvent{Press: press, VK: kb.vkCode, Token: token, Modifier: mod}
			select {
			case hookEvents <- ev:
			default:
				// A full queue means dispatch is wedged; dropping beats
				// stalling every keystroke on the system.
			}
		}
	}
	ret, _, _ := procCallNextHookEx.Call(hookHandle, uintptr(code), wparam, lparam)
	return ret
})

// startKeyboardHook installs the low-level hook on a dedicated OS thread
// and pumps its message loop. Events flow into the returned channel until
// stopKeyboardHook posts the quit message.
func startKeyboardHook() <-chan KeyEvent {
	hookEvents = make(chan KeyEvent, 64)
	ready := make(chan struct{})
	go func() {
		defer safeDefer("keyboard hook")
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		hookThreadID = win.GetCurrentThreadId()
		h, _, err := procSetWindowsHookExW.Call(whKeyboardLL, keyboardProc, 0, 0)
		hookHandle = h
		close(ready)
		if h == 0 {
			if logger != nil {
				logger.Printf("[HOOK] SetWindowsHookEx failed: %v", err)
			}
			return
		}
		if logger != nil {
			logger.Printf("[HOOK] keyboard hook installed (thread %d)", hookThreadID)
		}

		var msg win.MSG
		for win.GetMessage(&msg, 0, 0, 0) > 0 {
			win.TranslateMessage(&msg)
			win.DispatchMessage(&msg)
		}

		procUnhookWindowsHookEx.Call(hookHandle)
		hookHandle = 0
		if logger != nil {
			logger.Printf("[HOOK] keyboard hook removed")
		}
	}()
	<-ready
	return hookEvents
}

func stopKeyboardHook() {
	if hookThreadID != 0 {
		procPostThreadMessageW.Call(uintptr(hookThreadID), win.WM_QUIT, 0, 0)
	}
}
