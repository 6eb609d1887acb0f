package main

import "errors"

// Failure taxonomy. NotFound and Stale are reported to callers as values,
// never raised as fatal conditions; Conflict aborts a hotkey assignment;
// Ambiguous marks names excluded from reconciliation and fuzzy lookup.
var (
	ErrNotFound  = errors.New("not found")
	ErrStale     = errors.New("stale handle")
	ErrConflict  = errors.New("hotkey conflict")
	ErrAmbiguous = errors.New("ambiguous name")
)
