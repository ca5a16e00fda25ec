package models

import "errors"

var (
	// ErrNotFound is returned by repositories when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTransientLookup marks store failures (unreachable, timeout) that callers
	// triage per check rather than treat as a definitive answer.
	ErrTransientLookup = errors.New("transient lookup failure")
)
