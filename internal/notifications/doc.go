// Package notifications pushes run outcomes to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers wire it unconditionally. Failed runs always notify; successful runs
// notify only when on_success is set.
package notifications
