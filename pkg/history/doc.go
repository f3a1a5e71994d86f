// Package history persists a log of submissions so completed or cancelled
// jobs can be traced after the scheduler has forgotten them.
//
// It currently supports a single SQLite backend; an empty or "none" driver
// disables persistence entirely (Open returns a nil Store).
package history
