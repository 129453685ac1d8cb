// Package application implements the ingestion engine's core: the work
// queue, worker pool, event scanner, background scheduler, and their
// supporting helpers.
package application

import "errors"

// Sentinel errors forming the canonical error taxonomy from the
// error-handling design. Every other error surfaced by this package either
// is one of these or wraps one of these with fmt.Errorf's %w.
var (
	// ErrCrossOwnerMove is returned when an event scan discovers an issue
	// that moved to a different owner than the one the event was
	// originally observed under. Cross-owner moves are unrecoverable for
	// that scan iteration.
	ErrCrossOwnerMove = errors.New("issue moved across owners: unsupported")

	// ErrInvalidConfiguration is returned when an owner name appears in
	// more than one of the configured org, user, and individual-repo
	// lists.
	ErrInvalidConfiguration = errors.New("invalid configuration: overlapping owners")

	// ErrMarkProcessedMismatch is an invariant violation: markProcessed was
	// called for a unit with no matching prior successful poll.
	ErrMarkProcessedMismatch = errors.New("markProcessed called without a matching poll")

	// ErrWatchdogInterrupted is returned (or wraps) when a worker's current
	// upstream call is aborted by its watchdog after a stall.
	ErrWatchdogInterrupted = errors.New("upstream call interrupted by watchdog")

	// ErrHeartbeatStalled is returned by a Heartbeat-guarded task when no
	// progress was reported within the configured bound.
	ErrHeartbeatStalled = errors.New("task stalled: no heartbeat progress reported")
)
