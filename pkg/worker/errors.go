package worker

import "errors"

var (
	// ErrNilProcessor panics pool construction without a processor.
	ErrNilProcessor = errors.New("worker pool requires a processor function")
	// ErrPoolNotStarted is returned by Submit before Start.
	ErrPoolNotStarted = errors.New("worker pool not started")
	// ErrPoolAlreadyStarted is returned by a second Start.
	ErrPoolAlreadyStarted = errors.New("worker pool already started")
	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("worker pool stopped")
	// ErrQueueFull is returned when a work item is dropped.
	ErrQueueFull = errors.New("worker pool queue full")
	// ErrStopTimeout is returned when workers outlive the Stop timeout.
	ErrStopTimeout = errors.New("worker pool stop timeout")
)
