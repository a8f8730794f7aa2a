package scheduler

import "errors"

var (
	// ErrNotRunning reports an operation attempted while the engine is stopped.
	ErrNotRunning = errors.New("scheduler: engine not running")

	// ErrNoCallback reports a due job with no command callback registered.
	ErrNoCallback = errors.New("scheduler: no command callback registered")

	// ErrQueueFull reports a fire dropped because the dispatch queue is full.
	ErrQueueFull = errors.New("scheduler: dispatch queue full")
)
