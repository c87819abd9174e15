package worker

import "errors"

// Sentinel kinds for worker errors.
var (
	ErrBackpressure = errors.New("serializer queue is full")
	ErrStopped      = errors.New("worker stopped")
	ErrJobPanicked  = errors.New("job panicked")
)
