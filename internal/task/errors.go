package task

import "errors"

// Validation errors returned by NewTask and DecodeTask.
var (
	ErrEmptyQuestion    = errors.New("question cannot be empty")
	ErrNoDocumentRefs   = errors.New("at least one document reference is required")
	ErrMalformedPayload = errors.New("malformed task payload")
)

// Queue and pool errors.
var (
	ErrQueueClosed  = errors.New("task queue is closed")
	ErrQueueFull    = errors.New("task queue is full")
	ErrSubmitFailed = errors.New("failed to submit task")
	ErrPoolStopped  = errors.New("worker pool is stopped")
	ErrStopTimeout  = errors.New("timed out waiting for workers to finish")
)

// ErrGeneratorPanic wraps a panic raised inside an answer generator.
var ErrGeneratorPanic = errors.New("answer generator panicked")
