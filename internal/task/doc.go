// Package task implements the task distribution pipeline: validating and enqueueing
// tasks, consuming them from a durable queue into fixed-size batches, and executing
// every (user, question, document) item on a bounded worker pool with cache-aside
// answer lookup, result persistence and outcome broadcast.
package task
