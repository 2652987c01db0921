// Package api serves the worker's admin HTTP endpoints: a health check reporting on
// the pipeline's external dependencies and a stats endpoint exposing executor,
// dispatcher and queue counters.
package api
