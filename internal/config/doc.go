// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, files). It provides type-safe
// access to the queue, cache, result sink, worker and LLM settings needed by the
// pipeline while keeping configuration details separate from processing logic.
package config
