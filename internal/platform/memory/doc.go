// Package memory provides an in-process, size-bounded key/value store whose entries
// expire a fixed TTL after they are set. It backs the answer cache when no Redis
// server is configured and in tests.
package memory
