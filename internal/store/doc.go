// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying result sink from the pipeline's core
// logic, allowing processing rules to remain independent of specific database
// technologies or persistence details.
package store
