// Package postgres provides the PostgreSQL implementation of the result sink
// defined in the internal/store package. It handles query execution, error
// mapping and the embedded schema migrations for the query_results table.
package postgres
