// Package sqlite provides the SQLite implementation of the result sink, used for
// local operation. It relies on the pure-Go modernc.org/sqlite driver.
package sqlite
