// Package database provides the PostgreSQL connection pool for the
// event journal.
package database
