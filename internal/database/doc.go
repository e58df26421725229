// Package database opens the PostgreSQL connection pool used by the
// postgres key-value backend.
package database
