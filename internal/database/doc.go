// Package database manages the TimescaleDB connection pool used by the
// tick recorder and creates its schema.
package database
