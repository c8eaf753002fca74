// Package database provides SQLite connectivity for the decision log.
//
// The approval workflow itself is deliberately stateless (in-flight
// requests live in memory and are abandoned on restart); the database only
// records history: one row per resolved request, written after the
// completed status event. SQLite with WAL mode is more than enough for
// that write rate and keeps the deployment a single file.
package database
