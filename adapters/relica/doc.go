// Package relica provides SQL-backed implementations of the relay
// repository and stream interfaces using the Relica query builder.
//
// Supported databases: MySQL, PostgreSQL, SQLite (anything with a
// database/sql driver Relica understands).
//
// The stream implementation emulates consumer-group semantics over a plain
// table: entries are claimed with conditional updates keyed on the claim
// timestamp, so concurrent workers never double-claim a deliverable entry.
package relica
