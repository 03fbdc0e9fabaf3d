// Package journal persists the outcome of every handled overlay event in
// SQLite so operators can audit what the director asked for and what the
// engine acknowledged.
//
// The journal is diagnostic storage, not a replay log. Schema changes bump
// schemaVersion in schema.go; operators delete journal.db to adopt a new
// schema.
package journal
