// Package db provides the embedded database schemas.
package db

import _ "embed"

// Schema contains the PostgreSQL DDL for all application tables. Every
// statement is idempotent so the schema can be applied on each start.
//
//go:embed migrations/001_schema.sql
var Schema string

// SQLiteSchema is the SQLite rendition of Schema.
//
//go:embed migrations/sqlite/001_schema.sql
var SQLiteSchema string
