// Package migrations embeds the PostgreSQL schema files applied by database.Migrator.
package migrations

import "embed"

// Files holds every versioned .sql file of this directory.
//
//go:embed *.sql
var Files embed.FS
