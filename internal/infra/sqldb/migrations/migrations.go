// Package migrations holds the schema history. Table structs here are frozen
// snapshots and must not follow later model changes.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
