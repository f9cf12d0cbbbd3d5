// Package migrations holds the schema history of the SQL store.
//
// Statements are kept to the subset SQLite and PostgreSQL both accept, so one
// history serves both drivers.
package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the registry every migration file adds itself to.
var Migrations = migrate.NewMigrations()
