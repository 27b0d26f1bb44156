// Package migrations embeds SQL migration files.
package migrations

import "embed"

// FS contains the migrations for every SQL driver, one directory each.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

const (
	PostgresDir = "postgres"
	SQLiteDir   = "sqlite"
)
