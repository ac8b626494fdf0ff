// Package migrations embeds the versioned SQL schema migrations.
package migrations

import "embed"

// FS holds the migration files applied by platform/db.Migrate.
//
//go:embed *.sql
var FS embed.FS
