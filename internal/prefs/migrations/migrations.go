// Package migrations embeds the SQL migration files for prefs.db.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
