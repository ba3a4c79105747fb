// Package migrations embeds the SQL schema so the server can bootstrap it.
package migrations

import "embed"

// FS holds every *.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
