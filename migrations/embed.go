// Package migrations embeds the SQLite schema migrations into the binary.
package migrations

import "embed"

// FS holds every *.sql file of this directory at its root.
//
//go:embed *.sql
var FS embed.FS
