package migrations

import "embed"

// FS contains embedded SQLite migrations for crawler storage.
//
//go:embed *.sql
var FS embed.FS
