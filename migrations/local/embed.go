// Package local embeds the SQLite migrations for the on-device entity store.
package local

import "embed"

// FS holds all *.sql migration files for the local store.
//
//go:embed *.sql
var FS embed.FS
