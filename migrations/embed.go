// Package migrations embeds the PostgreSQL schema migrations.
package migrations

import "embed"

// FS holds every numbered .sql file in this directory, applied in name order.
//
//go:embed *.sql
var FS embed.FS
