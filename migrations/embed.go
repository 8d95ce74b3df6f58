// Package migrations embeds the PostgreSQL schema files applied at boot.
package migrations

import "embed"

// FS holds every *.sql migration in lexical order of application.
//
//go:embed *.sql
var FS embed.FS
