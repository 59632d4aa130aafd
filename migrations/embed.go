// Package migrations ships the PostgreSQL schema applied to every tenant.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
