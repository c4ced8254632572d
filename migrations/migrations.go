// Package migrations embeds the SQL schema of the optional Postgres backend.
package migrations

import "embed"

// FS holds the *.up.sql files in lexical apply order.
//
//go:embed *.sql
var FS embed.FS
