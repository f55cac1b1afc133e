package migrations

import "embed"

// FS holds the versioned schema files applied by the migrate command.
//
//go:embed *.sql
var FS embed.FS
