package migrations

import "embed"

// FS holds the schema migrations, applied through the iofs source.
//
//go:embed *.sql
var FS embed.FS

const Version = 1
