// Package migrations embeds the versioned SQL schema applied by
// `clinic-server migrate up`.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
