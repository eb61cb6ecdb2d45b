// Package migrations embeds the schema so the binary can migrate without
// files on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
