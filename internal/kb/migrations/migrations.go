// Package migrations embeds the knowledge base schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
