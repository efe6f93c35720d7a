// Package migrations carries the Postgres schema as numbered
// golang-migrate style files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
