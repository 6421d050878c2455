// Package migrations содержит SQL-миграции схемы Conveyor.
package migrations

import "embed"

// FS — встроенные файлы миграций для golang-migrate (source iofs).
//
//go:embed *.sql
var FS embed.FS
