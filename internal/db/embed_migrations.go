package db

import "embed"

// MigrationFS embeds SQL migration files from internal/db/migrations.
// Applied by the migrate runner when the local store is opened.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
