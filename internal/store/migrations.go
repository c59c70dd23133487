package store

import "embed"

// migrationsFS embeds the SQL migrations, applied in filename order.
//
//go:embed migrations
var migrationsFS embed.FS
