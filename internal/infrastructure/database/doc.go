// Package database opens the SQLite file used for the command audit trail
// and applies its schema migrations.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil { ... }
//	defer db.Close()
//	if err := db.Migrate(ctx, migrations.FS); err != nil { ... }
//
// Migrations are forward-only YYYYMMDD_HHMMSS_name.up.sql files applied in
// version order and recorded in schema_migrations.
package database
