// Package migrations holds the schema migrations for the bun store.
package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrations is the registry every migration file adds itself to.
// MustRegister names each migration after the file that registers it.
var Migrations = migrate.NewMigrations()

// Up creates the migration tables when needed and applies pending migrations.
// It returns the applied group, which is zero when nothing was pending.
func Up(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	m := migrate.NewMigrator(db, Migrations)
	if err := m.Init(ctx); err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	group, err := m.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return group, nil
}
