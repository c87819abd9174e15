// Command migrate manages the schema of the sqlite or postgres store.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/okian/shobdo/internal/adapters/repository"
	"github.com/okian/shobdo/internal/adapters/repository/migrations"
	"github.com/okian/shobdo/internal/config"
	"github.com/okian/shobdo/pkg/logger"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v2"
)

var errMemoryStore = errors.New("the memory store has no schema; set SHOBDO_STORE_DRIVER to sqlite or postgres")

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := newApp().Run(os.Args); err != nil {
		logger.Get().Error(context.Background(), "migrate failed", logger.Error(err))
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "migrate",
		Usage: "shobdo database migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "driver",
				Usage:   "store driver (sqlite or postgres); defaults to the loaded config",
				EnvVars: []string{"SHOBDO_STORE_DRIVER"},
			},
			&cli.StringFlag{
				Name:    "dsn",
				Usage:   "store DSN; defaults to the loaded config",
				EnvVars: []string{"SHOBDO_STORE_DSN"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "create migration tables",
				Action: withMigrator(func(c *cli.Context, m *migrate.Migrator) error {
					if err := m.Init(c.Context); err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, "migration tables ready")
					return nil
				}),
			},
			{
				Name:  "up",
				Usage: "apply pending migrations",
				Action: withMigrator(func(c *cli.Context, m *migrate.Migrator) error {
					if err := m.Init(c.Context); err != nil {
						return err
					}
					group, err := m.Migrate(c.Context)
					if err != nil {
						return err
					}
					if group.IsZero() {
						fmt.Fprintln(c.App.Writer, "no new migrations to run")
						return nil
					}
					fmt.Fprintf(c.App.Writer, "migrated to %s\n", group)
					return nil
				}),
			},
			{
				Name:  "down",
				Usage: "roll back the last migration group",
				Action: withMigrator(func(c *cli.Context, m *migrate.Migrator) error {
					group, err := m.Rollback(c.Context)
					if err != nil {
						return err
					}
					if group.IsZero() {
						fmt.Fprintln(c.App.Writer, "no groups to roll back")
						return nil
					}
					fmt.Fprintf(c.App.Writer, "rolled back %s\n", group)
					return nil
				}),
			},
			{
				Name:  "status",
				Usage: "print migration status",
				Action: withMigrator(func(c *cli.Context, m *migrate.Migrator) error {
					ms, err := m.MigrationsWithStatus(c.Context)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "migrations: %s\n", ms)
					fmt.Fprintf(c.App.Writer, "applied: %s\n", ms.Applied())
					fmt.Fprintf(c.App.Writer, "unapplied: %s\n", ms.Unapplied())
					return nil
				}),
			},
		},
	}
}

// withMigrator opens the configured store for the duration of one command.
func withMigrator(fn func(c *cli.Context, m *migrate.Migrator) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load(c.Context)
		if err != nil {
			return err
		}
		driver, dsn := cfg.StoreDriver, cfg.StoreDSN
		if v := c.String("driver"); v != "" {
			driver = v
		}
		if v := c.String("dsn"); v != "" {
			dsn = v
		}
		if driver == config.StoreMemory {
			return errMemoryStore
		}

		store, err := repository.Open(c.Context, driver, dsn,
			repository.WithMaxOpenConns(cfg.StoreMaxOpenConns),
			repository.WithPingTimeout(cfg.StorePingTimeout))
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		return fn(c, migrate.NewMigrator(store.DB(), migrations.Migrations))
	}
}
