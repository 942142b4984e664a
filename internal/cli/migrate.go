package cli

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"asq-order-service/internal/config"
	pgmigrations "asq-order-service/internal/infra/postgres/migrations"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

var errNoPostgres = errors.New("postgres url not configured")

// NewMigrateCmd applies the order tables migrations. With --status it only
// reports which migrations are applied.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var statusOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the order question tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if statusOnly {
				return migrationStatus(cmd.Context(), cfg)
			}
			return runMigrationsWithConfig(cmd.Context(), cfg)
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "report applied and pending migrations without running them")
	return cmd
}

func openMigrator(cfg config.Config) (*migrate.Migrator, func(), error) {
	if cfg.Postgres.URL == "" {
		return nil, nil, errNoPostgres
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return migrate.NewMigrator(db, pgmigrations.Migrations), func() { _ = db.Close() }, nil
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config) error {
	migrator, closeDB, err := openMigrator(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := migrator.Init(ctx); err != nil {
		return err
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		slog.Info("order tables up to date")
		return nil
	}
	for _, m := range group.Migrations {
		slog.Info("migration applied", "group", group.ID, "name", m.Name)
	}
	return nil
}

func migrationStatus(ctx context.Context, cfg config.Config) error {
	migrator, closeDB, err := openMigrator(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := migrator.Init(ctx); err != nil {
		return err
	}
	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		return err
	}
	for _, m := range ms {
		slog.Info("migration", "name", m.Name, "applied", m.IsApplied(), "group", m.GroupID)
	}
	slog.Info("migration status", "applied", len(ms.Applied()), "pending", len(ms.Unapplied()))
	return nil
}
