package migration

import (
	"context"
	"fmt"

	"github.com/fekuna/omnipos-catalog-sync/internal/logger"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type Migration struct {
	Name string
	Up   string
}

// Catalog returns the schema for products and variants. The manual id
// sequence starts right above manualIDFloor.
func Catalog(manualIDFloor int64) []Migration {
	return []Migration{
		{
			Name: "0001_products",
			Up: `
				CREATE TABLE IF NOT EXISTS products (
					id           BIGINT PRIMARY KEY,
					title        TEXT NOT NULL,
					handle       TEXT NOT NULL,
					product_type TEXT,
					updated_at   TIMESTAMPTZ NOT NULL
				);
				CREATE INDEX IF NOT EXISTS products_updated_at_idx ON products (updated_at DESC);
			`,
		},
		{
			Name: "0002_product_variants",
			Up: `
				CREATE TABLE IF NOT EXISTS product_variants (
					id         BIGINT NOT NULL,
					product_id BIGINT NOT NULL REFERENCES products (id) ON DELETE CASCADE,
					position   INT NOT NULL DEFAULT 0,
					title      TEXT NOT NULL,
					sku        TEXT,
					price      NUMERIC,
					PRIMARY KEY (product_id, id)
				);
			`,
		},
		{
			Name: "0003_product_manual_id_seq",
			Up: fmt.Sprintf(`
				CREATE SEQUENCE IF NOT EXISTS product_manual_id_seq
					AS BIGINT
					MINVALUE 1
					START WITH %d;
			`, manualIDFloor+1),
		},
	}
}

type Migrator struct {
	db     *sqlx.DB
	logger logger.ZapLogger
}

func NewMigrator(db *sqlx.DB, log logger.ZapLogger) *Migrator {
	return &Migrator{db: db, logger: log}
}

// Up applies every migration not yet recorded in schema_migrations, each in
// its own transaction.
func (m *Migrator) Up(ctx context.Context, migrations []Migration) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	for _, mig := range migrations {
		var exists bool
		err := m.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, mig.Name)
		if err != nil {
			return fmt.Errorf("failed to check migration %s: %w", mig.Name, err)
		}
		if exists {
			m.logger.Debug("Migration already applied, skipping", zap.String("name", mig.Name))
			continue
		}

		if err := m.apply(ctx, mig); err != nil {
			return err
		}
		m.logger.Info("Migration applied", zap.String("name", mig.Name))
	}
	return nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, mig.Up); err != nil {
		return fmt.Errorf("failed to apply migration %s: %w", mig.Name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, mig.Name); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", mig.Name, err)
	}
	return tx.Commit()
}
