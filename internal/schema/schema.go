// Package schema owns the database schema. Migrations run in order inside
// transactions and are recorded in schema_migrations, so startup is
// idempotent across replicas.
package schema

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration is one schema step. Most steps are plain SQL; steps that need
// data-dependent decisions implement Run instead.
type Migration struct {
	Version int
	Name    string
	SQL     string
	Run     func(ctx context.Context, tx *sql.Tx, logger *slog.Logger) error
}

// Migrations returns every known migration in order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "threads", SQL: mustRead("migrations/0001_threads.sql")},
		{Version: 2, Name: "users", SQL: mustRead("migrations/0002_users.sql")},
		{Version: 3, Name: "backfill_thread_owners", Run: backfillThreadOwners},
	}
}

// Migrate applies all pending migrations.
func Migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT        NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range Migrations() {
		applied, err := isApplied(ctx, db, m.Version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := apply(ctx, db, m, logger); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		logger.Info("applied migration", "version", m.Version, "name", m.Name)
	}
	return nil
}

func isApplied(ctx context.Context, db *sql.DB, version int) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %d: %w", version, err)
	}
	return exists, nil
}

func apply(ctx context.Context, db *sql.DB, m Migration, logger *slog.Logger) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if m.SQL != "" {
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			return err
		}
	}
	if m.Run != nil {
		if err := m.Run(ctx, tx, logger); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
		m.Version, m.Name); err != nil {
		return err
	}
	return tx.Commit()
}

// backfillThreadOwners assigns ownerless threads to the earliest account, or
// deletes them when no account exists, then locks the column down and adds
// the owning foreign key. This step
// cannot be reversed: the original NULLs are gone once it commits.
func backfillThreadOwners(ctx context.Context, tx *sql.Tx, logger *slog.Logger) error {
	var orphaned int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM threads WHERE user_id IS NULL`).Scan(&orphaned); err != nil {
		return err
	}

	if orphaned > 0 {
		var firstUserID sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM users ORDER BY created_at ASC LIMIT 1`).Scan(&firstUserID)
		if err != nil && err != sql.ErrNoRows {
			return err
		}

		if firstUserID.Valid {
			if _, err := tx.ExecContext(ctx,
				`UPDATE threads SET user_id = $1 WHERE user_id IS NULL`, firstUserID.String); err != nil {
				return err
			}
			logger.Warn("assigned ownerless threads to earliest account",
				"count", orphaned, "user_id", firstUserID.String)
		} else {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM threads WHERE user_id IS NULL`); err != nil {
				return err
			}
			logger.Warn("deleted ownerless threads, no accounts exist", "count", orphaned)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`ALTER TABLE threads ALTER COLUMN user_id SET NOT NULL`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		ALTER TABLE threads
		ADD CONSTRAINT fk_threads_user_id
		FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE`); err != nil {
		return err
	}
	return nil
}

func mustRead(name string) string {
	data, err := migrationFiles.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("missing embedded migration %s: %v", name, err))
	}
	return string(data)
}
