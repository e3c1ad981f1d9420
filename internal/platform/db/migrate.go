package db

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration is a single forward-only schema step.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// migrationLockID is the pg advisory lock key guarding concurrent boots.
const migrationLockID int64 = 0x746f6f6c63726962

// Migrate applies every migration whose version is not yet recorded in
// schema_migrations. Each migration runs in its own transaction, in version order.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger, migrations []Migration) error {
	if err := validateMigrations(migrations); err != nil {
		return err
	}
	ordered := append([]Migration(nil), migrations...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Version < ordered[j].Version })

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("platform/db: acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("platform/db: advisory lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockID)
	}()

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return fmt.Errorf("platform/db: create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("platform/db: list migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range ordered {
		if applied[m.Version] {
			continue
		}
		err := pgx.BeginTxFunc(ctx, conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("platform/db: migration %04d_%s: %w", m.Version, m.Name, err)
		}
		if logger != nil {
			logger.Info("migration applied", slog.Int("version", m.Version), slog.String("name", m.Name))
		}
	}
	return nil
}

func validateMigrations(migrations []Migration) error {
	seen := make(map[int]string, len(migrations))
	for _, m := range migrations {
		if m.Version <= 0 {
			return fmt.Errorf("platform/db: migration %q has non-positive version", m.Name)
		}
		if prev, ok := seen[m.Version]; ok {
			return fmt.Errorf("platform/db: migrations %q and %q share version %d", prev, m.Name, m.Version)
		}
		seen[m.Version] = m.Name
	}
	return nil
}
