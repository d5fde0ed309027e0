package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path"
	"sort"
	"time"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLockKey serialises Migrate across processes sharing one database.
const migrationLockKey int64 = 0x61747464 // "attd"

var (
	// ErrMigrationChanged is returned when an applied migration file was edited afterwards.
	ErrMigrationChanged = errors.New("applied migration has changed")
	// ErrMigrationUnknown is returned when the database has a migration this build does not ship.
	ErrMigrationUnknown = errors.New("unknown applied migration")
)

type migration struct {
	Version  string
	SQL      string
	Checksum string
}

// AppliedMigration is a row of the migration ledger.
type AppliedMigration struct {
	Version   string
	Checksum  string
	AppliedAt time.Time
}

// loadMigrations reads migrations/*.sql from fsys in version order.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	names, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	migrations := make([]migration, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		sum := sha256.Sum256(content)
		migrations = append(migrations, migration{
			Version:  path.Base(name),
			SQL:      string(content),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}
	return migrations, nil
}

// pendingMigrations returns the migrations missing from applied (version to checksum).
// Applied migrations must still match the shipped files.
func pendingMigrations(migrations []migration, applied map[string]string) ([]migration, error) {
	known := make(map[string]bool, len(migrations))
	var pending []migration
	for _, m := range migrations {
		known[m.Version] = true
		sum, ok := applied[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if sum != m.Checksum {
			return nil, fmt.Errorf("%w: %s", ErrMigrationChanged, m.Version)
		}
	}
	for version := range applied {
		if !known[version] {
			return nil, fmt.Errorf("%w: %s", ErrMigrationUnknown, version)
		}
	}
	return pending, nil
}

func appliedChecksums(ctx context.Context, tx *sql.Tx) (map[string]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT version, checksum FROM attendance_schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var version, sum string
		if err := rows.Scan(&version, &sum); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		applied[version] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

// Migrate applies pending migrations in one transaction. A transaction-scoped
// advisory lock keeps concurrent starts from applying the same file twice.
func (p *Pool) Migrate(ctx context.Context) error {
	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS attendance_schema_migrations (
			version    VARCHAR(255) PRIMARY KEY,
			checksum   CHAR(64) NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := appliedChecksums(ctx, tx)
	if err != nil {
		return err
	}
	pending, err := pendingMigrations(migrations, applied)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	for _, m := range pending {
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("execute migration %s: %w", m.Version, err)
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO attendance_schema_migrations (version, checksum) VALUES ($1, $2)", m.Version, m.Checksum)
		if err != nil {
			return fmt.Errorf("record migration %s: %w", m.Version, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}

	for _, m := range pending {
		log.Printf("Applied migration %s (%s)", m.Version, m.Checksum[:12])
	}
	return nil
}

// MigrationsApplied returns the migration ledger in version order.
func (p *Pool) MigrationsApplied(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT version, checksum, applied_at FROM attendance_schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var m AppliedMigration
		if err := rows.Scan(&m.Version, &m.Checksum, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		applied = append(applied, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration versions: %w", err)
	}
	return applied, nil
}
