package db

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dr-abraham74/paracetamol-OD/internal/domain/assessment"
)

// Migration is one versioned schema change applied at startup. SQL must be
// idempotent (IF NOT EXISTS guards) so a partially applied run can simply
// be re-run.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations returns the full schema history for the service in version
// order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "assessment_sessions", SQL: assessment.MigrationAssessmentSessions},
	}
}

const migrationsTableSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// versionRows is the result-set seam for reading applied versions.
type versionRows interface {
	Next() bool
	Scan(dest ...any) error
	Close()
	Err() error
}

// migrateConn is the minimal database surface the migrator needs. A
// *pgxpool.Pool is adapted via NewMigrator; tests pass a mock.
type migrateConn interface {
	Exec(ctx context.Context, sql string, args ...any) error
	Query(ctx context.Context, sql string, args ...any) (versionRows, error)
}

// Migrator applies pending migrations and records them in the
// schema_migrations table.
type Migrator struct {
	conn       migrateConn
	migrations []Migration
}

// NewMigrator wraps a pgx pool. The migrations slice is usually
// Migrations() but commands can pass a subset.
func NewMigrator(pool *pgxpool.Pool, migrations []Migration) *Migrator {
	return &Migrator{conn: &poolMigrateConn{pool: pool}, migrations: migrations}
}

func newMigratorConn(conn migrateConn, migrations []Migration) *Migrator {
	return &Migrator{conn: conn, migrations: migrations}
}

// Validate checks the registered migrations for duplicate or unordered
// versions and missing fields.
func (m *Migrator) Validate() error {
	seen := make(map[int]bool, len(m.migrations))
	last := 0
	for _, mig := range m.migrations {
		if mig.Version <= 0 {
			return fmt.Errorf("migration %q: version must be positive", mig.Name)
		}
		if mig.Name == "" {
			return fmt.Errorf("migration version %d has no name", mig.Version)
		}
		if mig.SQL == "" {
			return fmt.Errorf("migration %q has no SQL", mig.Name)
		}
		if seen[mig.Version] {
			return fmt.Errorf("duplicate migration version %d", mig.Version)
		}
		if mig.Version < last {
			return fmt.Errorf("migration versions out of order at %d", mig.Version)
		}
		seen[mig.Version] = true
		last = mig.Version
	}
	return nil
}

// Up applies every pending migration in version order and returns how many
// were applied.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	if err := m.conn.Exec(ctx, migrationsTableSQL); err != nil {
		return 0, fmt.Errorf("create schema_migrations table: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	pending := make([]Migration, 0, len(m.migrations))
	for _, mig := range m.migrations {
		if !applied[mig.Version] {
			pending = append(pending, mig)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	count := 0
	for _, mig := range pending {
		if err := m.conn.Exec(ctx, mig.SQL); err != nil {
			return count, fmt.Errorf("apply migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		if err := m.conn.Exec(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
			mig.Version, mig.Name,
		); err != nil {
			return count, fmt.Errorf("record migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		count++
	}
	return count, nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := m.conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied versions: %w", err)
	}
	return applied, nil
}

// poolMigrateConn adapts *pgxpool.Pool to the migrateConn interface.
type poolMigrateConn struct {
	pool *pgxpool.Pool
}

func (p *poolMigrateConn) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := p.pool.Exec(ctx, sql, args...)
	return err
}

func (p *poolMigrateConn) Query(ctx context.Context, sql string, args ...any) (versionRows, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
