package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MigrationAssessmentSessions is the SQL DDL for the assessment_sessions
// table. It is safe to execute multiple times (uses IF NOT EXISTS). Callers
// can run this at application startup as an auto-migration step.
const MigrationAssessmentSessions = `
CREATE TABLE IF NOT EXISTS assessment_sessions (
    id          TEXT PRIMARY KEY,
    session_json JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL,
    expires_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessment_sessions_expires_at
    ON assessment_sessions (expires_at);
`

// ---------------------------------------------------------------------------
// pgRow / pgRows / pgConn abstractions (allow unit testing without a real DB)
// ---------------------------------------------------------------------------

// pgRow represents a single row returned by QueryRow.
type pgRow interface {
	Scan(dest ...any) error
}

// pgRows represents a result set returned by Query.
type pgRows interface {
	Next() bool
	Scan(dest ...any) error
	Close()
	Err() error
}

// pgConn is the minimal database interface required by PGFlowStore.
// Both *pgxpool.Pool (via a thin adapter) and test mocks implement this.
type pgConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgRow
	Query(ctx context.Context, sql string, args ...any) (pgRows, error)
	Exec(ctx context.Context, sql string, args ...any) error
}

// ---------------------------------------------------------------------------
// PGFlowStore
// ---------------------------------------------------------------------------

// PGFlowStore is a PostgreSQL-backed FlowStore. Sessions are stored in the
// assessment_sessions table as JSONB with an explicit expires_at column
// that the database uses for filtering, so sessions survive restarts and
// can be shared between instances.
type PGFlowStore struct {
	db  pgConn
	ttl time.Duration
}

// NewPGFlowStore creates a PG-backed store. The db parameter must satisfy
// the pgConn interface -- use NewPGFlowStoreFromPool to wrap a
// *pgxpool.Pool, or pass a mock in tests.
func NewPGFlowStore(db pgConn, ttl time.Duration) *PGFlowStore {
	return &PGFlowStore{db: db, ttl: ttl}
}

// save inserts or replaces (upsert) the session. Create and Update share
// it because the upsert makes them the same statement.
func (s *PGFlowStore) save(ctx context.Context, session *FlowSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	expiresAt := session.UpdatedAt.Add(s.ttl)

	const query = `INSERT INTO assessment_sessions (id, session_json, created_at, updated_at, expires_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET session_json = EXCLUDED.session_json,
                               updated_at   = EXCLUDED.updated_at,
                               expires_at   = EXCLUDED.expires_at`

	if err := s.db.Exec(ctx, query, session.ID.String(), data, session.CreatedAt, session.UpdatedAt, expiresAt); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Create implements FlowStore.
func (s *PGFlowStore) Create(ctx context.Context, session *FlowSession) error {
	return s.save(ctx, session)
}

// Update implements FlowStore.
func (s *PGFlowStore) Update(ctx context.Context, session *FlowSession) error {
	return s.save(ctx, session)
}

// Get implements FlowStore. It selects the row only if it has not expired.
func (s *PGFlowStore) Get(ctx context.Context, id uuid.UUID) (*FlowSession, error) {
	const query = `SELECT session_json FROM assessment_sessions
WHERE id = $1 AND expires_at > now()`

	var data []byte
	if err := s.db.QueryRow(ctx, query, id.String()).Scan(&data); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var session FlowSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

// Delete implements FlowStore. Deleting an unknown id is not an error.
func (s *PGFlowStore) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM assessment_sessions WHERE id = $1`
	if err := s.db.Exec(ctx, query, id.String()); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// List implements FlowStore. Pages are ordered newest first and the total
// counts every unexpired session.
func (s *PGFlowStore) List(ctx context.Context, limit, offset int) ([]*FlowSession, int, error) {
	const countQuery = `SELECT COUNT(*) FROM assessment_sessions WHERE expires_at > now()`

	var total int
	if err := s.db.QueryRow(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	const pageQuery = `SELECT session_json FROM assessment_sessions
WHERE expires_at > now()
ORDER BY created_at DESC, id
LIMIT $1 OFFSET $2`

	rows, err := s.db.Query(ctx, pageQuery, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*FlowSession, 0, limit)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, 0, fmt.Errorf("scan session: %w", err)
		}
		var session FlowSession
		if err := json.Unmarshal(data, &session); err != nil {
			return nil, 0, fmt.Errorf("unmarshal session: %w", err)
		}
		sessions = append(sessions, &session)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, total, nil
}

// Cleanup deletes all expired rows from the table.
func (s *PGFlowStore) Cleanup(ctx context.Context) error {
	const query = `DELETE FROM assessment_sessions WHERE expires_at <= now()`
	if err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("cleanup sessions: %w", err)
	}
	return nil
}

// isNoRows returns true when the error represents a "no rows" condition.
// It works with both pgx (pgx.ErrNoRows) and the mock used in tests.
func isNoRows(err error) bool {
	if err == pgx.ErrNoRows {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "no rows")
}

// ---------------------------------------------------------------------------
// pgxPoolWrapper adapts *pgxpool.Pool to the pgConn interface
// ---------------------------------------------------------------------------

// pgxPoolWrapper wraps a *pgxpool.Pool so it satisfies the pgConn
// interface. The adapter is necessary because pgxpool.Pool.Exec returns
// (pgconn.CommandTag, error) whereas pgConn.Exec returns only error.
type pgxPoolWrapper struct {
	pool *pgxpool.Pool
}

func (w *pgxPoolWrapper) QueryRow(ctx context.Context, sql string, args ...any) pgRow {
	return w.pool.QueryRow(ctx, sql, args...)
}

func (w *pgxPoolWrapper) Query(ctx context.Context, sql string, args ...any) (pgRows, error) {
	rows, err := w.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (w *pgxPoolWrapper) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := w.pool.Exec(ctx, sql, args...)
	return err
}

// NewPGFlowStoreFromPool creates a PG-backed store directly from a
// *pgxpool.Pool. This is the recommended constructor for production use.
func NewPGFlowStoreFromPool(pool *pgxpool.Pool, ttl time.Duration) *PGFlowStore {
	return &PGFlowStore{
		db:  &pgxPoolWrapper{pool: pool},
		ttl: ttl,
	}
}
