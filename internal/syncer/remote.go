package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rockhoundapp/rockhound/internal/model"
)

// Remote is the authoritative store finds and sessions are pushed to.
type Remote interface {
	EnsureSchema(ctx context.Context) error
	PushFind(ctx context.Context, deviceID string, f *model.Find, remoteURL string) error
	PushSession(ctx context.Context, deviceID string, s *model.Session) error
}

// PgxPool is the minimal pool surface the remote needs. It is satisfied
// by *pgxpool.Pool and by pgxmock.PgxPoolIface in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresRemote pushes rows to a remote Postgres database. Rows are
// keyed by (device_id, id) so one remote database serves many devices.
type PostgresRemote struct {
	pool PgxPool
}

// NewPostgresRemote connects a pool for the given DSN.
func NewPostgresRemote(ctx context.Context, dsn string) (*PostgresRemote, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to remote store: %w", err)
	}
	return &PostgresRemote{pool: pool}, nil
}

// NewPostgresRemoteWithPool wraps an existing pool; used by tests.
func NewPostgresRemoteWithPool(pool PgxPool) *PostgresRemote {
	return &PostgresRemote{pool: pool}
}

// Close releases the pool.
func (r *PostgresRemote) Close() {
	r.pool.Close()
}

// EnsureSchema creates the remote tables if absent. Idempotent.
func (r *PostgresRemote) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS finds (
		device_id TEXT NOT NULL,
		id TEXT NOT NULL,
		photo_url TEXT NOT NULL,
		lat DOUBLE PRECISION,
		long DOUBLE PRECISION,
		taken_at TIMESTAMPTZ NOT NULL,
		label TEXT,
		note TEXT,
		category TEXT,
		status TEXT NOT NULL,
		session_id TEXT,
		favorite BOOLEAN NOT NULL DEFAULT FALSE,
		ai_data JSONB,
		pushed_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (device_id, id)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		device_id TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		start_time BIGINT NOT NULL,
		end_time BIGINT,
		status TEXT NOT NULL,
		location_name TEXT,
		finds JSONB NOT NULL DEFAULT '[]',
		pushed_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (device_id, id)
	);
	`
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure remote schema: %w", err)
	}
	return nil
}

// PushFind upserts the find keyed by (device_id, id). The photo_url
// column always receives the remote URL, regardless of what the local
// row still says.
func (r *PostgresRemote) PushFind(ctx context.Context, deviceID string, f *model.Find, remoteURL string) error {
	var aiData []byte
	if f.AIData != nil {
		var err error
		aiData, err = json.Marshal(f.AIData)
		if err != nil {
			return fmt.Errorf("failed to marshal ai_data for %s: %w", f.ID, err)
		}
	}

	query := `
	INSERT INTO finds (device_id, id, photo_url, lat, long, taken_at, label, note,
	                   category, status, session_id, favorite, ai_data, pushed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (device_id, id) DO UPDATE SET
		photo_url = EXCLUDED.photo_url,
		lat = EXCLUDED.lat,
		long = EXCLUDED.long,
		label = EXCLUDED.label,
		note = EXCLUDED.note,
		category = EXCLUDED.category,
		status = EXCLUDED.status,
		session_id = EXCLUDED.session_id,
		favorite = EXCLUDED.favorite,
		ai_data = EXCLUDED.ai_data,
		pushed_at = EXCLUDED.pushed_at
	`

	_, err := r.pool.Exec(ctx, query,
		deviceID, f.ID, remoteURL, f.Lat, f.Long, f.Timestamp.UTC(),
		f.Label, f.Note, f.Category, string(f.Status), f.SessionID,
		f.Favorite, aiData, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to push find %s: %w", f.ID, err)
	}
	return nil
}

// PushSession upserts the session row verbatim (no file payload).
func (r *PostgresRemote) PushSession(ctx context.Context, deviceID string, s *model.Session) error {
	findsJSON, err := json.Marshal(s.Finds)
	if err != nil {
		return fmt.Errorf("failed to marshal membership for %s: %w", s.ID, err)
	}

	query := `
	INSERT INTO sessions (device_id, id, name, start_time, end_time, status,
	                      location_name, finds, pushed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (device_id, id) DO UPDATE SET
		name = EXCLUDED.name,
		start_time = EXCLUDED.start_time,
		end_time = EXCLUDED.end_time,
		status = EXCLUDED.status,
		location_name = EXCLUDED.location_name,
		finds = EXCLUDED.finds,
		pushed_at = EXCLUDED.pushed_at
	`

	_, err = r.pool.Exec(ctx, query,
		deviceID, s.ID, s.Name, s.StartTime, s.EndTime, string(s.Status),
		s.LocationName, findsJSON, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to push session %s: %w", s.ID, err)
	}
	return nil
}
