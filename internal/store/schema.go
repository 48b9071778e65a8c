package store

import (
	"context"
	"fmt"
	"strings"
)

// EnsureSchema creates the finds, sessions and work_queue tables along
// with their indexes. Idempotent - safe to call on every cold start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS finds (
		id TEXT PRIMARY KEY,
		photo_uri TEXT NOT NULL,
		lat REAL,
		long REAL,
		timestamp TEXT NOT NULL,
		label TEXT,
		note TEXT,
		category TEXT,
		status TEXT NOT NULL DEFAULT 'draft',
		session_id TEXT,
		favorite INTEGER NOT NULL DEFAULT 0,
		ai_data TEXT,
		synced INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER,
		status TEXT NOT NULL DEFAULT 'active',
		location_name TEXT,
		finds TEXT NOT NULL DEFAULT '[]'  -- JSON array, insertion order
	);

	CREATE TABLE IF NOT EXISTS work_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		find_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_attempt TEXT,
		error TEXT,
		FOREIGN KEY (find_id) REFERENCES finds(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_finds_session ON finds(session_id);
	CREATE INDEX IF NOT EXISTS idx_finds_status ON finds(status);
	CREATE INDEX IF NOT EXISTS idx_finds_timestamp ON finds(timestamp);
	CREATE INDEX IF NOT EXISTS idx_finds_synced ON finds(synced);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(start_time);
	CREATE INDEX IF NOT EXISTS idx_queue_status ON work_queue(status);
	CREATE INDEX IF NOT EXISTS idx_queue_find ON work_queue(find_id);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// columnDef declares a column the current model expects a table to carry,
// together with a backfill that resolves NULL ambiguity for old rows.
type columnDef struct {
	name     string
	ddl      string // type and default, appended after the name
	backfill string // optional UPDATE issued after a successful ADD COLUMN
}

// declaredColumns is the full column set of the current model, per table.
// Forward-only: columns are only ever added here, never removed or renamed.
var declaredColumns = map[string][]columnDef{
	"finds": {
		{name: "photo_uri", ddl: "TEXT NOT NULL DEFAULT ''"},
		{name: "lat", ddl: "REAL"},
		{name: "long", ddl: "REAL"},
		{name: "timestamp", ddl: "TEXT NOT NULL DEFAULT ''"},
		{name: "label", ddl: "TEXT"},
		{name: "note", ddl: "TEXT"},
		{name: "category", ddl: "TEXT"},
		{name: "status", ddl: "TEXT NOT NULL DEFAULT 'draft'",
			backfill: "UPDATE finds SET status = 'draft' WHERE status IS NULL OR status = ''"},
		{name: "session_id", ddl: "TEXT"},
		{name: "favorite", ddl: "INTEGER NOT NULL DEFAULT 0",
			backfill: "UPDATE finds SET favorite = 0 WHERE favorite IS NULL"},
		{name: "ai_data", ddl: "TEXT"},
		{name: "synced", ddl: "INTEGER NOT NULL DEFAULT 0",
			backfill: "UPDATE finds SET synced = 0 WHERE synced IS NULL"},
	},
	"sessions": {
		{name: "name", ddl: "TEXT NOT NULL DEFAULT ''"},
		{name: "start_time", ddl: "INTEGER NOT NULL DEFAULT 0"},
		{name: "end_time", ddl: "INTEGER"},
		{name: "status", ddl: "TEXT NOT NULL DEFAULT 'active'",
			backfill: "UPDATE sessions SET status = 'active' WHERE status IS NULL OR status = ''"},
		{name: "location_name", ddl: "TEXT"},
		{name: "finds", ddl: "TEXT NOT NULL DEFAULT '[]'",
			backfill: "UPDATE sessions SET finds = '[]' WHERE finds IS NULL OR finds = ''"},
	},
	"work_queue": {
		{name: "find_id", ddl: "TEXT NOT NULL DEFAULT ''"},
		{name: "status", ddl: "TEXT NOT NULL DEFAULT 'pending'",
			backfill: "UPDATE work_queue SET status = 'pending' WHERE status IS NULL OR status = ''"},
		{name: "attempts", ddl: "INTEGER NOT NULL DEFAULT 0",
			backfill: "UPDATE work_queue SET attempts = 0 WHERE attempts IS NULL"},
		{name: "last_attempt", ddl: "TEXT"},
		{name: "error", ddl: "TEXT"},
	},
}

// ApplyColumnMigrations brings each table's live column set up to the
// declared model by issuing additive ALTER TABLE statements for any
// missing column, then backfilling defaults.
//
// Migrations are forward-only and additive: columns are never dropped or
// renamed, and unknown extra columns are ignored. A failure on a single
// column (e.g. a duplicate-column error from a racing second start) is
// logged and skipped, not fatal.
func (s *Store) ApplyColumnMigrations(ctx context.Context) error {
	for table, cols := range declaredColumns {
		live, err := s.tableColumns(ctx, table)
		if err != nil {
			return fmt.Errorf("failed to inspect columns of %s: %w", table, err)
		}

		for _, col := range cols {
			if live[col.name] {
				continue
			}

			ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, col.name, col.ddl)
			if _, err := s.conn.ExecContext(ctx, ddl); err != nil {
				if isDuplicateColumnErr(err) {
					s.logger.Printf("Warning: column %s.%s already exists, skipping", table, col.name)
					continue
				}
				s.logger.Printf("Warning: failed to add column %s.%s: %v (skipping)", table, col.name, err)
				continue
			}
			s.logger.Printf("Added column %s.%s", table, col.name)

			if col.backfill == "" {
				continue
			}
			if _, err := s.conn.ExecContext(ctx, col.backfill); err != nil {
				s.logger.Printf("Warning: backfill for %s.%s failed: %v", table, col.name, err)
			}
		}
	}

	return nil
}

// tableColumns returns the live column names of a table via PRAGMA table_info.
func (s *Store) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.conn.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// isDuplicateColumnErr matches SQLite's duplicate-column error, which
// indicates a benign race rather than real failure.
func isDuplicateColumnErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}
