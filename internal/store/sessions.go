package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rockhoundapp/rockhound/internal/model"
)

const sessionColumns = `id, name, start_time, end_time, status, location_name, finds`

// CreateSession inserts a session row.
// Returns model.ErrDuplicateID if the id already exists.
func (s *Store) CreateSession(ctx context.Context, sess *model.Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}

	findsJSON, err := membershipToJSON(sess.Finds)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO sessions (id, name, start_time, end_time, status, location_name, finds)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.conn.ExecContext(ctx, query,
		sess.ID,
		sess.Name,
		sess.StartTime,
		int64ToNull(sess.EndTime),
		string(sess.Status),
		strToNull(sess.LocationName),
		findsJSON,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("session %s: %w", sess.ID, model.ErrDuplicateID)
		}
		return fmt.Errorf("failed to create session %s: %w", sess.ID, err)
	}

	return nil
}

// UpdateSession replaces the full session row (full-row semantics, unlike
// the find patch path). Returns model.ErrNotFound if no row matches.
func (s *Store) UpdateSession(ctx context.Context, sess *model.Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}

	findsJSON, err := membershipToJSON(sess.Finds)
	if err != nil {
		return err
	}

	query := `
	UPDATE sessions
	SET name = ?, start_time = ?, end_time = ?, status = ?, location_name = ?, finds = ?
	WHERE id = ?
	`

	res, err := s.conn.ExecContext(ctx, query,
		sess.Name,
		sess.StartTime,
		int64ToNull(sess.EndTime),
		string(sess.Status),
		strToNull(sess.LocationName),
		findsJSON,
		sess.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", sess.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", sess.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", sess.ID, model.ErrNotFound)
	}
	return nil
}

// ListSessions retrieves all sessions ordered by start time descending.
func (s *Store) ListSessions(ctx context.Context) ([]*model.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions ORDER BY start_time DESC"

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// GetSession retrieves a single session by id.
// Returns model.ErrNotFound if it does not exist.
func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE id = ?"
	sess, err := scanSession(s.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return sess, nil
}

// ActiveSession returns the currently active session, or (nil, nil) when
// no session is active.
func (s *Store) ActiveSession(ctx context.Context) (*model.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE status = ? ORDER BY start_time DESC LIMIT 1"
	sess, err := scanSession(s.conn.QueryRowContext(ctx, query, string(model.SessionActive)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return sess, nil
}

// EndActiveSessions completes every active session in a single targeted
// UPDATE, stamping the given end time. Returns the number of sessions
// ended. Used by the session manager to enforce the one-active invariant.
func (s *Store) EndActiveSessions(ctx context.Context, endTime int64) (int64, error) {
	query := "UPDATE sessions SET status = ?, end_time = ? WHERE status = ?"
	res, err := s.conn.ExecContext(ctx, query,
		string(model.SessionComplete), endTime, string(model.SessionActive))
	if err != nil {
		return 0, fmt.Errorf("failed to end active sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to end active sessions: %w", err)
	}
	return n, nil
}

func scanSession(sc scanner) (*model.Session, error) {
	var (
		sess      model.Session
		endTime   sql.NullInt64
		status    string
		location  sql.NullString
		findsJSON string
	)

	err := sc.Scan(&sess.ID, &sess.Name, &sess.StartTime, &endTime, &status, &location, &findsJSON)
	if err != nil {
		return nil, err
	}

	if endTime.Valid {
		v := endTime.Int64
		sess.EndTime = &v
	}
	sess.Status = model.SessionStatus(status)
	sess.LocationName = nullToStr(location)

	if findsJSON != "" && findsJSON != "null" {
		if err := json.Unmarshal([]byte(findsJSON), &sess.Finds); err != nil {
			return nil, fmt.Errorf("failed to unmarshal membership of %s: %w", sess.ID, err)
		}
	}
	if sess.Finds == nil {
		sess.Finds = []string{}
	}

	return &sess, nil
}

func membershipToJSON(finds []string) (string, error) {
	if finds == nil {
		finds = []string{}
	}
	data, err := json.Marshal(finds)
	if err != nil {
		return "", fmt.Errorf("failed to marshal membership: %w", err)
	}
	return string(data), nil
}

func int64ToNull(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
