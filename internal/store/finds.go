package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rockhoundapp/rockhound/internal/model"
)

const findColumns = `id, photo_uri, lat, long, timestamp, label, note, category,
       status, session_id, favorite, ai_data, synced`

// InsertFind inserts a single find row.
// Returns model.ErrDuplicateID if the id already exists.
func (s *Store) InsertFind(ctx context.Context, f *model.Find) error {
	if err := f.Validate(); err != nil {
		return err
	}

	aiJSON, err := envelopeToNullString(f.AIData)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO finds (
		id, photo_uri, lat, long, timestamp, label, note, category,
		status, session_id, favorite, ai_data, synced
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.conn.ExecContext(ctx, query,
		f.ID,
		f.PhotoURI,
		floatToNull(f.Lat),
		floatToNull(f.Long),
		f.Timestamp.UTC().Format(time.RFC3339),
		strToNull(f.Label),
		strToNull(f.Note),
		strToNull(f.Category),
		string(f.Status),
		strToNull(f.SessionID),
		boolToInt(f.Favorite),
		aiJSON,
		boolToInt(f.Synced),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("find %s: %w", f.ID, model.ErrDuplicateID)
		}
		return fmt.Errorf("failed to insert find %s: %w", f.ID, err)
	}

	return nil
}

// UpdateFind applies a partial update to a find. The UPDATE statement is
// built only from the fields present in the patch; everything else is
// untouched. An empty patch issues no query at all.
// Returns model.ErrNotFound if no row matches the id.
func (s *Store) UpdateFind(ctx context.Context, id string, patch model.FindPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	if err := patch.Validate(); err != nil {
		return err
	}

	var sets []string
	var args []interface{}

	if patch.PhotoURI != nil {
		sets = append(sets, "photo_uri = ?")
		args = append(args, *patch.PhotoURI)
	}
	if patch.Lat != nil {
		sets = append(sets, "lat = ?")
		args = append(args, *patch.Lat)
	}
	if patch.Long != nil {
		sets = append(sets, "long = ?")
		args = append(args, *patch.Long)
	}
	if patch.Label != nil {
		sets = append(sets, "label = ?")
		args = append(args, *patch.Label)
	}
	if patch.Note != nil {
		sets = append(sets, "note = ?")
		args = append(args, *patch.Note)
	}
	if patch.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *patch.Category)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.ClearSessionID {
		sets = append(sets, "session_id = NULL")
	} else if patch.SessionID != nil {
		sets = append(sets, "session_id = ?")
		args = append(args, *patch.SessionID)
	}
	if patch.Favorite != nil {
		sets = append(sets, "favorite = ?")
		args = append(args, boolToInt(*patch.Favorite))
	}
	if patch.AIData != nil {
		aiJSON, err := envelopeToNullString(patch.AIData)
		if err != nil {
			return err
		}
		sets = append(sets, "ai_data = ?")
		args = append(args, aiJSON)
	}
	if patch.Synced != nil {
		sets = append(sets, "synced = ?")
		args = append(args, boolToInt(*patch.Synced))
	}

	query := "UPDATE finds SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)

	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update find %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update find %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("find %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// FindFilter configures ListFinds. Filters combine with logical AND.
type FindFilter struct {
	// BySession enables the session filter. With SessionID empty it
	// matches only unlinked finds (session_id IS NULL); with SessionID
	// set it matches only that session's finds.
	BySession bool
	SessionID string
	// Status filters by find status. Empty or model.StatusAll matches all.
	Status model.FindStatus
}

// ListFinds retrieves finds matching the filter, ordered by capture
// timestamp descending. Every caller relies on that ordering.
func (s *Store) ListFinds(ctx context.Context, filter FindFilter) ([]*model.Find, error) {
	var conditions []string
	var args []interface{}

	if filter.BySession {
		if filter.SessionID == "" {
			conditions = append(conditions, "session_id IS NULL")
		} else {
			conditions = append(conditions, "session_id = ?")
			args = append(args, filter.SessionID)
		}
	}

	if filter.Status != "" && filter.Status != model.StatusAll {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := "SELECT " + findColumns + " FROM finds"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list finds: %w", err)
	}
	defer rows.Close()

	return scanFinds(rows)
}

// GetFind retrieves a single find by id.
// Returns model.ErrNotFound if it does not exist.
func (s *Store) GetFind(ctx context.Context, id string) (*model.Find, error) {
	query := "SELECT " + findColumns + " FROM finds WHERE id = ?"
	f, err := scanFind(s.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("find %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get find %s: %w", id, err)
	}
	return f, nil
}

// DeleteFind removes a find row. Queue rows for the find cascade away.
// Returns model.ErrNotFound if no row matches. Session detachment is the
// session manager's job and must happen before this call.
func (s *Store) DeleteFind(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, "DELETE FROM finds WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete find %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete find %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("find %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// SetFindSynced rewrites photo_uri to the remote URL and flips synced in
// one statement, so a crash leaves the row either fully-local-unsynced
// or fully-remote-synced, never in between.
func (s *Store) SetFindSynced(ctx context.Context, id, remoteURL string) error {
	query := "UPDATE finds SET photo_uri = ?, synced = 1 WHERE id = ?"
	res, err := s.conn.ExecContext(ctx, query, remoteURL, id)
	if err != nil {
		return fmt.Errorf("failed to mark find %s synced: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark find %s synced: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("find %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for the shared scan path.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFind(sc scanner) (*model.Find, error) {
	var (
		f                     model.Find
		lat, long             sql.NullFloat64
		ts                    string
		label, note, category sql.NullString
		status                string
		sessionID             sql.NullString
		favorite, synced      int
		aiJSON                sql.NullString
	)

	err := sc.Scan(
		&f.ID, &f.PhotoURI, &lat, &long, &ts, &label, &note, &category,
		&status, &sessionID, &favorite, &aiJSON, &synced,
	)
	if err != nil {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp for %s: %w", f.ID, err)
	}
	f.Timestamp = t

	f.Lat = nullToFloat(lat)
	f.Long = nullToFloat(long)
	f.Label = nullToStr(label)
	f.Note = nullToStr(note)
	f.Category = nullToStr(category)
	f.Status = model.FindStatus(status)
	f.SessionID = nullToStr(sessionID)
	f.Favorite = favorite != 0
	f.Synced = synced != 0

	if aiJSON.Valid && aiJSON.String != "" {
		var env model.AIEnvelope
		if err := json.Unmarshal([]byte(aiJSON.String), &env); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ai_data for %s: %w", f.ID, err)
		}
		f.AIData = &env
	}

	return &f, nil
}

func scanFinds(rows *sql.Rows) ([]*model.Find, error) {
	var finds []*model.Find
	for rows.Next() {
		f, err := scanFind(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan find: %w", err)
		}
		finds = append(finds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating finds: %w", err)
	}
	return finds, nil
}

func envelopeToNullString(env *model.AIEnvelope) (sql.NullString, error) {
	if env == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(env)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal ai_data: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func strToNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullToStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func floatToNull(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullToFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
