package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rockhoundapp/rockhound/internal/model"
)

// EnqueueWork inserts a pending queue row for the find and returns its
// sequence number. The table carries no uniqueness constraint on find_id;
// callers enforce logical idempotence via HasActiveWork.
func (s *Store) EnqueueWork(ctx context.Context, findID string) (int64, error) {
	res, err := s.conn.ExecContext(ctx,
		"INSERT INTO work_queue (find_id, status) VALUES (?, ?)",
		findID, string(model.WorkPending))
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue work for %s: %w", findID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue work for %s: %w", findID, err)
	}
	return id, nil
}

// HasActiveWork reports whether a non-terminal (pending or processing)
// queue item already exists for the find. This is the enforcement point
// for one in-flight analysis per find.
func (s *Store) HasActiveWork(ctx context.Context, findID string) (bool, error) {
	var exists int
	err := s.conn.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM work_queue WHERE find_id = ? AND status IN (?, ?))",
		findID, string(model.WorkPending), string(model.WorkProcessing)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check active work for %s: %w", findID, err)
	}
	return exists != 0, nil
}

// ClaimWork transitions the oldest claimable pending item to processing
// and returns it, stamping last_attempt. An item is claimable when it
// has never been attempted or when its last attempt is at or before
// readyBefore; callers pass now minus their retry backoff so retried
// items wait out the window. The claim is a single statement so two
// interleaved workers cannot grab the same item. Returns (nil, nil)
// when nothing is claimable.
func (s *Store) ClaimWork(ctx context.Context, readyBefore time.Time) (*model.WorkItem, error) {
	query := `
	UPDATE work_queue
	SET status = ?, last_attempt = ?
	WHERE id = (
		SELECT id FROM work_queue
		WHERE status = ? AND (last_attempt IS NULL OR last_attempt <= ?)
		ORDER BY id LIMIT 1)
	RETURNING id, find_id, status, attempts, last_attempt, error
	`

	now := time.Now().UTC().Format(time.RFC3339)
	row := s.conn.QueryRowContext(ctx, query,
		string(model.WorkProcessing), now, string(model.WorkPending),
		readyBefore.UTC().Format(time.RFC3339))

	item, err := scanWorkItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim work: %w", err)
	}
	return item, nil
}

// RequeueProcessingWork returns every processing row to pending and
// reports how many were moved. A row can only be processing while a
// worker holds it, so any processing row seen at worker startup was
// interrupted mid-flight. last_attempt is preserved, so the retry
// window still applies to the reclaimed item.
func (s *Store) RequeueProcessingWork(ctx context.Context) (int64, error) {
	res, err := s.conn.ExecContext(ctx,
		"UPDATE work_queue SET status = ? WHERE status = ?",
		string(model.WorkPending), string(model.WorkProcessing))
	if err != nil {
		return 0, fmt.Errorf("failed to requeue processing work: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to requeue processing work: %w", err)
	}
	return n, nil
}

// CompleteWork marks a queue item completed.
func (s *Store) CompleteWork(ctx context.Context, id int64) error {
	return s.setWorkStatus(ctx, id, model.WorkCompleted, "")
}

// RetryWork returns a failed attempt to pending, incrementing the attempt
// counter and recording the failure message, all in one targeted UPDATE.
func (s *Store) RetryWork(ctx context.Context, id int64, errMsg string) error {
	return s.bumpWork(ctx, id, model.WorkPending, errMsg)
}

// FailWork marks a queue item terminally failed, incrementing the attempt
// counter and recording the failure message.
func (s *Store) FailWork(ctx context.Context, id int64, errMsg string) error {
	return s.bumpWork(ctx, id, model.WorkFailed, errMsg)
}

func (s *Store) bumpWork(ctx context.Context, id int64, status model.WorkStatus, errMsg string) error {
	query := "UPDATE work_queue SET status = ?, attempts = attempts + 1, error = ? WHERE id = ?"
	res, err := s.conn.ExecContext(ctx, query, string(status), errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to update work item %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update work item %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("work item %d: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *Store) setWorkStatus(ctx context.Context, id int64, status model.WorkStatus, errMsg string) error {
	var (
		res sql.Result
		err error
	)
	if errMsg == "" {
		res, err = s.conn.ExecContext(ctx,
			"UPDATE work_queue SET status = ? WHERE id = ?", string(status), id)
	} else {
		res, err = s.conn.ExecContext(ctx,
			"UPDATE work_queue SET status = ?, error = ? WHERE id = ?", string(status), errMsg, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update work item %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update work item %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("work item %d: %w", id, model.ErrNotFound)
	}
	return nil
}

// GetWorkItem retrieves a single queue item by sequence number.
func (s *Store) GetWorkItem(ctx context.Context, id int64) (*model.WorkItem, error) {
	query := "SELECT id, find_id, status, attempts, last_attempt, error FROM work_queue WHERE id = ?"
	item, err := scanWorkItem(s.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("work item %d: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get work item %d: %w", id, err)
	}
	return item, nil
}

// ListWorkForFind returns the queue items for a find, oldest first.
func (s *Store) ListWorkForFind(ctx context.Context, findID string) ([]*model.WorkItem, error) {
	query := "SELECT id, find_id, status, attempts, last_attempt, error FROM work_queue WHERE find_id = ? ORDER BY id"
	rows, err := s.conn.QueryContext(ctx, query, findID)
	if err != nil {
		return nil, fmt.Errorf("failed to list work for %s: %w", findID, err)
	}
	defer rows.Close()

	var items []*model.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating work items: %w", err)
	}
	return items, nil
}

// WorkCounts returns the number of queue items per status.
func (s *Store) WorkCounts(ctx context.Context) (map[model.WorkStatus]int, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM work_queue GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count work items: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.WorkStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan work counts: %w", err)
		}
		counts[model.WorkStatus(status)] = n
	}
	return counts, rows.Err()
}

func scanWorkItem(sc scanner) (*model.WorkItem, error) {
	var (
		item        model.WorkItem
		status      string
		lastAttempt sql.NullString
		errMsg      sql.NullString
	)

	err := sc.Scan(&item.ID, &item.FindID, &status, &item.Attempts, &lastAttempt, &errMsg)
	if err != nil {
		return nil, err
	}

	item.Status = model.WorkStatus(status)
	if lastAttempt.Valid {
		if t, err := time.Parse(time.RFC3339, lastAttempt.String); err == nil {
			item.LastAttempt = &t
		}
	}
	if errMsg.Valid && errMsg.String != "" {
		v := errMsg.String
		item.Error = &v
	}

	return &item, nil
}
