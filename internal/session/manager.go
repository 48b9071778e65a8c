// Package session keeps the bidirectional session-find relation
// consistent and owns the session lifecycle.
//
// The membership list is a single JSON column on the session row, so a
// link or unlink is an unavoidable read-modify-write. The manager
// serializes those rewrites per session id; relying on the store's row
// atomicity alone would lose updates under rapid-fire captures.
package session

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/rockhoundapp/rockhound/internal/ids"
	"github.com/rockhoundapp/rockhound/internal/model"
	"github.com/rockhoundapp/rockhound/internal/photos"
	"github.com/rockhoundapp/rockhound/internal/store"
)

// Manager owns session lifecycle and relation maintenance.
type Manager struct {
	store  *store.Store
	photos *photos.Store
	logger *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-session membership locks
}

// NewManager creates a Manager. If logger is nil a default stderr logger
// is used. The photo store may be nil in tests that never delete finds.
func NewManager(st *store.Store, ph *photos.Store, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}
	return &Manager{
		store:  st,
		photos: ph,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// lockSession returns the mutex serializing membership rewrites for one
// session id, creating it on first use.
func (m *Manager) lockSession(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	return l
}

// Start begins a new session, auto-ending any currently active session
// first so that at most one session is active at a time. An empty name
// gets a default based on the time of day.
func (m *Manager) Start(ctx context.Context, name, locationName string) (*model.Session, error) {
	now := time.Now()

	ended, err := m.store.EndActiveSessions(ctx, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to end previous session: %w", err)
	}
	if ended > 0 {
		m.logger.Printf("Auto-ended %d active session(s) before starting a new one", ended)
	}

	if name == "" {
		name = model.DefaultSessionName(now)
	}

	sess := &model.Session{
		ID:        ids.New("ses"),
		Name:      name,
		StartTime: now.UnixMilli(),
		Status:    model.SessionActive,
		Finds:     []string{},
	}
	if locationName != "" {
		sess.LocationName = &locationName
	}

	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	m.logger.Printf("Started session %s (%s)", sess.ID, sess.Name)
	return sess, nil
}

// End completes the session, stamping its end time.
func (m *Manager) End(ctx context.Context, sessionID string) (*model.Session, error) {
	lock := m.lockSession(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	end := time.Now().UnixMilli()
	sess.EndTime = &end
	sess.Status = model.SessionComplete
	if err := m.store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}

	m.logger.Printf("Ended session %s", sessionID)
	return sess, nil
}

// Rename changes the session's display name.
func (m *Manager) Rename(ctx context.Context, sessionID, name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", model.ErrValidation)
	}

	lock := m.lockSession(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.Name = name
	return m.store.UpdateSession(ctx, sess)
}

// Active returns the currently active session, or (nil, nil).
func (m *Manager) Active(ctx context.Context) (*model.Session, error) {
	return m.store.ActiveSession(ctx)
}

// Link adds the find to the session's membership list and sets the
// find's session_id. A find belongs to at most one session, so linking
// a find that is already in another session detaches it from that one
// first. Idempotent: linking twice leaves exactly one membership entry.
// The membership rewrite reads the latest session row under the
// per-session lock.
func (m *Manager) Link(ctx context.Context, findID, sessionID string) error {
	// Surface a typed miss before touching the membership list.
	find, err := m.store.GetFind(ctx, findID)
	if err != nil {
		return err
	}

	if find.SessionID != nil && *find.SessionID != sessionID {
		// Detach from the old session; the find-side write happens below
		// when the new session is attached. Locks are taken one at a
		// time, never nested.
		if err := m.Unlink(ctx, findID, *find.SessionID, false); err != nil {
			return fmt.Errorf("failed to detach %s from session %s: %w", findID, *find.SessionID, err)
		}
	}

	lock := m.lockSession(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	if !sess.Contains(findID) {
		sess.Finds = append(sess.Finds, findID)
		if err := m.store.UpdateSession(ctx, sess); err != nil {
			return fmt.Errorf("failed to add %s to session %s: %w", findID, sessionID, err)
		}
	}

	sid := sessionID
	if err := m.store.UpdateFind(ctx, findID, model.FindPatch{SessionID: &sid}); err != nil {
		return fmt.Errorf("failed to set session on find %s: %w", findID, err)
	}

	return nil
}

// Unlink removes the find from the session's membership list. When
// clearFindSide is true (the normal path) the find's session_id is also
// cleared; the find-deletion path passes false since the row is about to
// be removed anyway.
func (m *Manager) Unlink(ctx context.Context, findID, sessionID string, clearFindSide bool) error {
	lock := m.lockSession(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	if sess.Contains(findID) {
		kept := make([]string, 0, len(sess.Finds))
		for _, id := range sess.Finds {
			if id != findID {
				kept = append(kept, id)
			}
		}
		sess.Finds = kept
		if err := m.store.UpdateSession(ctx, sess); err != nil {
			return fmt.Errorf("failed to remove %s from session %s: %w", findID, sessionID, err)
		}
	}

	if clearFindSide {
		if err := m.store.UpdateFind(ctx, findID, model.FindPatch{ClearSessionID: true}); err != nil {
			return fmt.Errorf("failed to clear session on find %s: %w", findID, err)
		}
	}

	return nil
}

// DeleteFind removes a find entirely: detaches it from its session,
// deletes the row (queue rows cascade), and removes the local photo
// file. File removal is best-effort; a leftover file is picked up by the
// integrity auditor as an orphan.
func (m *Manager) DeleteFind(ctx context.Context, findID string) error {
	find, err := m.store.GetFind(ctx, findID)
	if err != nil {
		return err
	}

	if find.SessionID != nil {
		// Skip the find-side write; the row is going away.
		if err := m.Unlink(ctx, findID, *find.SessionID, false); err != nil {
			return err
		}
	}

	if err := m.store.DeleteFind(ctx, findID); err != nil {
		return err
	}

	if m.photos != nil && !photos.IsRemote(find.PhotoURI) {
		if err := m.photos.Delete(find.PhotoURI); err != nil {
			m.logger.Printf("Warning: failed to remove photo for %s: %v", findID, err)
		}
	}

	m.logger.Printf("Deleted find %s", findID)
	return nil
}
