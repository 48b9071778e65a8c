// Package syncer pushes local state to the remote authoritative store:
// photos to blob storage, then find and session rows to Postgres, then a
// single combined local update rewriting photo_uri and flipping synced.
//
// The whole run is re-entrant: already-synced finds are skipped without
// any remote call, and a failed item simply stays unsynced for the next
// run. One item's failure never aborts the batch.
package syncer

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/rockhoundapp/rockhound/internal/model"
	"github.com/rockhoundapp/rockhound/internal/photos"
	"github.com/rockhoundapp/rockhound/internal/store"
)

// Status is the coarse phase of a reconciliation run.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusMigrating Status = "migrating"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

// Progress is a monotonically increasing (completed, total) tuple plus
// the coarse run status, for progress rendering.
type Progress struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Status    Status `json:"status"`
}

// Summary describes a finished run.
type Summary struct {
	FindsSynced    int `json:"finds_synced"`
	FindsSkipped   int `json:"finds_skipped"`
	FindsFailed    int `json:"finds_failed"`
	SessionsPushed int `json:"sessions_pushed"`
	SessionsFailed int `json:"sessions_failed"`
}

// Reconciler drives one device's push to the remote store.
type Reconciler struct {
	store    *store.Store
	uploader Uploader
	remote   Remote
	deviceID string
	logger   *log.Logger

	mu       sync.Mutex
	progress Progress
}

// NewReconciler creates a Reconciler for the given device identity.
// If logger is nil a default stderr logger is used.
func NewReconciler(st *store.Store, up Uploader, remote Remote, deviceID string, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Reconciler{
		store:    st,
		uploader: up,
		remote:   remote,
		deviceID: deviceID,
		logger:   logger,
		progress: Progress{Status: StatusStarting},
	}
}

// Progress returns a snapshot of the current run's progress.
func (r *Reconciler) Progress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

func (r *Reconciler) setProgress(completed, total int, status Status) {
	r.mu.Lock()
	r.progress = Progress{Completed: completed, Total: total, Status: status}
	r.mu.Unlock()
}

// Run pushes every unsynced find and every session. Per find: upload the
// photo (skipped when photo_uri is already remote), push the row, then
// rewrite photo_uri and synced locally in one statement so a crash
// leaves the row fully-local-unsynced or fully-remote-synced.
func (r *Reconciler) Run(ctx context.Context) (*Summary, error) {
	r.setProgress(0, 0, StatusStarting)

	if err := r.remote.EnsureSchema(ctx); err != nil {
		r.setProgress(0, 0, StatusError)
		return nil, err
	}

	finds, err := r.store.ListFinds(ctx, store.FindFilter{Status: model.StatusAll})
	if err != nil {
		r.setProgress(0, 0, StatusError)
		return nil, err
	}
	sessions, err := r.store.ListSessions(ctx)
	if err != nil {
		r.setProgress(0, 0, StatusError)
		return nil, err
	}

	var pending []*model.Find
	summary := &Summary{}
	for _, f := range finds {
		if f.Synced {
			summary.FindsSkipped++
			continue
		}
		pending = append(pending, f)
	}

	total := len(pending) + len(sessions)
	completed := 0
	r.setProgress(completed, total, StatusMigrating)
	r.logger.Printf("Sync starting: %d find(s) to push, %d skipped, %d session(s)",
		len(pending), summary.FindsSkipped, len(sessions))

	for _, f := range pending {
		if err := r.syncFind(ctx, f); err != nil {
			r.logger.Printf("Warning: find %s not synced: %v", f.ID, err)
			summary.FindsFailed++
			continue
		}
		summary.FindsSynced++
		completed++
		r.setProgress(completed, total, StatusMigrating)
	}

	for _, s := range sessions {
		if err := r.remote.PushSession(ctx, r.deviceID, s); err != nil {
			r.logger.Printf("Warning: session %s not pushed: %v", s.ID, err)
			summary.SessionsFailed++
			continue
		}
		summary.SessionsPushed++
		completed++
		r.setProgress(completed, total, StatusMigrating)
	}

	final := StatusComplete
	if summary.FindsFailed > 0 || summary.SessionsFailed > 0 {
		final = StatusError
	}
	r.setProgress(completed, total, final)
	r.logger.Printf("Sync finished: %d synced, %d failed, %d sessions pushed",
		summary.FindsSynced, summary.FindsFailed, summary.SessionsPushed)
	return summary, nil
}

// syncFind pushes one find. The local rewrite happens last and as a
// single statement; until it lands the find remains fully local.
func (r *Reconciler) syncFind(ctx context.Context, f *model.Find) error {
	remoteURL := f.PhotoURI
	if !photos.IsRemote(remoteURL) {
		url, err := r.uploader.Upload(ctx, f.PhotoURI)
		if err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		remoteURL = url
	}

	if err := r.remote.PushFind(ctx, r.deviceID, f, remoteURL); err != nil {
		return fmt.Errorf("push: %w", err)
	}

	if err := r.store.SetFindSynced(ctx, f.ID, remoteURL); err != nil {
		return fmt.Errorf("local update: %w", err)
	}
	return nil
}
