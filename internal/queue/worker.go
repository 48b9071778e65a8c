// Package queue drives the durable at-least-once analysis queue.
//
// Enqueue is logically idempotent per find: the schema allows duplicate
// rows for one find_id, so the caller-side active-work check here is the
// enforcement point for one in-flight analysis per find. A terminal
// failure is never silent - the find is flipped to ai_analysis_failed so
// the user can see and retry it.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rockhoundapp/rockhound/internal/analysis"
	"github.com/rockhoundapp/rockhound/internal/model"
	"github.com/rockhoundapp/rockhound/internal/store"
)

// DefaultMaxAttempts bounds retries; unbounded retry risks infinite
// background load.
const DefaultMaxAttempts = 5

// DefaultRetryBackoff is how long a retried item is held back before it
// can be claimed again, so a transient outage is not hammered with all
// remaining attempts at once.
const DefaultRetryBackoff = 30 * time.Second

// Worker claims pending queue items and runs remote analysis for them.
type Worker struct {
	store        *store.Store
	analyzer     analysis.Analyzer
	maxAttempts  int
	retryBackoff time.Duration
	interval     time.Duration
	logger       *log.Logger
}

// Config holds worker configuration.
type Config struct {
	// MaxAttempts is the retry ceiling before an item is terminally
	// failed. Zero means DefaultMaxAttempts.
	MaxAttempts int
	// RetryBackoff is how long a retried item waits before the next
	// attempt. Zero means DefaultRetryBackoff; negative makes retries
	// immediately claimable.
	RetryBackoff time.Duration
	// PollInterval is how long Run sleeps when the queue is empty.
	// Zero means 5 seconds.
	PollInterval time.Duration
	// Logger for worker activity.
	Logger *log.Logger
}

// NewWorker creates a Worker over the given store and analyzer.
func NewWorker(st *store.Store, az analysis.Analyzer, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[queue] ", log.LstdFlags)
	}
	return &Worker{
		store:        st,
		analyzer:     az,
		maxAttempts:  cfg.MaxAttempts,
		retryBackoff: cfg.RetryBackoff,
		interval:     cfg.PollInterval,
		logger:       cfg.Logger,
	}
}

// Enqueue requests analysis for a find and flips it to
// pending_ai_analysis. If a non-terminal item already exists for the
// find this is a no-op, so rapid duplicate requests collapse into one.
func (w *Worker) Enqueue(ctx context.Context, findID string) error {
	if _, err := w.store.GetFind(ctx, findID); err != nil {
		return err
	}

	active, err := w.store.HasActiveWork(ctx, findID)
	if err != nil {
		return err
	}
	if active {
		w.logger.Printf("Find %s already queued, skipping enqueue", findID)
		return nil
	}

	if _, err := w.store.EnqueueWork(ctx, findID); err != nil {
		return err
	}

	status := model.StatusPendingAnalysis
	if err := w.store.UpdateFind(ctx, findID, model.FindPatch{Status: &status}); err != nil {
		return fmt.Errorf("failed to mark find %s pending: %w", findID, err)
	}

	w.logger.Printf("Enqueued analysis for find %s", findID)
	return nil
}

// ProcessNext claims and processes one pending item. Returns false when
// nothing was claimable. A failed remote call is handled (retry or
// terminal failure) and reported as processed=true, nil error;
// only store-level failures surface as errors.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	item, err := w.store.ClaimWork(ctx, time.Now().Add(-w.retryBackoff))
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}

	find, err := w.store.GetFind(ctx, item.FindID)
	if errors.Is(err, model.ErrNotFound) {
		// The find disappeared underneath the queue; terminal failure.
		w.logger.Printf("Work item %d references missing find %s", item.ID, item.FindID)
		return true, w.store.FailWork(ctx, item.ID, "find no longer exists")
	}
	if err != nil {
		// A transient read failure must not fail the item terminally; the
		// claimed row is requeued on the next drain pass.
		return true, fmt.Errorf("failed to load find for item %d: %w", item.ID, err)
	}

	env, analyzeErr := w.analyzer.Analyze(ctx, w.buildRequest(ctx, find))
	if analyzeErr != nil {
		return true, w.handleFailure(ctx, item, analyzeErr)
	}

	status := model.StatusCataloged
	patch := model.FindPatch{Status: &status, AIData: env}
	if env.Result.BestGuess.Label != "" && find.Label == nil {
		label := env.Result.BestGuess.Label
		patch.Label = &label
	}
	if env.Result.BestGuess.Category != "" && find.Category == nil {
		category := env.Result.BestGuess.Category
		patch.Category = &category
	}
	if err := w.store.UpdateFind(ctx, find.ID, patch); err != nil {
		return true, w.handleFailure(ctx, item, err)
	}

	if err := w.store.CompleteWork(ctx, item.ID); err != nil {
		return true, err
	}

	w.logger.Printf("Completed analysis for find %s (item %d)", find.ID, item.ID)
	return true, nil
}

// handleFailure either requeues the item for another attempt or marks it
// terminally failed and flips the find to a user-visible failed state.
func (w *Worker) handleFailure(ctx context.Context, item *model.WorkItem, cause error) error {
	attempts := item.Attempts + 1
	w.logger.Printf("Analysis for find %s failed (attempt %d/%d): %v",
		item.FindID, attempts, w.maxAttempts, cause)

	if attempts < w.maxAttempts {
		return w.store.RetryWork(ctx, item.ID, cause.Error())
	}

	if err := w.store.FailWork(ctx, item.ID, cause.Error()); err != nil {
		return err
	}

	status := model.StatusAnalysisFailed
	if err := w.store.UpdateFind(ctx, item.FindID, model.FindPatch{Status: &status}); err != nil {
		return fmt.Errorf("failed to mark find %s analysis-failed: %w", item.FindID, err)
	}
	return nil
}

// buildRequest assembles the analysis request from the find and, when
// linked, its session.
func (w *Worker) buildRequest(ctx context.Context, find *model.Find) analysis.Request {
	req := analysis.Request{ImagePath: find.PhotoURI}

	if find.Lat != nil && find.Long != nil {
		req.LocationHint = fmt.Sprintf("%.5f, %.5f", *find.Lat, *find.Long)
	}
	if find.Note != nil {
		req.ContextNotes = *find.Note
	}
	if find.SessionID != nil {
		if sess, err := w.store.GetSession(ctx, *find.SessionID); err == nil {
			req.SessionContext = sess.Name
			if sess.LocationName != nil {
				req.SessionContext += " at " + *sess.LocationName
			}
		}
	}
	return req
}

// Drain processes items until nothing is claimable, isolating per-item
// failures. Items left in processing by an interrupted run are requeued
// first so a restart resumes them. A retried item inside its backoff
// window is left for a later pass rather than re-claimed immediately.
// Returns the number of items processed.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	requeued, err := w.store.RequeueProcessingWork(ctx)
	if err != nil {
		return 0, err
	}
	if requeued > 0 {
		w.logger.Printf("Requeued %d interrupted item(s)", requeued)
	}

	processed := 0
	for {
		ok, err := w.ProcessNext(ctx)
		if err != nil {
			return processed, err
		}
		if !ok {
			return processed, nil
		}
		processed++
	}
}

// Run polls the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Printf("Worker started (max attempts %d, poll %s)", w.maxAttempts, w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Drain(ctx); err != nil {
			w.logger.Printf("Drain failed: %v", err)
		}

		select {
		case <-ctx.Done():
			w.logger.Printf("Worker stopping: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
