package queue

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockhoundapp/rockhound/internal/analysis"
	"github.com/rockhoundapp/rockhound/internal/model"
	"github.com/rockhoundapp/rockhound/internal/store"
)

// stubAnalyzer returns canned envelopes, failing the first failures
// calls.
type stubAnalyzer struct {
	failures int
	calls    int
	lastReq  analysis.Request
}

func (a *stubAnalyzer) Analyze(ctx context.Context, req analysis.Request) (*model.AIEnvelope, error) {
	a.calls++
	a.lastReq = req
	if a.calls <= a.failures {
		return nil, errors.New("api unavailable")
	}
	return &model.AIEnvelope{
		SchemaVersion:   analysis.SchemaVersion,
		Model:           "stub",
		PromptHash:      "hash",
		PipelineVersion: analysis.PipelineVersion,
		RunID:           "run-1",
		Timestamp:       time.Now().UTC(),
		Result: model.AIResult{
			BestGuess: model.Guess{Label: "quartz", Confidence: 0.92, Category: "mineral"},
		},
	}, nil
}

func newTestWorker(t *testing.T, az analysis.Analyzer, maxAttempts int) (*Worker, *store.Store) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.EnsureSchema(context.Background()))

	// Negative backoff so drains re-claim retried items immediately.
	w := NewWorker(st, az, Config{
		MaxAttempts:  maxAttempts,
		RetryBackoff: -time.Second,
		Logger:       logger,
	})
	return w, st
}

func addFind(t *testing.T, st *store.Store, id string) *model.Find {
	t.Helper()
	f := &model.Find{
		ID:        id,
		PhotoURI:  "/photos/" + id + ".jpg",
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Status:    model.StatusDraft,
	}
	require.NoError(t, st.InsertFind(context.Background(), f))
	return f
}

func TestEnqueue_FlipsFindToPending(t *testing.T) {
	w, st := newTestWorker(t, &stubAnalyzer{}, 0)
	ctx := context.Background()
	addFind(t, st, "f1")

	require.NoError(t, w.Enqueue(ctx, "f1"))

	find, err := st.GetFind(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingAnalysis, find.Status)

	items, err := st.ListWorkForFind(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.WorkPending, items[0].Status)
}

func TestEnqueue_CollapsesDuplicates(t *testing.T) {
	w, st := newTestWorker(t, &stubAnalyzer{}, 0)
	ctx := context.Background()
	addFind(t, st, "f1")

	require.NoError(t, w.Enqueue(ctx, "f1"))
	require.NoError(t, w.Enqueue(ctx, "f1"))
	require.NoError(t, w.Enqueue(ctx, "f1"))

	items, err := st.ListWorkForFind(ctx, "f1")
	require.NoError(t, err)
	assert.Len(t, items, 1, "duplicate enqueues must collapse while work is active")
}

func TestEnqueue_MissingFind(t *testing.T) {
	w, _ := newTestWorker(t, &stubAnalyzer{}, 0)

	err := w.Enqueue(context.Background(), "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestProcessNext_Success(t *testing.T) {
	az := &stubAnalyzer{}
	w, st := newTestWorker(t, az, 0)
	ctx := context.Background()

	f := addFind(t, st, "f1")
	lat, long := 41.88, -87.63
	note := "striped band, heavy"
	require.NoError(t, st.UpdateFind(ctx, f.ID, model.FindPatch{Lat: &lat, Long: &long, Note: &note}))
	require.NoError(t, w.Enqueue(ctx, "f1"))

	processed, err := w.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	find, err := st.GetFind(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCataloged, find.Status)
	require.NotNil(t, find.AIData)
	assert.Equal(t, "quartz", find.AIData.Result.BestGuess.Label)
	require.NotNil(t, find.Label)
	assert.Equal(t, "quartz", *find.Label, "empty label is backfilled from the best guess")
	require.NotNil(t, find.Category)
	assert.Equal(t, "mineral", *find.Category)

	// Request carried the find's context.
	assert.Contains(t, az.lastReq.LocationHint, "41.88")
	assert.Equal(t, note, az.lastReq.ContextNotes)

	items, err := st.ListWorkForFind(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.WorkCompleted, items[0].Status)
}

func TestProcessNext_DoesNotOverwriteUserLabel(t *testing.T) {
	w, st := newTestWorker(t, &stubAnalyzer{}, 0)
	ctx := context.Background()

	f := addFind(t, st, "f1")
	label := "my agate"
	require.NoError(t, st.UpdateFind(ctx, f.ID, model.FindPatch{Label: &label}))
	require.NoError(t, w.Enqueue(ctx, "f1"))

	_, err := w.ProcessNext(ctx)
	require.NoError(t, err)

	find, err := st.GetFind(ctx, "f1")
	require.NoError(t, err)
	require.NotNil(t, find.Label)
	assert.Equal(t, "my agate", *find.Label)
}

func TestProcessNext_RetriesThenFailsTerminally(t *testing.T) {
	az := &stubAnalyzer{failures: 100}
	w, st := newTestWorker(t, az, 3)
	ctx := context.Background()

	addFind(t, st, "f1")
	require.NoError(t, w.Enqueue(ctx, "f1"))

	// Drain keeps re-claiming the retried item until the ceiling.
	n, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, az.calls)

	items, err := st.ListWorkForFind(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.WorkFailed, items[0].Status)
	assert.Equal(t, 3, items[0].Attempts)
	require.NotNil(t, items[0].Error)
	assert.Equal(t, "api unavailable", *items[0].Error)

	find, err := st.GetFind(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAnalysisFailed, find.Status)
}

func TestProcessNext_RecoversAfterTransientFailure(t *testing.T) {
	az := &stubAnalyzer{failures: 2}
	w, st := newTestWorker(t, az, 5)
	ctx := context.Background()

	addFind(t, st, "f1")
	require.NoError(t, w.Enqueue(ctx, "f1"))

	n, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "two failed attempts plus the success")

	find, err := st.GetFind(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCataloged, find.Status)
}

func TestProcessNext_EmptyQueue(t *testing.T) {
	w, _ := newTestWorker(t, &stubAnalyzer{}, 0)

	processed, err := w.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessNext_MissingFindFailsTerminally(t *testing.T) {
	w, st := newTestWorker(t, &stubAnalyzer{}, 0)
	ctx := context.Background()

	addFind(t, st, "f1")
	require.NoError(t, w.Enqueue(ctx, "f1"))

	// Remove the find out from under the queue row. Foreign keys are
	// disabled on a pinned connection so the row does not cascade away.
	conn, err := st.RawDB().Conn(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, "PRAGMA foreign_keys=OFF")
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, "DELETE FROM finds WHERE id = 'f1'")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	processed, err := w.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	items, err := st.ListWorkForFind(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.WorkFailed, items[0].Status)
	require.NotNil(t, items[0].Error)
	assert.Equal(t, "find no longer exists", *items[0].Error)
}

func TestDrain_ResumesInterruptedItem(t *testing.T) {
	w, st := newTestWorker(t, &stubAnalyzer{}, 0)
	ctx := context.Background()

	addFind(t, st, "f1")
	require.NoError(t, w.Enqueue(ctx, "f1"))

	// Claim without finishing, as an interrupted run would leave it.
	item, err := st.ClaimWork(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, item)

	n, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the interrupted item must be requeued and processed")

	find, err := st.GetFind(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCataloged, find.Status)

	got, err := st.GetWorkItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkCompleted, got.Status)
}

func TestDrain_HoldsRetriesForBackoff(t *testing.T) {
	az := &stubAnalyzer{failures: 100}
	logger := log.New(io.Discard, "", 0)

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()
	require.NoError(t, st.EnsureSchema(ctx))

	w := NewWorker(st, az, Config{
		MaxAttempts:  3,
		RetryBackoff: time.Minute,
		Logger:       logger,
	})

	addFind(t, st, "f1")
	require.NoError(t, w.Enqueue(ctx, "f1"))

	// One attempt per drain pass: the retried item sits out its window
	// instead of burning the remaining attempts immediately.
	n, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, az.calls)

	items, err := st.ListWorkForFind(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.WorkPending, items[0].Status)
	assert.Equal(t, 1, items[0].Attempts)

	n, err = w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "second pass inside the window must claim nothing")
	assert.Equal(t, 1, az.calls)
}

func TestSessionContextInRequest(t *testing.T) {
	az := &stubAnalyzer{}
	w, st := newTestWorker(t, az, 0)
	ctx := context.Background()

	loc := "north quarry"
	sess := &model.Session{
		ID:           "ses-1",
		Name:         "Morning dig",
		StartTime:    time.Now().UnixMilli(),
		Status:       model.SessionActive,
		LocationName: &loc,
		Finds:        []string{"f1"},
	}
	require.NoError(t, st.CreateSession(ctx, sess))

	f := addFind(t, st, "f1")
	sid := sess.ID
	require.NoError(t, st.UpdateFind(ctx, f.ID, model.FindPatch{SessionID: &sid}))
	require.NoError(t, w.Enqueue(ctx, "f1"))

	_, err := w.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Morning dig at north quarry", az.lastReq.SessionContext)
}
