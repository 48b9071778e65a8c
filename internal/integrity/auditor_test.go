package integrity

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rockhoundapp/rockhound/internal/model"
	"github.com/rockhoundapp/rockhound/internal/photos"
	"github.com/rockhoundapp/rockhound/internal/store"
)

func newTestAuditor(t *testing.T) (*Auditor, *store.Store, *photos.Store) {
	t.Helper()
	dir := t.TempDir()
	logger := log.New(io.Discard, "", 0)

	st, err := store.Open(filepath.Join(dir, "test.db"), logger)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() failed: %v", err)
	}

	ph, err := photos.New(filepath.Join(dir, "photos"))
	if err != nil {
		t.Fatalf("photos.New() failed: %v", err)
	}

	return NewAuditor(st, ph, logger), st, ph
}

func addFindWithPhoto(t *testing.T, st *store.Store, ph *photos.Store, id string) *model.Find {
	t.Helper()
	path, err := ph.Write([]byte("jpeg bytes"), ".jpg")
	if err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	return addFindAt(t, st, id, path)
}

func addFindAt(t *testing.T, st *store.Store, id, photoURI string) *model.Find {
	t.Helper()
	f := &model.Find{
		ID:        id,
		PhotoURI:  photoURI,
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Status:    model.StatusDraft,
	}
	if err := st.InsertFind(context.Background(), f); err != nil {
		t.Fatalf("InsertFind() failed: %v", err)
	}
	return f
}

func TestCheck_CleanStores(t *testing.T) {
	a, st, ph := newTestAuditor(t)

	addFindWithPhoto(t, st, ph, "f1")
	addFindWithPhoto(t, st, ph, "f2")

	report, err := a.Check(context.Background())
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if !report.Clean() {
		t.Errorf("Clean() = false: missing=%v orphans=%v", report.MissingPhotos, report.OrphanFiles)
	}
	if report.FindsChecked != 2 || report.FilesChecked != 2 {
		t.Errorf("counts = %d finds, %d files, want 2 and 2", report.FindsChecked, report.FilesChecked)
	}
}

func TestCheck_DetectsDriftBothWays(t *testing.T) {
	a, st, ph := newTestAuditor(t)

	// Three healthy finds.
	for _, id := range []string{"f1", "f2", "f3"} {
		addFindWithPhoto(t, st, ph, id)
	}

	// A find whose file was removed behind our back.
	broken := addFindWithPhoto(t, st, ph, "f-missing")
	if err := os.Remove(broken.PhotoURI); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}

	// A file no find references.
	orphan, err := ph.Write([]byte("stray"), ".png")
	if err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	report, err := a.Check(context.Background())
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}

	if len(report.MissingPhotos) != 1 || report.MissingPhotos[0] != "f-missing" {
		t.Errorf("MissingPhotos = %v, want [f-missing]", report.MissingPhotos)
	}
	if len(report.OrphanFiles) != 1 || report.OrphanFiles[0] != orphan {
		t.Errorf("OrphanFiles = %v, want [%s]", report.OrphanFiles, orphan)
	}
}

func TestCheck_RemoteURITreatedPresent(t *testing.T) {
	a, st, _ := newTestAuditor(t)

	// The photo lives remotely, no local file expected.
	addFindAt(t, st, "f-remote", "https://cdn.example.com/f.jpg")

	report, err := a.Check(context.Background())
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if len(report.MissingPhotos) != 0 {
		t.Errorf("MissingPhotos = %v, want none for remote URI", report.MissingPhotos)
	}
}

func TestCheck_IncludesArchivedFinds(t *testing.T) {
	a, st, _ := newTestAuditor(t)

	f := addFindAt(t, st, "f-arch", "/nowhere/gone.jpg")
	status := model.StatusArchived
	if err := st.UpdateFind(context.Background(), f.ID, model.FindPatch{Status: &status}); err != nil {
		t.Fatal(err)
	}

	report, err := a.Check(context.Background())
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if report.FindsChecked != 1 {
		t.Errorf("FindsChecked = %d, want archived find included", report.FindsChecked)
	}
	if len(report.MissingPhotos) != 1 {
		t.Errorf("MissingPhotos = %v, want the archived find flagged", report.MissingPhotos)
	}
}

func TestCleanupOrphans_BestEffort(t *testing.T) {
	a, _, ph := newTestAuditor(t)

	orphan, err := ph.Write([]byte("stray"), ".jpg")
	if err != nil {
		t.Fatal(err)
	}

	// One real orphan plus one path that is already gone.
	n := a.CleanupOrphans([]string{orphan, filepath.Join(ph.Dir(), "ghost.jpg")})
	if n != 1 {
		t.Errorf("CleanupOrphans() = %d, want 1", n)
	}
	if ph.Exists(orphan) {
		t.Error("orphan file still present after cleanup")
	}
}

func TestArchiveMissing_BestEffort(t *testing.T) {
	a, st, _ := newTestAuditor(t)
	ctx := context.Background()

	addFindAt(t, st, "f1", "/nowhere/a.jpg")
	addFindAt(t, st, "f2", "/nowhere/b.jpg")

	n := a.ArchiveMissing(ctx, []string{"f1", "f2", "no-such-find"})
	if n != 2 {
		t.Errorf("ArchiveMissing() = %d, want 2", n)
	}

	for _, id := range []string{"f1", "f2"} {
		got, err := st.GetFind(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != model.StatusArchived {
			t.Errorf("find %s status = %q, want archived", id, got.Status)
		}
	}
}
