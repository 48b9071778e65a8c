// Package integrity reconciles the record store against the on-disk
// photo store, detecting drift in both directions: finds whose photo is
// gone, and files no find references.
package integrity

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/rockhoundapp/rockhound/internal/model"
	"github.com/rockhoundapp/rockhound/internal/photos"
	"github.com/rockhoundapp/rockhound/internal/store"
)

// Report is a point-in-time snapshot. It is not kept consistent with
// concurrent mutation; re-run Check after any cleanup action rather than
// trusting stale counts.
type Report struct {
	// MissingPhotos are find ids whose referenced local file is absent.
	MissingPhotos []string `json:"missing_photos"`
	// OrphanFiles are paths on disk referenced by no find row.
	OrphanFiles []string `json:"orphan_files"`

	FindsChecked int       `json:"finds_checked"`
	FilesChecked int       `json:"files_checked"`
	CheckedAt    time.Time `json:"checked_at"`
}

// Clean reports whether the stores are in agreement.
func (r *Report) Clean() bool {
	return len(r.MissingPhotos) == 0 && len(r.OrphanFiles) == 0
}

// Auditor performs read-only reconciliation plus best-effort repairs.
type Auditor struct {
	store  *store.Store
	photos *photos.Store
	logger *log.Logger
}

// NewAuditor creates an Auditor. If logger is nil a default stderr
// logger is used.
func NewAuditor(st *store.Store, ph *photos.Store, logger *log.Logger) *Auditor {
	if logger == nil {
		logger = log.New(os.Stderr, "[integrity] ", log.LstdFlags)
	}
	return &Auditor{store: st, photos: ph, logger: logger}
}

// Check enumerates every find row (all statuses) and every image file,
// and computes the two disjoint drift sets. A find whose photo_uri is
// already a remote URL is treated as present; only locally-referenced
// files are checked for existence.
func (a *Auditor) Check(ctx context.Context) (*Report, error) {
	finds, err := a.store.ListFinds(ctx, store.FindFilter{Status: model.StatusAll})
	if err != nil {
		return nil, err
	}

	files, err := a.photos.List()
	if err != nil {
		return nil, err
	}

	referenced := make(map[string]bool, len(finds))
	report := &Report{
		MissingPhotos: []string{},
		OrphanFiles:   []string{},
		FindsChecked:  len(finds),
		FilesChecked:  len(files),
		CheckedAt:     time.Now().UTC(),
	}

	for _, f := range finds {
		if photos.IsRemote(f.PhotoURI) {
			continue
		}
		referenced[f.PhotoURI] = true
		if !a.photos.Exists(f.PhotoURI) {
			report.MissingPhotos = append(report.MissingPhotos, f.ID)
		}
	}

	for _, path := range files {
		if !referenced[path] {
			report.OrphanFiles = append(report.OrphanFiles, path)
		}
	}

	a.logger.Printf("Integrity check: %d finds, %d files, %d missing, %d orphans",
		report.FindsChecked, report.FilesChecked,
		len(report.MissingPhotos), len(report.OrphanFiles))
	return report, nil
}

// CleanupOrphans deletes each orphan path, best-effort. A failure on one
// path is logged and does not abort the rest. Returns the number of
// successful deletions.
func (a *Auditor) CleanupOrphans(paths []string) int {
	deleted := 0
	for _, path := range paths {
		if err := a.photos.Delete(path); err != nil {
			a.logger.Printf("Warning: failed to delete orphan %s: %v", path, err)
			continue
		}
		deleted++
	}
	a.logger.Printf("Deleted %d of %d orphan file(s)", deleted, len(paths))
	return deleted
}

// ArchiveMissing transitions each given find to archived, best-effort.
// Returns the number of finds archived.
func (a *Auditor) ArchiveMissing(ctx context.Context, findIDs []string) int {
	status := model.StatusArchived
	archived := 0
	for _, id := range findIDs {
		if err := a.store.UpdateFind(ctx, id, model.FindPatch{Status: &status}); err != nil {
			a.logger.Printf("Warning: failed to archive find %s: %v", id, err)
			continue
		}
		archived++
	}
	a.logger.Printf("Archived %d of %d find(s) with missing photos", archived, len(findIDs))
	return archived
}
