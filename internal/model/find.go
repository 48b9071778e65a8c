// Package model defines the core record types for the rockhound data layer:
// finds (catalogued specimens), sessions (named groupings of finds), and
// work queue items (pending remote analysis requests).
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// FindStatus describes where a find is in its lifecycle.
type FindStatus string

const (
	// StatusDraft is the initial status of a freshly captured find.
	StatusDraft FindStatus = "draft"
	// StatusCataloged means the find has been reviewed or identified.
	StatusCataloged FindStatus = "cataloged"
	// StatusArchived means the find was shelved by the user or by the
	// integrity auditor after its photo went missing.
	StatusArchived FindStatus = "archived"
	// StatusPendingAnalysis means a remote analysis request is queued or in flight.
	StatusPendingAnalysis FindStatus = "pending_ai_analysis"
	// StatusAnalysisFailed means the analysis exhausted its retries.
	StatusAnalysisFailed FindStatus = "ai_analysis_failed"

	// StatusAll is a filter sentinel matching every status.
	StatusAll FindStatus = "all"
)

// Valid reports whether s is a storable find status.
// StatusAll is a filter-only sentinel and is not storable.
func (s FindStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusCataloged, StatusArchived, StatusPendingAnalysis, StatusAnalysisFailed:
		return true
	}
	return false
}

// Find is a single catalogued specimen: one photo, optional location,
// free-form annotations, and (eventually) a structured analysis result.
type Find struct {
	// ID is assigned at creation and never reused.
	ID string `json:"id"`

	// PhotoURI references the binary payload. It starts as a local file
	// path and is rewritten to a remote URL once the find is synced.
	PhotoURI string `json:"photo_uri"`

	Lat  *float64 `json:"lat,omitempty"`
	Long *float64 `json:"long,omitempty"`

	// Timestamp is the capture time. Immutable after creation.
	Timestamp time.Time `json:"timestamp"`

	Label    *string `json:"label,omitempty"`
	Note     *string `json:"note,omitempty"`
	Category *string `json:"category,omitempty"`

	Status FindStatus `json:"status"`

	// SessionID is a weak reference to the owning session. The session's
	// membership list is the authoritative side of the relation.
	SessionID *string `json:"session_id,omitempty"`

	Favorite bool `json:"favorite"`

	// AIData holds the enveloped analysis result, nil until analysis succeeds.
	AIData *AIEnvelope `json:"ai_data,omitempty"`

	// Synced is true once the remote store holds an authoritative copy.
	Synced bool `json:"synced"`
}

// Validate checks that the find can be stored.
func (f *Find) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if f.PhotoURI == "" {
		return fmt.Errorf("%w: photo_uri is required", ErrValidation)
	}
	if f.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrValidation)
	}
	if !f.Status.Valid() {
		return fmt.Errorf("%w: unknown find status %q", ErrValidation, f.Status)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (f *Find) SetDefaults() {
	if f.Status == "" {
		f.Status = StatusDraft
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
}

// FindPatch is a typed partial update for a find. Only non-nil fields are
// written; everything else is guaranteed untouched. ClearSessionID sets
// session_id to NULL and wins over SessionID when both are set.
type FindPatch struct {
	PhotoURI       *string
	Lat            *float64
	Long           *float64
	Label          *string
	Note           *string
	Category       *string
	Status         *FindStatus
	SessionID      *string
	ClearSessionID bool
	Favorite       *bool
	AIData         *AIEnvelope
	Synced         *bool
}

// IsEmpty reports whether the patch would touch no fields at all.
func (p FindPatch) IsEmpty() bool {
	return p.PhotoURI == nil && p.Lat == nil && p.Long == nil &&
		p.Label == nil && p.Note == nil && p.Category == nil &&
		p.Status == nil && p.SessionID == nil && !p.ClearSessionID &&
		p.Favorite == nil && p.AIData == nil && p.Synced == nil
}

// Validate rejects a patch before any write reaches the store.
func (p FindPatch) Validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: unknown find status %q", ErrValidation, *p.Status)
	}
	if p.PhotoURI != nil && *p.PhotoURI == "" {
		return fmt.Errorf("%w: photo_uri cannot be cleared", ErrValidation)
	}
	return nil
}

// AIEnvelope wraps an analysis result with enough provenance to answer
// "which model, prompt and schema produced this" without re-deriving it.
type AIEnvelope struct {
	SchemaVersion   int       `json:"schema_version"`
	Model           string    `json:"model"`
	PromptHash      string    `json:"prompt_hash"`
	PipelineVersion string    `json:"pipeline_version"`
	RunID           string    `json:"run_id"`
	Timestamp       time.Time `json:"timestamp"`
	Result          AIResult  `json:"result"`
}

// AIResult is the structured identification produced by the vision model.
type AIResult struct {
	BestGuess    Guess                      `json:"best_guess"`
	Alternatives []Guess                    `json:"alternatives,omitempty"`
	Summary      string                     `json:"summary,omitempty"`
	// Details carries category-specific blocks (mineral, rock, fossil,
	// artifact) kept opaque at this layer.
	Details map[string]json.RawMessage `json:"details,omitempty"`
}

// Guess is a single candidate identification.
type Guess struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category"`
}
