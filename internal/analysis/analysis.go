// Package analysis is the remote vision-analysis collaborator. It sends
// a find's photo plus context hints to the model and returns a
// structured identification wrapped in a provenance envelope.
package analysis

import (
	"context"

	"github.com/rockhoundapp/rockhound/internal/model"
)

// SchemaVersion is the version of the AIResult JSON schema this layer
// produces and understands.
const SchemaVersion = 2

// PipelineVersion identifies this analysis pipeline in stored envelopes.
const PipelineVersion = "1.2.0"

// Request carries everything the remote call needs for one find.
type Request struct {
	// ImagePath is the local path of the photo to analyze.
	ImagePath string
	// LocationHint is a human-readable description of where the find was
	// made, e.g. "41.9, -87.6" or a session location name.
	LocationHint string
	// ContextNotes are the user's free-form notes on the find.
	ContextNotes string
	// SessionContext describes the outing the find belongs to.
	SessionContext string
}

// Analyzer performs one remote identification. Implementations must be
// safe for use from a single worker goroutine; calls may take seconds.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*model.AIEnvelope, error)
}
