package core

import (
	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	// RunID identifies one execution of the analysis pipeline.
	RunID ID
	// FitID identifies a single fitted model within a run.
	FitID ID
	// ParticipantID identifies a study participant.
	ParticipantID ID
	// ModelName is the human-readable label of a model in the battery
	// (e.g. "ols_change", "beta_ml", "bayes_hierarchical").
	ModelName string
)

// String conversions for domain IDs
func (id RunID) String() string         { return ID(id).String() }
func (id FitID) String() string         { return ID(id).String() }
func (id ParticipantID) String() string { return ID(id).String() }
func (n ModelName) String() string      { return string(n) }
