package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Data errors: the input violates what a transformation requires.
	ErrMissingColumn    = errors.New("required column missing")
	ErrOutOfRange       = errors.New("score out of range")
	ErrIncompleteRecord = errors.New("incomplete participant record")
	ErrEmptyData        = errors.New("empty dataset")

	// Specification errors: the model cannot be fit as declared.
	ErrFamilyMismatch   = errors.New("family/response mismatch")
	ErrIllPosedModel    = errors.New("ill-posed model")
	ErrUnidentifiableRE = errors.New("unidentifiable random effect")
	ErrUnknownVariable  = errors.New("unknown variable")
	ErrInvalidSpec      = errors.New("invalid model specification")

	// Convergence errors: optimizer or sampler did not converge.
	ErrNonConvergence = errors.New("non-convergence")

	// Comparison errors: a requested comparison would be misleading.
	ErrIncommensurable = errors.New("incommensurable comparison")
	ErrMissingDraws    = errors.New("posterior draws required")
)

// Error constructors with context

// NewOutOfRangeError reports a value outside the declared scale bounds.
func NewOutOfRangeError(column string, value, lower, upper float64) error {
	return fmt.Errorf("%w: %s=%g outside [%g,%g]", ErrOutOfRange, column, value, lower, upper)
}

// NewIncompleteRecordError reports a missing item-by-phase cell for a participant.
func NewIncompleteRecordError(participant ParticipantID, item, phase string) error {
	return fmt.Errorf("%w: participant %s has no %s observation for item %q",
		ErrIncompleteRecord, participant, phase, item)
}

// NewFamilyMismatchError reports a response that violates the family's support.
func NewFamilyMismatchError(family, reason string) error {
	return fmt.Errorf("%w: %s family: %s", ErrFamilyMismatch, family, reason)
}

// NewConvergenceError reports a failed fit with its diagnostics summary attached.
func NewConvergenceError(model ModelName, detail string) error {
	return fmt.Errorf("%w: model %s: %s", ErrNonConvergence, model, detail)
}

// Error category helpers (the four pipeline-level categories)

// IsDataError reports whether err arose from the data itself.
func IsDataError(err error) bool {
	return errors.Is(err, ErrMissingColumn) ||
		errors.Is(err, ErrOutOfRange) ||
		errors.Is(err, ErrIncompleteRecord) ||
		errors.Is(err, ErrEmptyData)
}

// IsSpecificationError reports whether err arose before fitting, from the spec.
func IsSpecificationError(err error) bool {
	return errors.Is(err, ErrFamilyMismatch) ||
		errors.Is(err, ErrIllPosedModel) ||
		errors.Is(err, ErrUnidentifiableRE) ||
		errors.Is(err, ErrUnknownVariable) ||
		errors.Is(err, ErrInvalidSpec)
}

// IsConvergenceError reports whether err is a reportable-but-failed fit.
func IsConvergenceError(err error) bool {
	return errors.Is(err, ErrNonConvergence)
}

// IsComparisonError reports whether err is a rejected model comparison.
func IsComparisonError(err error) bool {
	return errors.Is(err, ErrIncommensurable) ||
		errors.Is(err, ErrMissingDraws)
}
