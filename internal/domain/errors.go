package domain

import "errors"

// Domain errors represent error conditions in the export domain.
// These errors are wrapped with context and can be checked with errors.Is.
var (
	// ErrInvalidConfig is returned when configuration validation fails.
	// Reported before any work starts.
	ErrInvalidConfig = errors.New("pixport: invalid configuration")

	// ErrMissingSubTable is returned when a pixel mapping table has no
	// sub-table for the requested region.
	ErrMissingSubTable = errors.New("pixport: missing mapping sub-table")

	// ErrInconsistentMapping is returned when the pixel ids and the cosmic-ray
	// ids resolved for the same table are not positionally aligned.
	ErrInconsistentMapping = errors.New("pixport: inconsistent pixel mapping")

	// ErrStore is returned when an external store cannot serve a request.
	ErrStore = errors.New("pixport: store unavailable")

	// ErrBlobNotFound is returned when a named blob does not exist.
	ErrBlobNotFound = errors.New("pixport: blob not found")

	// ErrRowCountMismatch is returned when the raw, calibrated and uncertainty
	// columns of one binary table would have different lengths.
	ErrRowCountMismatch = errors.New("pixport: row count mismatch")

	// ErrHeaderOverflow is returned when a header does not fit its reserved block.
	ErrHeaderOverflow = errors.New("pixport: header overflow")

	// ErrRegionCountMismatch is returned when an output file recorded a
	// different number of region tables than its primary header announces.
	ErrRegionCountMismatch = errors.New("pixport: region count mismatch")

	// ErrInvalidTransition is returned when the export state machine is
	// asked to move to a state that does not follow the current one.
	ErrInvalidTransition = errors.New("pixport: invalid state transition")
)
