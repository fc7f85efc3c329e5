package fsrs

import "errors"

// Sentinel errors. Match them with errors.Is.
var (
	ErrInvalidGrade     = errors.New("fsrs: invalid grade")
	ErrInvalidCardState = errors.New("fsrs: invalid card state")
	ErrClockRegression  = errors.New("fsrs: review time before last review")
	ErrInvalidWeights   = errors.New("fsrs: weights out of bounds")
	ErrInvalidConfig    = errors.New("fsrs: invalid scheduler config")
	ErrCardIDMismatch   = errors.New("fsrs: review log belongs to another card")

	// ErrNumericDefect means the model produced a non-finite or out-of-range
	// value. It indicates a bug, not bad input.
	ErrNumericDefect = errors.New("fsrs: numeric defect")
)
