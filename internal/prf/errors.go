package prf

import "errors"

var (
	// ErrConfiguration reports invalid configuration or mismatched input
	// shapes. It is never recoverable by retrying.
	ErrConfiguration = errors.New("prf: invalid configuration")

	// ErrEmptyInput reports a stage that cannot produce a defined result
	// without data, e.g. padding with no real samples.
	ErrEmptyInput = errors.New("prf: empty input")

	// ErrNumericDegeneracy reports a fit that could not be solved for the
	// given samples and resolution.
	ErrNumericDegeneracy = errors.New("prf: numeric degeneracy")
)
