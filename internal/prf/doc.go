// Package prf owns the pixel-to-sample stage of PRF exploration.
//
// Responsibilities: crowding detection over source positions, per-pixel
// source assignment with overlap exclusion, extraction of normalized PRF
// samples, and synthetic boundary padding ahead of spline fitting.
// Key types: Source, AssignmentGrid, Sample, PaddedSampleSet, Domain.
//
// Dependency rule: no file, plotting or database code is allowed in this
// package. Spline fitting lives in the spline subpackage.
package prf
