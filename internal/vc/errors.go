package vc

import (
	"errors"
	"fmt"
)

// Error taxonomy of the conversion pipeline. Callers branch on these with
// errors.Is; none of them is retried internally.
var (
	// ErrInvalidParameter marks requests rejected before any model access.
	ErrInvalidParameter = errors.New("vc: invalid parameter")

	// ErrModelNotFound means the named voice bundle does not exist.
	ErrModelNotFound = errors.New("vc: model not found")

	// ErrModelUnavailable means a required model file or runtime could not
	// be loaded.
	ErrModelUnavailable = errors.New("vc: model unavailable")

	// ErrShapeMismatch marks fatal tensor geometry conflicts.
	ErrShapeMismatch = errors.New("vc: shape mismatch")

	// ErrResourceExhausted means the server's worker pool is saturated.
	ErrResourceExhausted = errors.New("vc: resource exhausted")
)

// Stage identifies where in the pipeline a conversion currently is, or where
// it failed.
type Stage string

const (
	StageValidated         Stage = "validated"
	StageResampled         Stage = "resampled"
	StageFeaturesExtracted Stage = "features_extracted"
	StagePitchExtracted    Stage = "pitch_extracted"
	StageIndexBlended      Stage = "index_blended"
	StageSynthesized       Stage = "synthesized"
	StagePostprocessed     Stage = "postprocessed"
	StageDone              Stage = "done"
	StageFailed            Stage = "failed"
)

// ConversionError records the failing stage alongside the cause.
type ConversionError struct {
	Stage     Stage
	RequestID string
	Err       error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("vc: request %s failed at %s: %v", e.RequestID, e.Stage, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

func failAt(stage Stage, requestID string, err error) error {
	return &ConversionError{Stage: stage, RequestID: requestID, Err: err}
}
