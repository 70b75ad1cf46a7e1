package build

import "errors"

var (
	// ErrMissingArtifact is returned when a stage finds an upstream output absent.
	ErrMissingArtifact = errors.New("missing build artifact")
	// ErrInvalidConfiguration is returned for configurations the pipeline cannot run.
	ErrInvalidConfiguration = errors.New("invalid build configuration")
)
