package packager

import (
	"errors"
	"fmt"
)

var (
	// ErrRecipeRequired is returned by New without a recipe.
	ErrRecipeRequired = errors.New("recipe is required")
	// ErrNoMounts is returned by New without mounts.
	ErrNoMounts = errors.New("at least one mount is required")
	// ErrNotStaged is returned by Build and MovePackage before a successful Run.
	ErrNotStaged = errors.New("package is not staged yet")
	// ErrAlreadyRelocated is returned once the artifact has been moved away.
	ErrAlreadyRelocated = errors.New("package artifact was already relocated")
)

// StagingError wraps any failure of Run together with the step that failed.
type StagingError struct {
	// Package is the package name.
	Package string
	// Step names the stage that failed, e.g. "resolve mounts".
	Step string
	// Err is the underlying failure.
	Err error
}

// Error implements error.
func (e *StagingError) Error() string {
	return fmt.Sprintf("stage package %s: %s: %v", e.Package, e.Step, e.Err)
}

// Unwrap returns the underlying failure.
func (e *StagingError) Unwrap() error {
	return e.Err
}

// ArtifactNotFoundError reports that the build tool output is missing.
type ArtifactNotFoundError struct {
	// Path is where the artifact was expected.
	Path string
	// Err is the underlying filesystem error, if any.
	Err error
}

// Error implements error.
func (e *ArtifactNotFoundError) Error() string {
	return "package artifact not found at " + e.Path
}

// Unwrap returns the underlying filesystem error.
func (e *ArtifactNotFoundError) Unwrap() error {
	return e.Err
}
