package mount

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptySource is returned for a mount without a source path.
	ErrEmptySource = errors.New("mount source must be provided")
	// ErrEmptyDestination is returned for a mount without a destination path.
	ErrEmptyDestination = errors.New("mount destination must be provided")
	// ErrRelativeDestination is returned when a destination is relative and no destination root is set.
	ErrRelativeDestination = errors.New("mount destination is relative and no destination root is set")
	// ErrDestinationRootNotSet is returned when a destination uses the destroot macro without a root.
	ErrDestinationRootNotSet = errors.New("mount destination uses " + DestinationRootMacro + " but no destination root is set")
	// ErrRootDestination is returned when a file is mounted onto "/".
	ErrRootDestination = errors.New("a file cannot be mounted at the filesystem root")
	// ErrInvalidExclude is returned for a malformed exclude pattern.
	ErrInvalidExclude = errors.New("invalid exclude pattern")
	// ErrUnsupportedFileType is returned for devices, sockets and named pipes.
	ErrUnsupportedFileType = errors.New("unsupported file type")
)

// SourceNotFoundError reports a mount whose source does not exist.
type SourceNotFoundError struct {
	// Source is the missing path as it was declared.
	Source string
	// Err is the underlying filesystem error.
	Err error
}

// Error implements error.
func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("mount source %s not found", e.Source)
}

// Unwrap returns the underlying filesystem error.
func (e *SourceNotFoundError) Unwrap() error {
	return e.Err
}

// ConflictError reports two sources competing for the same destination.
// Directories may be merged; anything else claiming an occupied path is a conflict.
type ConflictError struct {
	// Destination is the contested install path.
	Destination string
	// First is the source that claimed Destination first.
	First string
	// Second is the source that tried to claim it afterwards.
	Second string
}

// Error implements error.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("destination %s is claimed by both %s and %s", e.Destination, e.First, e.Second)
}
