package buildtool

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/oshokin/rpm-packager/internal/logger"
)

// DefaultBinary is the rpmbuild executable looked up in PATH.
const DefaultBinary = "rpmbuild"

// BuildBinaryFlag asks rpmbuild for binary packages only.
const BuildBinaryFlag = "-bb"

// ErrRecipeRequired is returned when no recipe path is given.
var ErrRecipeRequired = errors.New("recipe path must be provided")

// Invoker runs the build tool against a recipe and reports its exit code.
type Invoker interface {
	Invoke(ctx context.Context, recipePath string) (exitCode int, err error)
}

// ExitError reports a build tool that ran but exited with a non-zero status.
type ExitError struct {
	// Command is the command line that was run.
	Command string
	// Code is the exit status.
	Code int
	// Err is the process error reported by os/exec.
	Err error
}

// Error implements error.
func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Command, e.Code)
}

// Unwrap returns the process error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// Args returns the argv for building recipePath with binary.
func Args(binary, recipePath string) []string {
	if binary == "" {
		binary = DefaultBinary
	}

	return []string{binary, BuildBinaryFlag, recipePath}
}

// RPMBuild invokes rpmbuild as a child process and forwards its output to the logger.
type RPMBuild struct {
	// Binary is the executable name or path; DefaultBinary when empty.
	Binary string
}

// NewRPMBuild creates an invoker for binary.
func NewRPMBuild(binary string) *RPMBuild {
	return &RPMBuild{Binary: binary}
}

// Invoke runs `<binary> -bb <recipePath>` and waits for it. A non-zero exit is
// returned both as the exit code and as an *ExitError.
func (b *RPMBuild) Invoke(ctx context.Context, recipePath string) (int, error) {
	if recipePath == "" {
		return -1, ErrRecipeRequired
	}

	args := Args(b.Binary, recipePath)
	command := strings.Join(args, " ")

	//nolint:gosec // The binary comes from trusted configuration.
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("pipe stdout: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("pipe stderr: %w", err)
	}

	logger.DebugKV(ctx, "Starting build tool", "command", command)

	if err = cmd.Start(); err != nil {
		return -1, fmt.Errorf("start %s: %w", args[0], err)
	}

	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()

		forward(ctx, stdout, false)
	}()

	go func() {
		defer wg.Done()

		forward(ctx, stderr, true)
	}()

	// Pipes must be drained before Wait closes them.
	wg.Wait()

	err = cmd.Wait()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), &ExitError{Command: command, Code: exitErr.ExitCode(), Err: err}
	}

	return -1, fmt.Errorf("wait for %s: %w", args[0], err)
}

// forward logs every line of r, at warn level for stderr.
func forward(ctx context.Context, r io.Reader, isStderr bool) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if isStderr {
			logger.WarnKV(ctx, scanner.Text(), "stream", "stderr")
		} else {
			logger.DebugKV(ctx, scanner.Text(), "stream", "stdout")
		}
	}

	// Drain whatever is left after an overlong line so the child never blocks.
	_, _ = io.Copy(io.Discard, r)
}
