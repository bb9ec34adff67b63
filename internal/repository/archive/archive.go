package archive

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio"

	"github.com/oshokin/rpm-packager/internal/domain/mount"
)

// DefaultFileMode is the permission of written archives.
const DefaultFileMode os.FileMode = 0o644

// WriteError reports a failure while producing an archive.
type WriteError struct {
	// Path is the archive location, empty when writing to a caller-supplied Writer.
	Path string
	// Member is the member being written when the failure happened, if any.
	Member string
	// Err is the underlying failure.
	Err error
}

// Error implements error.
func (e *WriteError) Error() string {
	switch {
	case e.Path != "" && e.Member != "":
		return fmt.Sprintf("write archive %s: member %s: %v", e.Path, e.Member, e.Err)
	case e.Path != "":
		return fmt.Sprintf("write archive %s: %v", e.Path, e.Err)
	case e.Member != "":
		return fmt.Sprintf("write archive member %s: %v", e.Member, e.Err)
	default:
		return fmt.Sprintf("write archive: %v", e.Err)
	}
}

// Unwrap returns the underlying failure.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// Write adds one member per unique entry destination, in entry order.
// Member names are destinations without the leading slash.
func Write(w Writer, entries []mount.Entry) error {
	seen := make(map[string]struct{}, len(entries))

	for i := range entries {
		entry := &entries[i]

		name := entry.MemberName()
		if name == "" {
			continue
		}

		if _, ok := seen[name]; ok {
			continue
		}

		seen[name] = struct{}{}

		member := Member{
			Name:    name,
			Mode:    entry.Mode,
			ModTime: entry.ModTime,
			Size:    entry.Size,
			Link:    entry.Link,
		}

		var err error

		switch entry.Kind {
		case mount.KindDir:
			err = w.AddDir(member)
		case mount.KindSymlink:
			err = w.AddSymlink(member)
		default:
			err = addFile(w, member, entry.Source)
		}

		if err != nil {
			return &WriteError{Member: name, Err: err}
		}
	}

	return nil
}

// addFile streams source into w, using the size the file has now.
func addFile(w Writer, member Member, source string) error {
	f, err := os.Open(filepath.Clean(source))
	if err != nil {
		return err
	}

	// Read-only file, close errors carry no information.
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	member.Size = info.Size()

	return w.AddFile(member, f)
}

// WriteFile writes entries as a tar archive at path. The archive is built in a
// pending file next to path and atomically renamed over it, so path holds either
// the previous archive or the complete new one.
func WriteFile(path string, entries []mount.Entry, compression Compression) error {
	if err := writeFile(path, entries, compression); err != nil {
		var writeErr *WriteError
		if errors.As(err, &writeErr) {
			writeErr.Path = path

			return writeErr
		}

		return &WriteError{Path: path, Err: err}
	}

	return nil
}

func writeFile(path string, entries []mount.Entry, compression Compression) error {
	pending, err := renameio.TempFile(filepath.Dir(path), path)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}

	// No-op once the pending file replaced path.
	defer func() {
		_ = pending.Cleanup()
	}()

	if err = pending.Chmod(DefaultFileMode); err != nil {
		return fmt.Errorf("chmod pending file: %w", err)
	}

	buffered := bufio.NewWriter(pending)

	w, err := NewTarWriter(buffered, compression)
	if err != nil {
		return err
	}

	if err = Write(w, entries); err != nil {
		return err
	}

	if err = w.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}

	if err = buffered.Flush(); err != nil {
		return fmt.Errorf("flush archive: %w", err)
	}

	if err = pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace archive: %w", err)
	}

	return nil
}
