package mount

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// DestinationRootMacro is replaced by the table's destination root in mount destinations.
const DestinationRootMacro = "%{destroot}"

// Kind is the type of a resolved entry.
type Kind uint8

const (
	// KindFile is a regular file.
	KindFile Kind = iota
	// KindDir is a directory.
	KindDir
	// KindSymlink is a symbolic link found inside a mounted directory.
	KindSymlink
)

// String returns a lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Mount declares that Source should be installed at Destination.
type Mount struct {
	// Source is a file or directory on the local filesystem.
	Source string `yaml:"source" toml:"source"`
	// Destination is the install path; it may start with DestinationRootMacro.
	Destination string `yaml:"destination" toml:"destination"`
	// Exclude lists doublestar patterns, relative to Source, skipped when Source is a directory.
	Exclude []string `yaml:"exclude,omitempty" toml:"exclude,omitempty"`
}

// Entry is a single file, directory or symlink produced by expanding a Mount.
type Entry struct {
	// Destination is the cleaned absolute install path.
	Destination string
	// Source is the filesystem path the entry is read from.
	Source string
	// Kind tells files, directories and symlinks apart.
	Kind Kind
	// Mode holds the permission bits of the source.
	Mode fs.FileMode
	// ModTime is the modification time of the source.
	ModTime time.Time
	// Size is the content length of a file entry.
	Size int64
	// Link is the target of a symlink entry.
	Link string
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool {
	return e.Kind == KindDir
}

// MemberName returns the destination without its leading slash, as used inside archives.
func (e *Entry) MemberName() string {
	return strings.TrimPrefix(e.Destination, "/")
}

// Table is an ordered set of mounts sharing one destination root.
// It is not safe for concurrent use.
type Table struct {
	// root replaces DestinationRootMacro and anchors relative destinations.
	root string
	// mounts keeps declarations in insertion order.
	mounts []Mount
}

// NewTable creates an empty table. destinationRoot may be empty.
func NewTable(destinationRoot string) *Table {
	root := strings.TrimSpace(destinationRoot)
	if root != "" {
		root = path.Clean("/" + filepath.ToSlash(root))
	}

	return &Table{root: root}
}

// Root returns the cleaned destination root or "" when none is set.
func (t *Table) Root() string {
	return t.root
}

// Add appends a mount. Order of addition is the order of resolution.
func (t *Table) Add(m Mount) {
	m.Exclude = append([]string(nil), m.Exclude...)
	t.mounts = append(t.mounts, m)
}

// Mounts returns a copy of the declared mounts.
func (t *Table) Mounts() []Mount {
	out := make([]Mount, len(t.mounts))
	copy(out, t.mounts)

	return out
}

// Len returns the number of declared mounts.
func (t *Table) Len() int {
	return len(t.mounts)
}

// Validate checks every declaration without touching the filesystem.
func (t *Table) Validate() error {
	for _, m := range t.mounts {
		if strings.TrimSpace(m.Source) == "" {
			return ErrEmptySource
		}

		if _, err := t.Destination(m.Destination); err != nil {
			return fmt.Errorf("mount %s: %w", m.Source, err)
		}

		for _, pattern := range m.Exclude {
			if !doublestar.ValidatePattern(pattern) {
				return fmt.Errorf("mount %s: %w: %q", m.Source, ErrInvalidExclude, pattern)
			}
		}
	}

	return nil
}

// Destination expands the destroot macro in dest and returns the cleaned absolute path.
func (t *Table) Destination(dest string) (string, error) {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return "", ErrEmptyDestination
	}

	if strings.Contains(dest, DestinationRootMacro) {
		if t.root == "" {
			return "", ErrDestinationRootNotSet
		}

		dest = strings.ReplaceAll(dest, DestinationRootMacro, t.root)
	}

	dest = filepath.ToSlash(dest)
	if !path.IsAbs(dest) {
		if t.root == "" {
			return "", fmt.Errorf("%w: %s", ErrRelativeDestination, dest)
		}

		dest = path.Join(t.root, dest)
	}

	return path.Clean(dest), nil
}

// Resolve expands every mount, in declaration order, into entries.
// Repeated calls over an unchanged filesystem return identical slices.
func (t *Table) Resolve() ([]Entry, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	var entries []Entry

	for _, m := range t.mounts {
		resolved, err := t.resolveMount(m)
		if err != nil {
			return nil, err
		}

		entries = append(entries, resolved...)
	}

	if err := checkConflicts(entries); err != nil {
		return nil, err
	}

	return entries, nil
}

// resolveMount expands a single mount.
func (t *Table) resolveMount(m Mount) ([]Entry, error) {
	dest, err := t.Destination(m.Destination)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(m.Source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &SourceNotFoundError{Source: m.Source, Err: err}
		}

		return nil, fmt.Errorf("stat mount source %s: %w", m.Source, err)
	}

	if !info.IsDir() {
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, m.Source)
		}

		if dest == "/" {
			return nil, fmt.Errorf("mount %s: %w", m.Source, ErrRootDestination)
		}

		return []Entry{newEntry(dest, m.Source, info, "")}, nil
	}

	// WalkDir does not descend into a root that is itself a symlink.
	root, err := filepath.EvalSymlinks(m.Source)
	if err != nil {
		return nil, fmt.Errorf("resolve mount source %s: %w", m.Source, err)
	}

	return walkDir(root, dest, m.Exclude)
}

// walkDir lists root and everything beneath it, depth-first in lexical order.
func walkDir(root, dest string, exclude []string) ([]Entry, error) {
	var entries []Entry

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}

		rel = filepath.ToSlash(rel)
		if rel != "." && isExcluded(exclude, rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		target := dest
		if rel != "." {
			target = path.Join(dest, rel)
		}

		// The filesystem root itself is never packaged, only what goes below it.
		if target == "/" {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		var link string

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			if link, err = os.Readlink(p); err != nil {
				return err
			}
		case !d.IsDir() && !info.Mode().IsRegular():
			return fmt.Errorf("%w: %s", ErrUnsupportedFileType, p)
		}

		entries = append(entries, newEntry(target, p, info, link))

		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &SourceNotFoundError{Source: root, Err: err}
		}

		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	return entries, nil
}

// isExcluded reports whether rel matches any pattern. Patterns were validated upfront.
func isExcluded(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if doublestar.MatchUnvalidated(pattern, rel) {
			return true
		}
	}

	return false
}

func newEntry(dest, source string, info fs.FileInfo, link string) Entry {
	entry := Entry{
		Destination: dest,
		Source:      source,
		Mode:        info.Mode().Perm(),
		ModTime:     info.ModTime(),
	}

	switch {
	case link != "":
		entry.Kind = KindSymlink
		entry.Link = link
	case info.IsDir():
		entry.Kind = KindDir
	default:
		entry.Kind = KindFile
		entry.Size = info.Size()
	}

	return entry
}

// checkConflicts rejects destinations claimed twice by different sources
// and entries nested below a path that is not a directory.
func checkConflicts(entries []Entry) error {
	seen := make(map[string]*Entry, len(entries))

	for i := range entries {
		entry := &entries[i]

		prev, ok := seen[entry.Destination]
		if !ok {
			seen[entry.Destination] = entry

			continue
		}

		if prev.IsDir() && entry.IsDir() {
			continue
		}

		if prev.Kind == entry.Kind && sameSource(prev, entry) {
			continue
		}

		return &ConflictError{Destination: entry.Destination, First: prev.Source, Second: entry.Source}
	}

	for i := range entries {
		entry := &entries[i]

		for parent := path.Dir(entry.Destination); parent != "/"; parent = path.Dir(parent) {
			owner, ok := seen[parent]
			if ok && !owner.IsDir() {
				return &ConflictError{Destination: parent, First: owner.Source, Second: entry.Source}
			}
		}
	}

	return nil
}

// sameSource reports whether two entries read the same filesystem object,
// however their source paths are spelled.
func sameSource(a, b *Entry) bool {
	if a.Source == b.Source {
		return true
	}

	stat := os.Stat
	if a.Kind == KindSymlink {
		stat = os.Lstat
	}

	infoA, err := stat(a.Source)
	if err != nil {
		return false
	}

	infoB, err := stat(b.Source)
	if err != nil {
		return false
	}

	return os.SameFile(infoA, infoB)
}
