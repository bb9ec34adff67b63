package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/ulikunitz/xz"
)

// Compression selects how the tar stream is compressed.
type Compression string

const (
	// CompressionNone writes a plain .tar archive.
	CompressionNone Compression = "none"
	// CompressionXZ writes a .tar.xz archive.
	CompressionXZ Compression = "xz"
)

// ErrUnknownCompression is returned for an unsupported Compression value.
var ErrUnknownCompression = errors.New("unknown compression")

// ParseCompression accepts "", "none", "tar", "xz" and "tar.xz".
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", string(CompressionNone), "tar":
		return CompressionNone, nil
	case string(CompressionXZ), "tar.xz", "txz":
		return CompressionXZ, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCompression, s)
	}
}

// Extension returns the archive file extension including the leading dot.
func (c Compression) Extension() string {
	if c == CompressionXZ {
		return ".tar.xz"
	}

	return ".tar"
}

// Member describes an archive member. Name never starts with a slash.
type Member struct {
	// Name is the slash-separated path inside the archive.
	Name string
	// Mode holds permission bits.
	Mode fs.FileMode
	// ModTime is stored as the member modification time.
	ModTime time.Time
	// Size is the content length of a file member.
	Size int64
	// Link is the target of a symlink member.
	Link string
}

// Writer is the narrow archive surface the builder depends on.
type Writer interface {
	AddDir(m Member) error
	AddFile(m Member, r io.Reader) error
	AddSymlink(m Member) error
	Close() error
}

// tarWriter writes members to a tar stream, optionally through xz.
type tarWriter struct {
	// tw is the tar stream.
	tw *tar.Writer
	// xw is the compressor between tw and the destination, nil for plain tar.
	xw *xz.Writer
}

// NewTarWriter returns a Writer producing a tar stream on w.
// Closing it flushes the archive but does not close w.
//
//nolint:ireturn // Callers only need the Writer surface.
func NewTarWriter(w io.Writer, compression Compression) (Writer, error) {
	switch compression {
	case CompressionNone, "":
		return &tarWriter{tw: tar.NewWriter(w)}, nil
	case CompressionXZ:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("create xz writer: %w", err)
		}

		return &tarWriter{tw: tar.NewWriter(xw), xw: xw}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, compression)
	}
}

// AddDir writes a directory member.
func (w *tarWriter) AddDir(m Member) error {
	return w.tw.WriteHeader(header(m, tar.TypeDir))
}

// AddFile writes a regular file member with exactly m.Size bytes from r.
func (w *tarWriter) AddFile(m Member, r io.Reader) error {
	if err := w.tw.WriteHeader(header(m, tar.TypeReg)); err != nil {
		return err
	}

	n, err := io.Copy(w.tw, io.LimitReader(r, m.Size))
	if err != nil {
		return err
	}

	if n != m.Size {
		return fmt.Errorf("%s: %w: wrote %d of %d bytes", m.Name, io.ErrUnexpectedEOF, n, m.Size)
	}

	return nil
}

// AddSymlink writes a symlink member.
func (w *tarWriter) AddSymlink(m Member) error {
	return w.tw.WriteHeader(header(m, tar.TypeSymlink))
}

// Close finishes the tar stream and the compressor.
func (w *tarWriter) Close() error {
	if err := w.tw.Close(); err != nil {
		return err
	}

	if w.xw != nil {
		return w.xw.Close()
	}

	return nil
}

// header builds a reproducible header owned by root.
// Directory names carry no trailing slash so member names equal install paths.
func header(m Member, typeflag byte) *tar.Header {
	h := &tar.Header{
		Typeflag: typeflag,
		Name:     m.Name,
		Mode:     int64(m.Mode.Perm()),
		ModTime:  m.ModTime.Truncate(time.Second),
		Uname:    "root",
		Gname:    "root",
		Format:   tar.FormatGNU,
	}

	switch typeflag {
	case tar.TypeReg:
		h.Size = m.Size
	case tar.TypeSymlink:
		h.Linkname = m.Link
	}

	return h
}
