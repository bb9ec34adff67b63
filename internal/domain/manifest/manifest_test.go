package manifest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/rpm-packager/internal/domain/mount"
)

func entries(kinds map[string]mount.Kind, order ...string) []mount.Entry {
	out := make([]mount.Entry, 0, len(order))
	for _, dest := range order {
		out = append(out, mount.Entry{Destination: dest, Kind: kinds[dest]})
	}

	return out
}

// TestBuild_SingleFile renders a one-line manifest.
func TestBuild_SingleFile(t *testing.T) {
	t.Parallel()

	m := Build(entries(nil, "/opt/app/bin"))

	require.Equal(t, "/opt/app/bin\n", m.String())
}

// TestBuild_DirectoryAndChildren lists the directory before its children.
func TestBuild_DirectoryAndChildren(t *testing.T) {
	t.Parallel()

	kinds := map[string]mount.Kind{"/opt/app/lib": mount.KindDir}
	m := Build(entries(kinds, "/opt/app/lib", "/opt/app/lib/a", "/opt/app/lib/b"))

	require.Equal(t, "/opt/app/lib\n/opt/app/lib/a\n/opt/app/lib/b\n", m.String())
}

// TestBuild_Deduplicates keeps the first occurrence of each path and respects case.
func TestBuild_Deduplicates(t *testing.T) {
	t.Parallel()

	m := Build(entries(nil, "/share", "/share/a", "/share", "/share/A", "/share/a", "/etc/x"))

	require.Equal(t, Manifest{"/share", "/share/a", "/share/A", "/etc/x"}, m)
}

// TestManifest_Empty renders nothing for no entries.
func TestManifest_Empty(t *testing.T) {
	t.Parallel()

	require.Empty(t, Build(nil).String())
}
