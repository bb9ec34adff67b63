package manifest

import (
	"strings"

	"github.com/oshokin/rpm-packager/internal/domain/mount"
)

// Manifest is an ordered list of unique install paths.
type Manifest []string

// Build lists every entry destination once, keeping the first occurrence.
// Comparison is exact, so paths differing only in case are distinct.
func Build(entries []mount.Entry) Manifest {
	seen := make(map[string]struct{}, len(entries))
	out := make(Manifest, 0, len(entries))

	for i := range entries {
		dest := entries[i].Destination
		if _, ok := seen[dest]; ok {
			continue
		}

		seen[dest] = struct{}{}
		out = append(out, dest)
	}

	return out
}

// String renders one path per line with a single trailing newline.
// An empty manifest renders as an empty string.
func (m Manifest) String() string {
	if len(m) == 0 {
		return ""
	}

	var b strings.Builder

	for _, p := range m {
		b.WriteString(p)
		b.WriteByte('\n')
	}

	return b.String()
}
