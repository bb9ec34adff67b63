// Package mount maps source files and directories onto the install layout.
//
// A Table holds Mount declarations in the order they were added. Resolve
// expands them into Entry values: one per file, directory or symlink, with the
// absolute destination it occupies inside the package. Directories are walked
// depth-first in lexical order so every consumer (archive, manifest) sees the
// same sequence on every run.
package mount
