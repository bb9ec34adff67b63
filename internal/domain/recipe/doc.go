// Package recipe models the rpm spec file of a package.
//
// A Recipe carries the preamble tags (Name, Version, Release, ...), %define
// macros and named script sections. The %install and %files sections are not
// set directly: %install is the fixed bootstrap followed by user statements,
// and %files is the manifest derived from the mounts. Render turns the model
// into spec text through an embedded text/template.
package recipe
