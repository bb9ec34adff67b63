// Package version exposes build metadata for rpm-packager.
//
// Version, Commit and BuildTime are injected through -ldflags at release time.
// Generator is stamped into every rendered recipe so a spec file can be traced
// back to the tool build that produced it.
package version
