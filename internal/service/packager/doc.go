// Package packager stages rpm packages and relocates what rpmbuild produced.
//
// A Packager owns one build path. Run resolves the mounts, writes the source
// archive and renders the recipe; Build returns the rpmbuild command line;
// MovePackage moves the built artifact to its final place. The package level
// Run drives a whole configuration, one Packager per configured package.
package packager
