// Package manifest builds the %files list of a package from resolved mount entries.
package manifest
