// Package archive writes the package source archive.
//
// Write lays resolved mount entries out as archive members named after their
// install paths, behind the small Writer interface. WriteFile backs that with
// a tar (optionally xz) stream and places the result atomically via renameio.
package archive
