// Package buildtool runs the external package builder against a rendered recipe.
//
// The packager only computes the command; Invoker implementations own the
// process, its output and its exit status.
package buildtool
