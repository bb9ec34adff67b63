// Package config defines the batch configuration of rpm-packager and provides
// helpers to load, validate and save it.
//
// Configuration files are YAML or TOML, picked by extension. Relative paths
// are resolved against the directory holding the file.
package config
