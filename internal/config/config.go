package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/rpm-packager/internal/domain/mount"
	"github.com/oshokin/rpm-packager/internal/repository/archive"
	"github.com/oshokin/rpm-packager/internal/service/buildtool"
)

// Config describes a batch of packages to stage and build.
type Config struct {
	// BuildPath is the root of per-package build paths; temporary directories are used when empty.
	BuildPath string `yaml:"build_path,omitempty" toml:"build_path,omitempty"`
	// OutputPath receives built packages that have no explicit output.
	OutputPath string `yaml:"output_path,omitempty" toml:"output_path,omitempty"`
	// RPMBuild is the build tool executable.
	RPMBuild string `yaml:"rpmbuild,omitempty" toml:"rpmbuild,omitempty"`
	// MaxWorkers bounds how many packages are processed at once.
	MaxWorkers int `yaml:"max_workers,omitempty" toml:"max_workers,omitempty"`
	// Packages lists the packages in declaration order.
	Packages []Package `yaml:"packages" toml:"packages"`
}

// Package describes one rpm: its preamble, scripts and mounts.
type Package struct {
	Name        string `yaml:"name" toml:"name"`
	Version     string `yaml:"version,omitempty" toml:"version,omitempty"`
	Release     string `yaml:"release,omitempty" toml:"release,omitempty"`
	Arch        string `yaml:"arch,omitempty" toml:"arch,omitempty"`
	Summary     string `yaml:"summary,omitempty" toml:"summary,omitempty"`
	License     string `yaml:"license,omitempty" toml:"license,omitempty"`
	Description string `yaml:"description,omitempty" toml:"description,omitempty"`
	// DestinationRoot expands %{destroot} in mount destinations.
	DestinationRoot string `yaml:"destination_root,omitempty" toml:"destination_root,omitempty"`
	// Compression of the source archive: none or xz.
	Compression string `yaml:"compression,omitempty" toml:"compression,omitempty"`
	// Props holds extra preamble tags such as URL or Requires.
	Props map[string]string `yaml:"props,omitempty" toml:"props,omitempty"`
	// Defines holds %define macros.
	Defines map[string]string `yaml:"defines,omitempty" toml:"defines,omitempty"`
	// Blocks holds script sections keyed by name, e.g. post or changelog.
	Blocks map[string]string `yaml:"blocks,omitempty" toml:"blocks,omitempty"`
	// Install lists statements appended after the install bootstrap.
	Install []string `yaml:"install,omitempty" toml:"install,omitempty"`
	// Mounts map local sources onto install paths.
	Mounts []mount.Mount `yaml:"mounts" toml:"mounts"`
	// Output is where the built package is moved; the output path is used when empty.
	Output string `yaml:"output,omitempty" toml:"output,omitempty"`
}

const (
	// DefaultConfigFilename is the default configuration file.
	DefaultConfigFilename = "rpm-packager.yaml"

	// DefaultOutputPath is used when no output path is configured.
	DefaultOutputPath = "."

	// DefaultMaxWorkers is used when no worker bound is configured.
	DefaultMaxWorkers = 1

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// ErrNoPackages is returned when the configuration declares no packages.
	ErrNoPackages = errors.New("at least one package must be configured")
	// ErrPackageName is returned for a package without a name.
	ErrPackageName = errors.New("package name must be provided")
	// ErrDuplicatePackage is returned when two packages share a name.
	ErrDuplicatePackage = errors.New("duplicate package name")
	// ErrNoMounts is returned for a package without mounts.
	ErrNoMounts = errors.New("package has no mounts")
	// ErrNegativeWorkers is returned for a negative worker bound.
	ErrNegativeWorkers = errors.New("max workers must not be negative")
	// ErrUnsupportedFormat is returned for configuration files with an unknown extension.
	ErrUnsupportedFormat = errors.New("unsupported configuration format")
)

// Load reads the configuration from path, picking the decoder by extension,
// resolves relative paths against the file's directory and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = decode(path, contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve settings directory: %w", err)
	}

	cfg.resolvePaths(dir)

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to path as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the configuration and fills in defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.MaxWorkers < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeWorkers, cfg.MaxWorkers)
	}

	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}

	if cfg.OutputPath == "" {
		cfg.OutputPath = DefaultOutputPath
	}

	if cfg.RPMBuild == "" {
		cfg.RPMBuild = buildtool.DefaultBinary
	}

	if len(cfg.Packages) == 0 {
		return ErrNoPackages
	}

	seen := make(map[string]struct{}, len(cfg.Packages))

	for i := range cfg.Packages {
		pkg := &cfg.Packages[i]

		pkg.Name = strings.TrimSpace(pkg.Name)
		if pkg.Name == "" {
			return fmt.Errorf("package #%d: %w", i+1, ErrPackageName)
		}

		if _, ok := seen[pkg.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicatePackage, pkg.Name)
		}

		seen[pkg.Name] = struct{}{}

		if len(pkg.Mounts) == 0 {
			return fmt.Errorf("package %s: %w", pkg.Name, ErrNoMounts)
		}

		if _, err := archive.ParseCompression(pkg.Compression); err != nil {
			return fmt.Errorf("package %s: %w", pkg.Name, err)
		}
	}

	return nil
}

// PackageBuildPath returns the build path of the named package, empty when
// packages should get temporary build paths.
func (c *Config) PackageBuildPath(name string) string {
	if c.BuildPath == "" {
		return ""
	}

	return filepath.Join(c.BuildPath, name)
}

// resolvePaths anchors relative build, output and mount source paths at dir.
func (c *Config) resolvePaths(dir string) {
	// A trailing separator marks a directory output and survives anchoring.
	anchor := func(p *string) {
		if *p == "" || filepath.IsAbs(*p) {
			return
		}

		trailing := strings.HasSuffix(*p, "/") || strings.HasSuffix(*p, string(filepath.Separator))
		*p = filepath.Join(dir, *p)

		if trailing {
			*p += string(filepath.Separator)
		}
	}

	anchor(&c.BuildPath)
	anchor(&c.OutputPath)

	for i := range c.Packages {
		pkg := &c.Packages[i]
		anchor(&pkg.Output)

		for j := range pkg.Mounts {
			anchor(&pkg.Mounts[j].Source)
		}
	}
}

func decode(path string, contents []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(contents))
		dec.KnownFields(true)

		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}

		return nil
	case ".toml":
		meta, err := toml.Decode(string(contents), cfg)
		if err != nil {
			return err
		}

		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown field %q", undecoded[0].String())
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}
