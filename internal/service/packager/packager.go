package packager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/renameio"
	"mvdan.cc/sh/v3/syntax"

	"github.com/oshokin/rpm-packager/internal/domain/manifest"
	"github.com/oshokin/rpm-packager/internal/domain/mount"
	"github.com/oshokin/rpm-packager/internal/domain/recipe"
	"github.com/oshokin/rpm-packager/internal/logger"
	"github.com/oshokin/rpm-packager/internal/repository/archive"
	"github.com/oshokin/rpm-packager/internal/service/buildtool"
)

const (
	// TopDirName is the rpmbuild tree created inside the build path.
	TopDirName = "rpmbuild"

	// DestinationRootMacro names the %define carrying the destination root.
	DestinationRootMacro = "destroot"

	// TopDirMacro is the rpm macro pointing rpmbuild at the build tree.
	TopDirMacro = "_topdir"

	// DefaultDirMode is used for directories created in the build path.
	DefaultDirMode os.FileMode = 0o755

	// DefaultFileMode is used for the rendered recipe.
	DefaultFileMode os.FileMode = 0o644

	// buildPathPattern names temporary build paths.
	buildPathPattern = "rpm-packager-*"
)

// treeDirs are the directories rpmbuild expects under _topdir.
//
//nolint:gochecknoglobals // Fixed rpmbuild layout.
var treeDirs = []string{"BUILD", "BUILDROOT", "RPMS", "SOURCES", "SPECS", "SRPMS"}

// Config is everything a Packager needs. It is read once by New.
type Config struct {
	// BuildPath is the working directory; a temporary one is created by Run when empty.
	BuildPath string
	// OutputPath receives artifacts moved without an explicit destination. Defaults to ".".
	OutputPath string
	// DestinationRoot expands %{destroot} in mount destinations and anchors relative ones.
	DestinationRoot string
	// Mounts map sources onto install paths, in order.
	Mounts []mount.Mount
	// Recipe is the package recipe. Run fills its source, macros and files.
	Recipe *recipe.Recipe
	// Compression of the source archive.
	Compression archive.Compression
	// RPMBuild is the build tool binary used in the build command.
	RPMBuild string
}

// state is the packager lifecycle position. Transitions only move forward,
// except that Run may repeat while staged.
type state uint8

const (
	stateConfigured state = iota
	stateStaged
	stateRelocated
)

// Packager stages one package: source archive plus recipe under a build path,
// then relocates the artifact rpmbuild produced. It is not safe for concurrent use;
// packagers with distinct build paths are independent.
type Packager struct {
	// buildPath holds the rpmbuild tree.
	buildPath string
	// outputPath is the default relocation directory.
	outputPath string
	// table holds the mounts.
	table *mount.Table
	// recipe is the caller's recipe, completed by Run.
	recipe *recipe.Recipe
	// compression of the source archive.
	compression archive.Compression
	// binary is the build tool executable.
	binary string
	// state tracks the lifecycle.
	state state
}

// New validates cfg and returns a configured packager.
func New(cfg Config) (*Packager, error) {
	if cfg.Recipe == nil {
		return nil, ErrRecipeRequired
	}

	if err := cfg.Recipe.Validate(); err != nil {
		return nil, fmt.Errorf("validate recipe: %w", err)
	}

	if len(cfg.Mounts) == 0 {
		return nil, ErrNoMounts
	}

	compression, err := archive.ParseCompression(string(cfg.Compression))
	if err != nil {
		return nil, err
	}

	table := mount.NewTable(cfg.DestinationRoot)
	for _, m := range cfg.Mounts {
		table.Add(m)
	}

	if err = table.Validate(); err != nil {
		return nil, fmt.Errorf("validate mounts: %w", err)
	}

	p := &Packager{
		table:       table,
		recipe:      cfg.Recipe,
		compression: compression,
		binary:      cfg.RPMBuild,
	}

	if p.binary == "" {
		p.binary = buildtool.DefaultBinary
	}

	if cfg.BuildPath != "" {
		if p.buildPath, err = filepath.Abs(cfg.BuildPath); err != nil {
			return nil, fmt.Errorf("resolve build path: %w", err)
		}
	}

	outputPath := cfg.OutputPath
	if outputPath == "" {
		outputPath = "."
	}

	if p.outputPath, err = filepath.Abs(outputPath); err != nil {
		return nil, fmt.Errorf("resolve output path: %w", err)
	}

	return p, nil
}

// Recipe returns the recipe the packager completes.
func (p *Packager) Recipe() *recipe.Recipe {
	return p.recipe
}

// BuildPath returns the working directory, empty until Run picked a temporary one.
func (p *Packager) BuildPath() string {
	return p.buildPath
}

// OutputPath returns the default relocation directory.
func (p *Packager) OutputPath() string {
	return p.outputPath
}

// TopDir returns the rpmbuild tree inside the build path.
func (p *Packager) TopDir() string {
	return filepath.Join(p.buildPath, TopDirName)
}

// RecipePath returns where the spec file is written.
func (p *Packager) RecipePath() string {
	return filepath.Join(p.TopDir(), "SPECS", p.recipe.FileName())
}

// ArchivePath returns where the source archive is written.
func (p *Packager) ArchivePath() string {
	return filepath.Join(p.TopDir(), "SOURCES", p.recipe.Name()+p.compression.Extension())
}

// ArtifactPath returns where rpmbuild places the binary package.
func (p *Packager) ArtifactPath() string {
	return filepath.Join(p.TopDir(), "RPMS", p.recipe.Arch(), p.recipe.ArtifactName())
}

// Run stages the package: it resolves the mounts, writes the source archive,
// completes the recipe and writes the spec file. Running again over unchanged
// inputs rewrites byte-identical files.
func (p *Packager) Run(ctx context.Context) error {
	if p.state == stateRelocated {
		return ErrAlreadyRelocated
	}

	ctx = logger.WithKV(ctx, "package", p.recipe.Name())

	if err := p.prepareTree(); err != nil {
		return p.stagingError("prepare build tree", err)
	}

	entries, err := p.table.Resolve()
	if err != nil {
		return p.stagingError("resolve mounts", err)
	}

	logger.DebugKV(ctx, "Resolved mounts", "mounts", p.table.Len(), "entries", len(entries))

	if err = archive.WriteFile(p.ArchivePath(), entries, p.compression); err != nil {
		return p.stagingError("write archive", err)
	}

	files := manifest.Build(entries)

	p.recipe.SetSource(filepath.Base(p.ArchivePath()))
	p.recipe.Define(TopDirMacro, p.TopDir())
	p.recipe.Define(DestinationRootMacro, p.table.Root())
	p.recipe.SetFiles(files)

	contents, err := p.recipe.Bytes()
	if err != nil {
		return p.stagingError("render recipe", err)
	}

	if err = renameio.WriteFile(p.RecipePath(), contents, DefaultFileMode); err != nil {
		return p.stagingError("write recipe", err)
	}

	p.state = stateStaged

	logger.InfoKV(ctx, "Package staged",
		"recipe", p.RecipePath(),
		"archive", p.ArchivePath(),
		"files", len(files),
	)

	return nil
}

// BuildArgs returns the build tool argv for the staged recipe.
func (p *Packager) BuildArgs() []string {
	return buildtool.Args(p.binary, p.RecipePath())
}

// Build returns the shell command that builds the staged recipe.
// It does not run anything.
func (p *Packager) Build() (string, error) {
	if p.state == stateConfigured {
		return "", ErrNotStaged
	}

	args := p.BuildArgs()
	quoted := make([]string, 0, len(args))

	for _, arg := range args {
		q, err := syntax.Quote(arg, syntax.LangBash)
		if err != nil {
			return "", fmt.Errorf("quote %q: %w", arg, err)
		}

		quoted = append(quoted, q)
	}

	return strings.Join(quoted, " "), nil
}

// MovePackage relocates the built artifact to dst. An empty dst means the
// output path; an existing directory, or a dst ending in a separator, receives
// the artifact under its own name.
func (p *Packager) MovePackage(ctx context.Context, dst string) error {
	switch p.state {
	case stateConfigured:
		return ErrNotStaged
	case stateRelocated:
		return ErrAlreadyRelocated
	case stateStaged:
	}

	src := p.ArtifactPath()

	info, err := os.Stat(src)
	if err != nil {
		return &ArtifactNotFoundError{Path: src, Err: err}
	}

	if !info.Mode().IsRegular() {
		return &ArtifactNotFoundError{Path: src, Err: fs.ErrInvalid}
	}

	target, err := p.relocationTarget(dst)
	if err != nil {
		return err
	}

	if err = moveFile(src, target, info.Mode().Perm()); err != nil {
		return fmt.Errorf("move package %s to %s: %w", src, target, err)
	}

	p.state = stateRelocated

	logger.InfoKV(ctx, "Package relocated", "package", p.recipe.Name(), "path", target)

	return nil
}

// relocationTarget resolves dst into a file path and creates its parent.
func (p *Packager) relocationTarget(dst string) (string, error) {
	name := p.recipe.ArtifactName()

	switch {
	case dst == "":
		dst = filepath.Join(p.outputPath, name)
	case strings.HasSuffix(dst, string(filepath.Separator)) || strings.HasSuffix(dst, "/"):
		dst = filepath.Join(dst, name)
	default:
		if info, err := os.Stat(dst); err == nil && info.IsDir() {
			dst = filepath.Join(dst, name)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dst), DefaultDirMode); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	return dst, nil
}

// prepareTree creates the build path when needed and the rpmbuild directories.
func (p *Packager) prepareTree() error {
	if p.buildPath == "" {
		dir, err := os.MkdirTemp("", buildPathPattern)
		if err != nil {
			return err
		}

		p.buildPath = dir
	}

	for _, name := range treeDirs {
		if err := os.MkdirAll(filepath.Join(p.TopDir(), name), DefaultDirMode); err != nil {
			return err
		}
	}

	return nil
}

func (p *Packager) stagingError(step string, err error) error {
	return &StagingError{Package: p.recipe.Name(), Step: step, Err: err}
}

// moveFile renames src to dst, copying through a pending file when they sit
// on different filesystems.
func moveFile(src, dst string, perm os.FileMode) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}

	if err = copyFile(src, dst, perm); err != nil {
		return err
	}

	return os.Remove(src)
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}

	// Read-only file, close errors carry no information.
	defer func() {
		_ = in.Close()
	}()

	pending, err := renameio.TempFile(filepath.Dir(dst), dst)
	if err != nil {
		return err
	}

	// No-op once the pending file replaced dst.
	defer func() {
		_ = pending.Cleanup()
	}()

	if err = pending.Chmod(perm); err != nil {
		return err
	}

	if _, err = io.Copy(pending, in); err != nil {
		return err
	}

	return pending.CloseAtomicallyReplace()
}
