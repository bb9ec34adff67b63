package packager

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/rpm-packager/internal/config"
	"github.com/oshokin/rpm-packager/internal/domain/recipe"
	"github.com/oshokin/rpm-packager/internal/logger"
	"github.com/oshokin/rpm-packager/internal/repository/archive"
	"github.com/oshokin/rpm-packager/internal/service/buildtool"
)

// Options contains inputs for the batch entry point.
type Options struct {
	// ConfigPath is the YAML or TOML configuration file.
	ConfigPath string
	// StageOnly writes recipes and archives and prints the build commands without running them.
	StageOnly bool
	// MaxWorkers overrides the configured worker bound when positive.
	MaxWorkers int
	// RPMBuild overrides the configured build tool binary when set.
	RPMBuild string
	// Invoker runs the build tool. An RPMBuild for the configured binary is used when nil.
	Invoker buildtool.Invoker
}

// Run loads the configuration and stages, builds and relocates every package,
// at most MaxWorkers at a time. The first failure cancels the remaining packages.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "rpm-packager")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if opts.MaxWorkers > 0 {
		cfg.MaxWorkers = opts.MaxWorkers
	}

	if opts.RPMBuild != "" {
		cfg.RPMBuild = opts.RPMBuild
	}

	invoker := opts.Invoker
	if invoker == nil {
		invoker = buildtool.NewRPMBuild(cfg.RPMBuild)
	}

	logger.InfoKV(ctx, "Processing packages",
		"config", opts.ConfigPath,
		"packages", len(cfg.Packages),
		"workers", cfg.MaxWorkers,
		"stage_only", opts.StageOnly,
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(cfg.MaxWorkers)

	for _, pkg := range cfg.Packages {
		group.Go(func() error {
			return processPackage(groupCtx, cfg, pkg, opts.StageOnly, invoker)
		})
	}

	if err = group.Wait(); err != nil {
		return err
	}

	logger.Info(ctx, "Packager completed successfully")

	return nil
}

// processPackage runs the whole lifecycle of one configured package.
func processPackage(
	ctx context.Context,
	cfg *config.Config,
	pkg config.Package,
	stageOnly bool,
	invoker buildtool.Invoker,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	spec, err := NewRecipe(pkg)
	if err != nil {
		return fmt.Errorf("configure package %s: %w", pkg.Name, err)
	}

	p, err := New(Config{
		BuildPath:       cfg.PackageBuildPath(pkg.Name),
		OutputPath:      cfg.OutputPath,
		DestinationRoot: pkg.DestinationRoot,
		Mounts:          pkg.Mounts,
		Recipe:          spec,
		Compression:     archive.Compression(pkg.Compression),
		RPMBuild:        cfg.RPMBuild,
	})
	if err != nil {
		return fmt.Errorf("configure package %s: %w", pkg.Name, err)
	}

	if err = p.Run(ctx); err != nil {
		return err
	}

	ctx = logger.WithKV(ctx, "package", pkg.Name)

	if stageOnly {
		command, buildErr := p.Build()
		if buildErr != nil {
			return fmt.Errorf("build command for %s: %w", pkg.Name, buildErr)
		}

		logger.InfoKV(ctx, "Package is ready to build", "command", command)

		return nil
	}

	if _, err = invoker.Invoke(ctx, p.RecipePath()); err != nil {
		return fmt.Errorf("build package %s: %w", pkg.Name, err)
	}

	if err = p.MovePackage(ctx, pkg.Output); err != nil {
		return err
	}

	if cfg.BuildPath == "" {
		if err = os.RemoveAll(p.BuildPath()); err != nil {
			logger.WarnKV(ctx, "Failed to remove temporary build path", "path", p.BuildPath(), "error", err)
		}
	}

	return nil
}

// NewRecipe builds the recipe of a configured package. Extra tags and sections
// are applied in name order so the rendered recipe does not depend on map order.
func NewRecipe(pkg config.Package) (*recipe.Recipe, error) {
	spec := recipe.New(pkg.Name)

	for tag, value := range map[string]string{
		recipe.TagVersion:   pkg.Version,
		recipe.TagRelease:   pkg.Release,
		recipe.TagBuildArch: pkg.Arch,
		recipe.TagSummary:   pkg.Summary,
		recipe.TagLicense:   pkg.License,
	} {
		if value != "" {
			spec.SetProp(tag, value)
		}
	}

	for _, tag := range slices.Sorted(maps.Keys(pkg.Props)) {
		spec.SetProp(tag, pkg.Props[tag])
	}

	for name, value := range pkg.Defines {
		spec.Define(name, value)
	}

	if pkg.Description != "" {
		if err := spec.SetBlock(recipe.BlockDescription, pkg.Description); err != nil {
			return nil, err
		}
	}

	for _, name := range slices.Sorted(maps.Keys(pkg.Blocks)) {
		if err := spec.SetBlock(name, pkg.Blocks[name]); err != nil {
			return nil, fmt.Errorf("section %s: %w", name, err)
		}
	}

	for _, stmt := range pkg.Install {
		if err := spec.AppendInstallCommand(stmt); err != nil {
			return nil, err
		}
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}

	return spec, nil
}
