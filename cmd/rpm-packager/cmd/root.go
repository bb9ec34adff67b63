package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/rpm-packager/internal/config"
	"github.com/oshokin/rpm-packager/internal/logger"
	"github.com/oshokin/rpm-packager/internal/service/packager"
	"github.com/oshokin/rpm-packager/internal/version"
)

var (
	// configPath to the configuration YAML or TOML file.
	configPath string
	// logLevel is the minimal level of printed messages.
	logLevel string
	// maxWorkers overrides max_workers from the configuration.
	maxWorkers int
	// stageOnly stops after staging and prints the build commands.
	stageOnly bool
	// rpmbuildBinary overrides the build tool from the configuration.
	rpmbuildBinary string

	// rootCmd represents the base command for staging and building packages.
	rootCmd = &cobra.Command{
		Use:   "rpm-packager [config]",
		Short: "Build rpm packages from local files mapped onto install paths.",
		Long: `Stages every package declared in the configuration: mounts are resolved into
a source archive and a generated spec file under the build path, rpmbuild -bb is
run against the spec and the resulting package is moved to its output path.

The configuration can be passed as an argument or with --config.
With --stage-only the build commands are printed instead of being run.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", logLevel)
			}

			logger.SetLevel(level)

			return nil
		},
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			path := configPath
			if len(args) > 0 {
				path = args[0]
			}

			options := &packager.Options{
				ConfigPath: path,
				StageOnly:  stageOnly,
				MaxWorkers: maxWorkers,
				RPMBuild:   rpmbuildBinary,
			}

			return packager.Run(ctx, options)
		},
	}
)

// Execute runs the rpm-packager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		logger.Error(context.Background(), err)
		logger.Sync()
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().IntVarP(&maxWorkers, "workers", "w", 0, "number of packages processed at once (overrides max_workers)")
	rootCmd.Flags().BoolVar(&stageOnly, "stage-only", false, "stage packages and print the build commands without running them")
	rootCmd.Flags().StringVar(&rpmbuildBinary, "rpmbuild", "", "build tool executable (overrides rpmbuild)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level: debug, info, warn or error")
}
