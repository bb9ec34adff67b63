package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/rpm-packager/internal/domain/mount"
	"github.com/oshokin/rpm-packager/internal/repository/archive"
)

const yamlSettings = `build_path: /var/tmp/rpm
max_workers: 4
packages:
  - name: app
    version: "1.2"
    destination_root: /opt/app
    compression: xz
    props:
      URL: https://example.com
    defines:
      debug_package: "%{nil}"
    blocks:
      post: systemctl daemon-reload
    install:
      - echo %{destroot}
    mounts:
      - source: dist/bin
        destination: "%{destroot}/bin"
        exclude: ["**/*.log"]
      - source: /etc/app.conf
        destination: /etc/app.conf
`

const tomlSettings = `output_path = "out"

[[packages]]
name = "tool"
summary = "A tool"
output = "dist/"

[[packages.mounts]]
source = "tool"
destination = "/usr/bin/tool"
`

func writeSettings(t *testing.T, name, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

// TestLoad_YAML decodes YAML, resolves relative sources and fills defaults.
func TestLoad_YAML(t *testing.T) {
	t.Parallel()

	path := writeSettings(t, "settings.yaml", yamlSettings)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.MaxWorkers)
	require.Equal(t, DefaultOutputPath, cfg.OutputPath)
	require.Equal(t, "rpmbuild", cfg.RPMBuild)
	require.Len(t, cfg.Packages, 1)

	pkg := cfg.Packages[0]
	require.Equal(t, "app", pkg.Name)
	require.Equal(t, "1.2", pkg.Version)
	require.Equal(t, "https://example.com", pkg.Props["URL"])
	require.Equal(t, "%{nil}", pkg.Defines["debug_package"])
	require.Equal(t, "systemctl daemon-reload", pkg.Blocks["post"])
	require.Equal(t, []string{"echo %{destroot}"}, pkg.Install)
	require.Equal(t, []mount.Mount{
		{Source: filepath.Join(filepath.Dir(path), "dist", "bin"), Destination: "%{destroot}/bin", Exclude: []string{"**/*.log"}},
		{Source: "/etc/app.conf", Destination: "/etc/app.conf"},
	}, pkg.Mounts)
	require.Equal(t, filepath.Join("/var/tmp/rpm", "app"), cfg.PackageBuildPath("app"))
}

// TestLoad_TOML decodes TOML settings and anchors relative paths at the file.
func TestLoad_TOML(t *testing.T) {
	t.Parallel()

	path := writeSettings(t, "settings.toml", tomlSettings)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(filepath.Dir(path), "out"), cfg.OutputPath)
	require.Equal(t, DefaultMaxWorkers, cfg.MaxWorkers)
	require.Len(t, cfg.Packages, 1)
	require.Equal(t, "A tool", cfg.Packages[0].Summary)
	require.Equal(t, filepath.Join(filepath.Dir(path), "dist")+string(filepath.Separator), cfg.Packages[0].Output)
	require.Equal(t, filepath.Join(filepath.Dir(path), "tool"), cfg.Packages[0].Mounts[0].Source)
	require.Empty(t, cfg.PackageBuildPath("tool"))
}

// TestLoad_UnknownFields rejects misspelled keys in both formats.
func TestLoad_UnknownFields(t *testing.T) {
	t.Parallel()

	_, err := Load(writeSettings(t, "settings.yaml", "packages:\n  - name: x\n    mount: []\n"))
	require.Error(t, err)

	_, err = Load(writeSettings(t, "settings.toml", tomlSettings+"\nworkers = 3\n"))
	require.Error(t, err)

	_, err = Load(writeSettings(t, "settings.json", "{}"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestValidate checks required fields and defaults.
func TestValidate(t *testing.T) {
	t.Parallel()

	mounts := []mount.Mount{{Source: "/a", Destination: "/a"}}

	require.ErrorIs(t, Validate(new(Config)), ErrNoPackages)
	require.ErrorIs(t, Validate(&Config{Packages: []Package{{Name: " ", Mounts: mounts}}}), ErrPackageName)
	require.ErrorIs(t, Validate(&Config{Packages: []Package{{Name: "a"}}}), ErrNoMounts)
	require.ErrorIs(t, Validate(&Config{Packages: []Package{
		{Name: "a", Mounts: mounts},
		{Name: "a", Mounts: mounts},
	}}), ErrDuplicatePackage)
	require.ErrorIs(t, Validate(&Config{Packages: []Package{
		{Name: "a", Mounts: mounts, Compression: "zip"},
	}}), archive.ErrUnknownCompression)
	require.ErrorIs(t, Validate(&Config{MaxWorkers: -1, Packages: []Package{{Name: "a", Mounts: mounts}}}),
		ErrNegativeWorkers)
	require.Error(t, Validate(nil))

	cfg := &Config{Packages: []Package{{Name: "a", Mounts: mounts}}}
	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultMaxWorkers, cfg.MaxWorkers)
	require.Equal(t, DefaultOutputPath, cfg.OutputPath)
	require.Equal(t, "rpmbuild", cfg.RPMBuild)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")

	settings := &Config{
		OutputPath: "/srv/rpms",
		Packages: []Package{{
			Name:            "app",
			DestinationRoot: "/opt/app",
			Install:         []string{"chmod 755 %{buildroot}/opt/app/bin"},
			Mounts:          []mount.Mount{{Source: "/src/app", Destination: "%{destroot}"}},
		}},
	}

	require.NoError(t, Save(path, settings))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, settings, loaded)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(DefaultFilePermissions), info.Mode().Perm())

	require.Error(t, Save(path, nil))
}
