package recipe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/rpm-packager/internal/domain/manifest"
	"github.com/oshokin/rpm-packager/internal/version"
)

// TestNew_Defaults checks the tags every new recipe starts with.
func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	r := New("test-s")

	require.Equal(t, "test-s", r.Name())
	require.Equal(t, DefaultVersion, r.Version())
	require.Equal(t, DefaultRelease, r.Release())
	require.Equal(t, DefaultArch, r.Arch())
	require.Equal(t, DefaultPrep, r.Block("prep"))
	require.Equal(t, "test-s-0.1-1.noarch.rpm", r.ArtifactName())
	require.Equal(t, "test-s.spec", r.FileName())
	require.NoError(t, r.Validate())
}

// TestSetProp_CaseInsensitive overwrites tags regardless of spelling.
func TestSetProp_CaseInsensitive(t *testing.T) {
	t.Parallel()

	r := New("test-c")
	r.SetProp("release", "2")
	r.SetProp("Requires", "bash")
	r.SetProp(" ", "ignored")

	require.Equal(t, "2", r.Release())
	require.Equal(t, "2", r.Prop("RELEASE"))
	require.Equal(t, "bash", r.Prop("requires"))
	require.Equal(t, "test-c-0.1-2.noarch.rpm", r.ArtifactName())
	require.Equal(t, []Tag{
		{Key: TagName, Value: "test-c"},
		{Key: TagVersion, Value: DefaultVersion},
		{Key: TagRelease, Value: "2"},
		{Key: TagSummary, Value: ""},
		{Key: TagLicense, Value: DefaultLicense},
		{Key: TagBuildArch, Value: DefaultArch},
		{Key: "Requires", Value: "bash"},
	}, r.Props())
}

// TestInstall_PrefixInvariant keeps the bootstrap first and user statements in order.
func TestInstall_PrefixInvariant(t *testing.T) {
	t.Parallel()

	r := New("test-c")
	require.Equal(t, Bootstrap(), r.Install())

	require.NoError(t, r.AppendInstallCommand("echo done"))
	require.Equal(t, []string{
		"rm -rf %{buildroot}",
		"mkdir -p %{buildroot}",
		"cp -rp * %{buildroot}",
		"echo done",
	}, r.Install())

	require.NoError(t, r.AppendInstallCommand("echo %{destroot}"))
	require.NoError(t, r.AppendInstallCommand("install -m 0644 %{SOURCE1} %{buildroot}/etc/app.conf"))

	install := r.Install()
	require.Equal(t, Bootstrap(), install[:3])
	require.Equal(t, []string{"echo done", "echo %{destroot}", "install -m 0644 %{SOURCE1} %{buildroot}/etc/app.conf"}, install[3:])
}

// TestAppendInstallCommand_Rejects blank and unparsable statements.
func TestAppendInstallCommand_Rejects(t *testing.T) {
	t.Parallel()

	r := New("test-c")

	require.ErrorIs(t, r.AppendInstallCommand("   "), ErrEmptyStatement)
	require.ErrorIs(t, r.AppendInstallCommand("echo 'unterminated"), ErrStatementSyntax)
	require.ErrorIs(t, r.AppendInstallCommand("if true; then"), ErrStatementSyntax)
	require.Equal(t, Bootstrap(), r.Install())
}

// TestSetBlock covers reserved, empty and percent-prefixed section names.
func TestSetBlock(t *testing.T) {
	t.Parallel()

	r := New("test-c")

	require.NoError(t, r.SetBlock("%post", "systemctl daemon-reload"))
	require.Equal(t, "systemctl daemon-reload", r.Block("post"))

	require.ErrorIs(t, r.SetBlock("install", "echo"), ErrReservedBlock)
	require.ErrorIs(t, r.SetBlock("%FILES", "/x"), ErrReservedBlock)
	require.ErrorIs(t, r.SetBlock(" ", "x"), ErrEmptyBlockName)

	require.NoError(t, r.SetBlock("post", ""))
	require.Empty(t, r.Block("post"))
}

// TestValidate rejects values rpm cannot put into file names.
func TestValidate(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, New("").Validate(), ErrNameRequired)
	require.ErrorIs(t, New("two words").Validate(), ErrInvalidTagValue)

	r := New("app")
	r.SetProp(TagVersion, "1.0-rc1")
	require.ErrorIs(t, r.Validate(), ErrInvalidTagValue)

	r = New("app")
	r.SetProp(TagBuildArch, "")
	require.ErrorIs(t, r.Validate(), ErrInvalidTagValue)
}

// TestRender produces the complete spec text.
func TestRender(t *testing.T) {
	t.Parallel()

	r := New("test-c")
	r.SetProp(TagRelease, "2")
	r.Define("_topdir", "/build/rpmbuild")
	r.Define("destroot", "/tmp/test")
	r.SetSource("test-c.tar")
	require.NoError(t, r.SetBlock("prep", "%autosetup -c package\n"))
	require.NoError(t, r.SetBlock("zz-custom", "echo custom"))
	require.NoError(t, r.SetBlock("changelog", "* Thu Jan 01 1970 Nobody - 0.1-2\n- initial"))
	require.NoError(t, r.SetBlock("post", "ldconfig"))
	require.NoError(t, r.AppendInstallCommand("echo %{destroot}"))
	r.SetFiles(manifest.Manifest{"/tmp/test/binary", "/tmp/test/lib"})

	got, err := r.Bytes()
	require.NoError(t, err)

	want := "# Generated by " + version.Generator() + ". Do not edit.\n" +
		"%define _topdir /build/rpmbuild\n" +
		"%define destroot /tmp/test\n" +
		"Name: test-c\n" +
		"Version: 0.1\n" +
		"Release: 2\n" +
		"Summary: test-c\n" +
		"License: free\n" +
		"BuildArch: noarch\n" +
		"Source0: test-c.tar\n" +
		"\n" +
		"%description\n" +
		"test-c\n" +
		"\n" +
		"%prep\n" +
		"%autosetup -c package\n" +
		"\n" +
		"%install\n" +
		"rm -rf %{buildroot}\n" +
		"mkdir -p %{buildroot}\n" +
		"cp -rp * %{buildroot}\n" +
		"echo %{destroot}\n" +
		"\n" +
		"%post\n" +
		"ldconfig\n" +
		"\n" +
		"%zz-custom\n" +
		"echo custom\n" +
		"\n" +
		"%files\n" +
		"/tmp/test/binary\n" +
		"/tmp/test/lib\n" +
		"\n" +
		"%changelog\n" +
		"* Thu Jan 01 1970 Nobody - 0.1-2\n" +
		"- initial\n"

	require.Equal(t, want, string(got))
	require.Equal(t, "/tmp/test/binary\n/tmp/test/lib\n", r.Files())
}

// TestRender_Description prefers the description section, then the summary.
func TestRender_Description(t *testing.T) {
	t.Parallel()

	r := New("app")
	r.SetProp(TagSummary, "Example application")

	got, err := r.Bytes()
	require.NoError(t, err)
	require.Contains(t, string(got), "Summary: Example application\n")
	require.Contains(t, string(got), "%description\nExample application\n")
	require.NotContains(t, string(got), "Source0:")

	require.NoError(t, r.SetBlock("description", "Longer text.\n"))

	got, err = r.Bytes()
	require.NoError(t, err)
	require.Contains(t, string(got), "%description\nLonger text.\n")
	require.NotContains(t, string(got), "%description\nExample application")
}

// TestRender_Deterministic renders identical bytes for identical recipes.
func TestRender_Deterministic(t *testing.T) {
	t.Parallel()

	build := func() []byte {
		r := New("app")
		for _, name := range []string{"b", "a", "c"} {
			r.Define(name, name+"-value")
		}

		got, err := r.Bytes()
		require.NoError(t, err)

		return got
	}

	require.Equal(t, build(), build())
}

// TestRender_InvalidRecipe returns the validation error.
func TestRender_InvalidRecipe(t *testing.T) {
	t.Parallel()

	_, err := New("").Bytes()
	require.ErrorIs(t, err, ErrNameRequired)
}

// TestRender_FilesEscaping quotes paths with whitespace and doubles percent signs in %files.
func TestRender_FilesEscaping(t *testing.T) {
	t.Parallel()

	r := New("app")
	r.SetFiles(manifest.Manifest{"/opt/app", "/opt/app/read me.txt", "/opt/app/100%{x}", "/opt/app/tab\there"})

	got, err := r.Bytes()
	require.NoError(t, err)
	require.Contains(t, string(got),
		"%files\n/opt/app\n\"/opt/app/read me.txt\"\n/opt/app/100%%{x}\n\"/opt/app/tab\there\"\n")
	require.Equal(t, "/opt/app\n/opt/app/read me.txt\n/opt/app/100%{x}\n/opt/app/tab\there\n", r.Files())
}
