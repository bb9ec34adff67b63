package recipe

import (
	"errors"
	"fmt"
	"strings"

	"github.com/oshokin/rpm-packager/internal/domain/manifest"
)

// Well-known preamble tags.
const (
	TagName      = "Name"
	TagVersion   = "Version"
	TagRelease   = "Release"
	TagSummary   = "Summary"
	TagLicense   = "License"
	TagBuildArch = "BuildArch"
)

// Defaults applied by New, matching what rpmbuild needs to produce a noarch package.
const (
	DefaultVersion = "0.1"
	DefaultRelease = "1"
	DefaultLicense = "free"
	DefaultArch    = "noarch"
	DefaultPrep    = "%autosetup -c package"
)

// Names of the sections derived from mounts; they cannot be set directly.
const (
	BlockInstall     = "install"
	BlockFiles       = "files"
	BlockDescription = "description"
	BlockPrep        = "prep"
)

var (
	// ErrNameRequired is returned when the package name is empty.
	ErrNameRequired = errors.New("package name is required")
	// ErrInvalidTagValue is returned when a tag used in file names contains forbidden characters.
	ErrInvalidTagValue = errors.New("invalid tag value")
	// ErrReservedBlock is returned when setting a section that is derived from mounts.
	ErrReservedBlock = errors.New("section is generated and cannot be set")
	// ErrEmptyBlockName is returned for a section without a name.
	ErrEmptyBlockName = errors.New("section name is empty")
)

// Tag is a preamble line as it is rendered.
type Tag struct {
	Key   string
	Value string
}

// prop is a preamble line. key keeps the spelling it was first set with.
type prop struct {
	key   string
	value string
}

// Recipe is the model of an rpm spec file: preamble tags, macro definitions,
// script sections, and the install/files sections derived from mounts.
// It is not safe for concurrent use.
type Recipe struct {
	// props maps lowercased tag names to their value.
	props map[string]*prop
	// order lists lowercased tag names in first-set order.
	order []string
	// defines holds %define macros.
	defines map[string]string
	// blocks holds named script sections keyed by lowercase name.
	blocks map[string]string
	// install collects user install statements.
	install InstallScript
	// files is the manifest rendered into %files.
	files manifest.Manifest
	// source is the Source0 archive file name.
	source string
}

// New creates a recipe for name with default version, release, license, arch and prep.
func New(name string) *Recipe {
	r := &Recipe{
		props:   make(map[string]*prop),
		defines: make(map[string]string),
		blocks:  make(map[string]string),
	}

	r.SetProp(TagName, name)
	r.SetProp(TagVersion, DefaultVersion)
	r.SetProp(TagRelease, DefaultRelease)
	r.SetProp(TagSummary, "")
	r.SetProp(TagLicense, DefaultLicense)
	r.SetProp(TagBuildArch, DefaultArch)
	r.blocks[BlockPrep] = DefaultPrep

	return r
}

// SetProp sets a preamble tag. Tag names are case-insensitive, like in rpm.
// Empty tag names are ignored; use Validate to catch bad values.
func (r *Recipe) SetProp(key, value string) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}

	id := strings.ToLower(key)
	if p, ok := r.props[id]; ok {
		p.value = value

		return
	}

	r.props[id] = &prop{key: key, value: value}
	r.order = append(r.order, id)
}

// Prop returns the value of a preamble tag, or "" when unset.
func (r *Recipe) Prop(key string) string {
	if p, ok := r.props[strings.ToLower(strings.TrimSpace(key))]; ok {
		return p.value
	}

	return ""
}

// Props returns the preamble tags in the order they were first set.
func (r *Recipe) Props() []Tag {
	tags := make([]Tag, 0, len(r.order))
	for _, id := range r.order {
		tags = append(tags, Tag{Key: r.props[id].key, Value: r.props[id].value})
	}

	return tags
}

// Name returns the package name.
func (r *Recipe) Name() string { return r.Prop(TagName) }

// Version returns the package version.
func (r *Recipe) Version() string { return r.Prop(TagVersion) }

// Release returns the package release.
func (r *Recipe) Release() string { return r.Prop(TagRelease) }

// Arch returns the build architecture.
func (r *Recipe) Arch() string { return r.Prop(TagBuildArch) }

// Define sets a %define macro. An empty value removes it.
func (r *Recipe) Define(name, value string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}

	if value == "" {
		delete(r.defines, name)

		return
	}

	r.defines[name] = value
}

// Defined returns the value of a %define macro.
func (r *Recipe) Defined(name string) string {
	return r.defines[name]
}

// SetBlock sets the body of a script section such as "prep" or "post".
// The leading percent sign is optional. An empty body removes the section.
func (r *Recipe) SetBlock(name, text string) error {
	id := blockID(name)

	switch id {
	case "":
		return ErrEmptyBlockName
	case BlockInstall, BlockFiles:
		return fmt.Errorf("%w: %%%s", ErrReservedBlock, id)
	}

	if text == "" {
		delete(r.blocks, id)

		return nil
	}

	r.blocks[id] = text

	return nil
}

// Block returns the body of a script section.
func (r *Recipe) Block(name string) string {
	return r.blocks[blockID(name)]
}

// AppendInstallCommand appends a user statement to the install section.
func (r *Recipe) AppendInstallCommand(cmd string) error {
	return r.install.Append(cmd)
}

// Install returns the composed install section: bootstrap statements then user statements.
func (r *Recipe) Install() []string {
	return r.install.Statements()
}

// SetFiles replaces the %files manifest.
func (r *Recipe) SetFiles(m manifest.Manifest) {
	r.files = append(manifest.Manifest(nil), m...)
}

// Files returns the %files section text.
func (r *Recipe) Files() string {
	return r.files.String()
}

// SetSource sets the Source0 archive file name.
func (r *Recipe) SetSource(name string) {
	r.source = name
}

// Source returns the Source0 archive file name.
func (r *Recipe) Source() string {
	return r.source
}

// Validate checks the tags that end up in file names.
func (r *Recipe) Validate() error {
	if strings.TrimSpace(r.Name()) == "" {
		return ErrNameRequired
	}

	checks := []struct {
		tag       string
		forbidden string
	}{
		{TagName, " \t\n/"},
		{TagVersion, " \t\n/-"},
		{TagRelease, " \t\n/-"},
		{TagBuildArch, " \t\n/"},
	}

	for _, check := range checks {
		value := r.Prop(check.tag)
		if value == "" || strings.ContainsAny(value, check.forbidden) {
			return fmt.Errorf("%w: %s %q", ErrInvalidTagValue, check.tag, value)
		}
	}

	return nil
}

// ArtifactName returns the file name rpmbuild gives the binary package.
func (r *Recipe) ArtifactName() string {
	return fmt.Sprintf("%s-%s-%s.%s.rpm", r.Name(), r.Version(), r.Release(), r.Arch())
}

// FileName returns the spec file name, "<name>.spec".
func (r *Recipe) FileName() string {
	return r.Name() + ".spec"
}

func blockID(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "%"))
}
