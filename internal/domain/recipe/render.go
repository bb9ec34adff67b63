package recipe

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/template"
	"unicode"

	"github.com/oshokin/rpm-packager/internal/domain/manifest"
	"github.com/oshokin/rpm-packager/internal/version"
)

//go:embed recipe.spec.tmpl
var specTemplate string

//nolint:gochecknoglobals // Parsed once, the template is immutable.
var tmpl = template.Must(template.New("recipe").Parse(specTemplate))

// leadingSections and trailingSections frame the custom sections, which are sorted by name.
//
//nolint:gochecknoglobals // Fixed section order of the rendered spec.
var (
	leadingSections  = []string{"prep", "build", BlockInstall, "check", "clean", "pre", "post", "preun", "postun", "pretrans", "posttrans"}
	trailingSections = []string{BlockFiles, "changelog"}
)

type renderDefine struct {
	Name  string
	Value string
}

type renderProp struct {
	Key   string
	Value string
}

type renderSection struct {
	Name string
	Body string
}

type renderData struct {
	Generator   string
	Defines     []renderDefine
	Props       []renderProp
	Source      string
	Description string
	Sections    []renderSection
}

// Render writes the spec file. The output depends only on the recipe contents.
func (r *Recipe) Render(w io.Writer) error {
	if err := r.Validate(); err != nil {
		return err
	}

	if err := tmpl.Execute(w, r.renderData()); err != nil {
		return fmt.Errorf("render recipe %s: %w", r.Name(), err)
	}

	return nil
}

// Bytes renders the spec file into memory.
func (r *Recipe) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (r *Recipe) renderData() *renderData {
	data := &renderData{
		Generator:   version.Generator(),
		Source:      r.source,
		Description: trimBody(r.description()),
	}

	names := make([]string, 0, len(r.defines))
	for name := range r.defines {
		names = append(names, name)
	}

	slices.Sort(names)

	for _, name := range names {
		data.Defines = append(data.Defines, renderDefine{Name: name, Value: r.defines[name]})
	}

	for _, id := range r.order {
		p := r.props[id]

		value := p.value
		if id == strings.ToLower(TagSummary) && value == "" {
			value = r.Name()
		}

		if value == "" {
			continue
		}

		data.Props = append(data.Props, renderProp{Key: p.key, Value: value})
	}

	for _, name := range r.sectionOrder() {
		var body string

		switch name {
		case BlockInstall:
			body = strings.Join(r.Install(), "\n")
		case BlockFiles:
			body = filesBody(r.files)
		default:
			body = trimBody(r.blocks[name])
		}

		data.Sections = append(data.Sections, renderSection{Name: name, Body: body})
	}

	return data
}

// sectionOrder lists the sections to render: install and files always, others when set.
func (r *Recipe) sectionOrder() []string {
	known := make(map[string]struct{}, len(leadingSections)+len(trailingSections)+1)
	known[BlockDescription] = struct{}{}

	var custom []string

	for _, name := range slices.Concat(leadingSections, trailingSections) {
		known[name] = struct{}{}
	}

	for name := range r.blocks {
		if _, ok := known[name]; !ok {
			custom = append(custom, name)
		}
	}

	slices.Sort(custom)

	order := make([]string, 0, len(leadingSections)+len(custom)+len(trailingSections))

	for _, name := range slices.Concat(leadingSections, custom, trailingSections) {
		if name == BlockInstall || name == BlockFiles || r.blocks[name] != "" {
			order = append(order, name)
		}
	}

	return order
}

func (r *Recipe) description() string {
	if text := r.blocks[BlockDescription]; text != "" {
		return text
	}

	if summary := r.Prop(TagSummary); summary != "" {
		return summary
	}

	return r.Name()
}

func trimBody(s string) string {
	return strings.TrimRight(s, "\n")
}

// filesBody renders the manifest as %files lines. rpm expands macros and splits
// on whitespace there, so percent signs are doubled and such paths are quoted.
func filesBody(m manifest.Manifest) string {
	lines := make([]string, 0, len(m))

	for _, p := range m {
		line := strings.ReplaceAll(p, "%", "%%")
		if strings.ContainsFunc(line, unicode.IsSpace) {
			line = `"` + line + `"`
		}

		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}
