package prompts

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Spec is the on-disk declaration of one prompt. System and User may be
// plain strings or Go templates using {{.Field}} from the render input.
type Spec struct {
	Version int    `yaml:"version"`
	System  string `yaml:"system"`
	User    string `yaml:"user"`
}

type Template struct {
	Name    string
	Version int
	system  *template.Template
	user    *template.Template
}

// Prompt is a rendered template.
type Prompt struct {
	Name    string
	Version int
	System  string
	User    string
}

type Set struct {
	templates map[string]Template
}

var funcs = template.FuncMap{
	"join": strings.Join,
	"inc":  func(i int) int { return i + 1 },
}

// MakeTemplate compiles a Spec into a Template.
func MakeTemplate(name string, s Spec) (Template, error) {
	if strings.TrimSpace(name) == "" {
		return Template{}, fmt.Errorf("missing prompt name")
	}
	if s.Version <= 0 {
		s.Version = 1
	}
	if strings.TrimSpace(s.User) == "" {
		return Template{}, fmt.Errorf("%s: empty user template", name)
	}
	sysT, err := template.New("system").Funcs(funcs).Option("missingkey=zero").Parse(s.System)
	if err != nil {
		return Template{}, fmt.Errorf("%s system template parse: %w", name, err)
	}
	userT, err := template.New("user").Funcs(funcs).Option("missingkey=zero").Parse(s.User)
	if err != nil {
		return Template{}, fmt.Errorf("%s user template parse: %w", name, err)
	}
	return Template{Name: name, Version: s.Version, system: sysT, user: userT}, nil
}

// Load parses a YAML document mapping prompt names to specs.
func Load(raw []byte) (*Set, error) {
	specs := map[string]Spec{}
	if err := yaml.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("prompts: decode yaml: %w", err)
	}
	set := &Set{templates: make(map[string]Template, len(specs))}
	for name, s := range specs {
		t, err := MakeTemplate(name, s)
		if err != nil {
			return nil, err
		}
		set.templates[name] = t
	}
	return set, nil
}

// MustLoad is Load for embedded documents that are known to be valid.
func MustLoad(raw []byte) *Set {
	set, err := Load(raw)
	if err != nil {
		panic(err)
	}
	return set
}

func (s *Set) Names() []string {
	out := make([]string, 0, len(s.templates))
	for name := range s.templates {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Set) Build(name string, in any) (Prompt, error) {
	t, ok := s.templates[name]
	if !ok {
		return Prompt{}, fmt.Errorf("prompt %q not registered", name)
	}
	sys, err := render(t.system, in)
	if err != nil {
		return Prompt{}, fmt.Errorf("%s system render: %w", name, err)
	}
	user, err := render(t.user, in)
	if err != nil {
		return Prompt{}, fmt.Errorf("%s user render: %w", name, err)
	}
	return Prompt{Name: t.Name, Version: t.Version, System: sys, User: user}, nil
}

func render(t *template.Template, in any) (string, error) {
	var b bytes.Buffer
	if err := t.Execute(&b, in); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
