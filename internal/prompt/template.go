package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Template errors.
var (
	ErrTemplateNotFound = errors.New("prompt template not found")
	ErrInvalidTemplate  = errors.New("invalid prompt template")
)

// Template is one named prompt. System and User are text/template sources
// rendered against the call's data.
type Template struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	System      string `yaml:"system"`
	User        string `yaml:"user"`

	system *template.Template
	user   *template.Template
}

// Rendered is a template filled with data, ready to send.
type Rendered struct {
	System string
	User   string
}

// ParseTemplate decodes a YAML template document and compiles its bodies.
// fallbackID is used when the document does not declare an id.
func ParseTemplate(data []byte, fallbackID string) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidTemplate, fallbackID, err)
	}
	if t.ID == "" {
		t.ID = fallbackID
	}
	if strings.TrimSpace(t.User) == "" {
		return nil, fmt.Errorf("%w: %s: user body is required", ErrInvalidTemplate, t.ID)
	}

	var err error
	if t.system, err = template.New(t.ID + ".system").Funcs(templateFuncs()).Option("missingkey=zero").Parse(t.System); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidTemplate, t.ID, err)
	}
	if t.user, err = template.New(t.ID + ".user").Funcs(templateFuncs()).Option("missingkey=zero").Parse(t.User); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidTemplate, t.ID, err)
	}
	return &t, nil
}

// Execute renders both bodies against data.
func (t *Template) Execute(data any) (Rendered, error) {
	var sys, usr bytes.Buffer
	if err := t.system.Execute(&sys, data); err != nil {
		return Rendered{}, fmt.Errorf("rendering %s system prompt: %w", t.ID, err)
	}
	if err := t.user.Execute(&usr, data); err != nil {
		return Rendered{}, fmt.Errorf("rendering %s user prompt: %w", t.ID, err)
	}
	return Rendered{
		System: strings.TrimSpace(sys.String()),
		User:   strings.TrimSpace(usr.String()),
	}, nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"join":      strings.Join,
		"trimSpace": strings.TrimSpace,
		"upper":     strings.ToUpper,
		"lower":     strings.ToLower,
		"indent":    indent,
		"percent":   func(f float64) string { return fmt.Sprintf("%.0f%%", f*100) },
	}
}

func indent(spaces int, s string) string {
	pad := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}
