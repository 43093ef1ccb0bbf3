package adjudication

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// Prompts renders the system and user messages sent to a model.
type Prompts struct {
	system *template.Template
	user   *template.Template
}

type promptsFile struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// DefaultPrompts returns the prompts compiled into the binary.
func DefaultPrompts() *Prompts {
	p, err := parsePrompts(defaultPromptsYAML, nil)
	if err != nil {
		panic(fmt.Sprintf("load prompts.yaml: %v", err))
	}
	return p
}

// LoadPrompts reads a YAML file with "system" and "user" templates.
// A template missing from the file keeps its built-in default.
func LoadPrompts(path string) (*Prompts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("adjudication: read prompts %s: %w", path, err)
	}
	p, err := parsePrompts(data, DefaultPrompts())
	if err != nil {
		return nil, fmt.Errorf("adjudication: prompts %s: %w", path, err)
	}
	return p, nil
}

func parsePrompts(data []byte, fallback *Prompts) (*Prompts, error) {
	var f promptsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	p := &Prompts{}
	if fallback != nil {
		p.system, p.user = fallback.system, fallback.user
	}

	if strings.TrimSpace(f.System) != "" {
		t, err := template.New("system").Option("missingkey=error").Parse(f.System)
		if err != nil {
			return nil, fmt.Errorf("parse system template: %w", err)
		}
		p.system = t
	}
	if strings.TrimSpace(f.User) != "" {
		t, err := template.New("user").Option("missingkey=error").Parse(f.User)
		if err != nil {
			return nil, fmt.Errorf("parse user template: %w", err)
		}
		p.user = t
	}
	if p.system == nil || p.user == nil {
		return nil, fmt.Errorf("both system and user templates are required")
	}
	return p, nil
}

// Render executes both templates against sub.
func (p *Prompts) Render(sub Submission) (system, user string, err error) {
	if sub.Language == "" {
		sub.Language = "en"
	}
	var sb, ub bytes.Buffer
	if err := p.system.Execute(&sb, sub); err != nil {
		return "", "", fmt.Errorf("adjudication: render system prompt: %w", err)
	}
	if err := p.user.Execute(&ub, sub); err != nil {
		return "", "", fmt.Errorf("adjudication: render user prompt: %w", err)
	}
	return strings.TrimSpace(sb.String()), strings.TrimSpace(ub.String()), nil
}
