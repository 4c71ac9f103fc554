// Package prompts holds structured prompt templates and the rubric sets built from them.
// Rubrics are data: the defaults are embedded YAML files and a deployment may load its own.
package prompts

import (
	"embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Lllllllleong/documentevaluator/internal/llm"
)

// TextSlot is the slot filled with the page text (map) or the joined map outputs (reduce).
const TextSlot = "text"

//go:embed rubrics/*.yaml
var rubricFiles embed.FS

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Template is a two-part prompt with named slots written as {{name}}.
type Template struct {
	System string   `yaml:"system"`
	User   string   `yaml:"user"`
	Slots  []string `yaml:"slots"`
}

// Validate checks that the placeholders used by the template match its declared
// slots and that the text slot appears in the user segment.
func (t Template) Validate() error {
	if strings.TrimSpace(t.User) == "" {
		return fmt.Errorf("user segment is empty")
	}

	declared := make(map[string]bool, len(t.Slots))
	for _, s := range t.Slots {
		if declared[s] {
			return fmt.Errorf("slot %q declared twice", s)
		}
		declared[s] = true
	}
	if !declared[TextSlot] {
		return fmt.Errorf("slot %q must be declared", TextSlot)
	}

	used := make(map[string]bool)
	for _, name := range names(t.System) {
		used[name] = true
	}
	userNames := names(t.User)
	for _, name := range userNames {
		used[name] = true
	}

	var userHasText bool
	for _, name := range userNames {
		if name == TextSlot {
			userHasText = true
		}
	}
	if !userHasText {
		return fmt.Errorf("user segment must contain {{%s}}", TextSlot)
	}

	for name := range used {
		if !declared[name] {
			return fmt.Errorf("placeholder {{%s}} is not a declared slot", name)
		}
	}
	for name := range declared {
		if !used[name] {
			return fmt.Errorf("slot %q is never used", name)
		}
	}
	return nil
}

// Render substitutes every slot and returns the prompt. Substituted values are
// not expanded again, so page text containing braces is passed through verbatim.
func (t Template) Render(values map[string]string) (llm.Prompt, error) {
	for _, s := range t.Slots {
		if _, ok := values[s]; !ok {
			return llm.Prompt{}, fmt.Errorf("missing value for slot %q", s)
		}
	}
	fill := func(segment string) string {
		return placeholder.ReplaceAllStringFunc(segment, func(m string) string {
			name := placeholder.FindStringSubmatch(m)[1]
			if v, ok := values[name]; ok {
				return v
			}
			return m
		})
	}
	return llm.Prompt{System: strings.TrimSpace(fill(t.System)), User: strings.TrimSpace(fill(t.User))}, nil
}

// Params returns the slots other than the text slot, sorted.
func (t Template) Params() []string {
	var out []string
	for _, s := range t.Slots {
		if s != TextSlot {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func names(segment string) []string {
	var out []string
	for _, m := range placeholder.FindAllStringSubmatch(segment, -1) {
		out = append(out, m[1])
	}
	return out
}

// Rubric pairs the map and reduce templates of one evaluation style.
type Rubric struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Map         Template `yaml:"map"`
	Reduce      Template `yaml:"reduce"`
}

// Validate checks both templates.
func (r Rubric) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rubric name is required")
	}
	if err := r.Map.Validate(); err != nil {
		return fmt.Errorf("rubric %s: map template: %w", r.Name, err)
	}
	if err := r.Reduce.Validate(); err != nil {
		return fmt.Errorf("rubric %s: reduce template: %w", r.Name, err)
	}
	return nil
}

// Params returns every caller-supplied slot used by either template.
func (r Rubric) Params() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range append(r.Map.Params(), r.Reduce.Params()...) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Parse decodes and validates a rubric from YAML.
func Parse(data []byte) (Rubric, error) {
	var r Rubric
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rubric{}, fmt.Errorf("failed to parse rubric: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Rubric{}, err
	}
	return r, nil
}

// Builtin returns one of the embedded rubrics by name ("resume", "transcript").
func Builtin(name string) (Rubric, error) {
	data, err := rubricFiles.ReadFile("rubrics/" + name + ".yaml")
	if err != nil {
		return Rubric{}, fmt.Errorf("unknown rubric %q: %w", name, err)
	}
	return Parse(data)
}

// LoadFile reads a rubric from a YAML file on disk.
func LoadFile(path string) (Rubric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rubric{}, fmt.Errorf("failed to read rubric file %s: %w", path, err)
	}
	return Parse(data)
}

// Resolve loads path when set and falls back to the named builtin.
func Resolve(name, path string) (Rubric, error) {
	if path != "" {
		return LoadFile(path)
	}
	return Builtin(name)
}
