package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinRubricsValidate(t *testing.T) {
	for _, name := range []string{"resume", "transcript"} {
		t.Run(name, func(t *testing.T) {
			r, err := Builtin(name)
			require.NoError(t, err)
			assert.Equal(t, name, r.Name)
		})
	}
}

func TestBuiltinUnknown(t *testing.T) {
	_, err := Builtin("poetry")
	assert.Error(t, err)
}

func TestRubricParams(t *testing.T) {
	r, err := Builtin("transcript")
	require.NoError(t, err)
	assert.Equal(t, []string{"company"}, r.Params())

	r, err = Builtin("resume")
	require.NoError(t, err)
	assert.Empty(t, r.Params())
}

func TestTemplateValidate(t *testing.T) {
	tests := []struct {
		name    string
		tmpl    Template
		wantErr string
	}{
		{
			name: "valid",
			tmpl: Template{System: "Judge {{company}}.", User: "Text: {{text}}", Slots: []string{"text", "company"}},
		},
		{
			name:    "empty user",
			tmpl:    Template{System: "x", User: "  ", Slots: []string{"text"}},
			wantErr: "user segment is empty",
		},
		{
			name:    "text slot undeclared",
			tmpl:    Template{User: "{{body}}", Slots: []string{"body"}},
			wantErr: `slot "text" must be declared`,
		},
		{
			name:    "text only in system",
			tmpl:    Template{System: "{{text}}", User: "go", Slots: []string{"text"}},
			wantErr: "user segment must contain {{text}}",
		},
		{
			name:    "undeclared placeholder",
			tmpl:    Template{User: "{{text}} {{extra}}", Slots: []string{"text"}},
			wantErr: "placeholder {{extra}} is not a declared slot",
		},
		{
			name:    "unused slot",
			tmpl:    Template{User: "{{text}}", Slots: []string{"text", "company"}},
			wantErr: `slot "company" is never used`,
		},
		{
			name:    "duplicate slot",
			tmpl:    Template{User: "{{text}}", Slots: []string{"text", "text"}},
			wantErr: `slot "text" declared twice`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tmpl.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTemplateRender(t *testing.T) {
	tmpl := Template{
		System: "Summarise calls for {{ company }}.",
		User:   "Transcript:\n{{text}}",
		Slots:  []string{"text", "company"},
	}

	p, err := tmpl.Render(map[string]string{"text": "Alice: it is slow {{company}}", "company": "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "Summarise calls for Acme.", p.System)
	assert.Equal(t, "Transcript:\nAlice: it is slow {{company}}", p.User)
}

func TestTemplateRenderMissingValue(t *testing.T) {
	tmpl := Template{User: "{{text}}", Slots: []string{"text"}}
	_, err := tmpl.Render(map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing value for slot "text"`)
}

func TestLoadFileAndResolve(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	body := `name: custom
map:
  slots: [text]
  user: "Score this: {{text}}"
reduce:
  slots: [text]
  user: "Combine: {{text}}"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	r, err := Resolve("resume", path)
	require.NoError(t, err)
	assert.Equal(t, "custom", r.Name)

	r, err = Resolve("resume", "")
	require.NoError(t, err)
	assert.Equal(t, "resume", r.Name)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestParseRejectsInvalidRubric(t *testing.T) {
	_, err := Parse([]byte("name: broken\nmap:\n  slots: [text]\n  user: nothing here\nreduce:\n  slots: [text]\n  user: '{{text}}'\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "map template")

	_, err = Parse([]byte("name: [unclosed"))
	assert.Error(t, err)
}
