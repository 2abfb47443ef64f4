package skill

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTemplateRendererSubstitutes(t *testing.T) {
	out, err := TemplateRenderer{}.Render("Review {{language}} code:\n{{code}}", map[string]any{
		"language": "Go",
		"code":     "func main() {}",
	})
	require.NoError(t, err)
	require.Equal(t, "Review Go code:\nfunc main() {}", out)
}

func TestTemplateRendererConditionals(t *testing.T) {
	tmpl := "{{#if focus}}Focus: {{focus}}{{else}}General review{{/if}}."

	out, err := TemplateRenderer{}.Render(tmpl, map[string]any{"focus": "security"})
	require.NoError(t, err)
	require.Equal(t, "Focus: security.", out)

	out, err = TemplateRenderer{}.Render(tmpl, map[string]any{"focus": "  "})
	require.NoError(t, err)
	require.Equal(t, "General review.", out)
}

func TestTemplateRendererNestedConditionals(t *testing.T) {
	tmpl := "{{#if a}}A{{#if b}}B{{/if}}{{else}}none{{/if}}"
	out, err := TemplateRenderer{}.Render(tmpl, map[string]any{"a": "x", "b": "y"})
	require.NoError(t, err)
	require.Equal(t, "AB", out)
}

func TestTemplateRendererStringifiesValues(t *testing.T) {
	out, err := TemplateRenderer{}.Render("{{n}} {{files}}", map[string]any{
		"n":     3,
		"files": []any{"a.go", "b.go"},
	})
	require.NoError(t, err)
	require.Equal(t, `3 ["a.go","b.go"]`, out)
}

func TestTemplateRendererErrors(t *testing.T) {
	_, err := TemplateRenderer{}.Render("{{#if x}}never closed", nil)
	require.Error(t, err)

	_, err = TemplateRenderer{Strict: true}.Render("Hello {{who}}", nil)
	require.ErrorContains(t, err, "who")

	out, err := TemplateRenderer{}.Render("Hello {{who}}", nil)
	require.NoError(t, err)
	require.Equal(t, "Hello {{who}}", out)
}
