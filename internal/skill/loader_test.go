package skill

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	skills, err := LoadDefaults()
	require.NoError(t, err)
	require.NotEmpty(t, skills)

	reg, err := NewRegistry(skills)
	require.NoError(t, err)

	review, err := reg.Get("code-review")
	require.NoError(t, err)
	require.Equal(t, []string{"code"}, review.RequiredInputs())
	require.True(t, review.HasPostprocess(PostprocessValidateOutput))
	require.Equal(t, []string{"approve", "request_changes", "comment"}, review.Outputs[0].Enum)
	require.Contains(t, review.Prompt, "{{code}}")
}

func TestLoadAppliesLLMDefaults(t *testing.T) {
	sk, err := Load("greet.md", []byte("---\nname: greet\nllm:\n  model: gpt-4o\n---\nSay hi to {{name}}"))
	require.NoError(t, err)
	require.Equal(t, "gpt-4o", sk.LLM.Model)
	require.Equal(t, DefaultTemperature, sk.LLM.Temperature)
	require.Equal(t, DefaultMaxTokens, sk.LLM.MaxTokens)
	require.Equal(t, "Say hi to {{name}}", sk.Prompt)
}

func TestLoadPlainYAMLAndNameFromFile(t *testing.T) {
	sk, err := Load("/skills/summarize.yaml", []byte("prompt: Summarize {{text}}\nllm:\n  temperature: 0\n"))
	require.NoError(t, err)
	require.Equal(t, "summarize", sk.Name)
	require.Equal(t, DefaultModel, sk.LLM.Model)
	require.Zero(t, sk.LLM.Temperature)
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load("empty.md", []byte("  "))
	require.Error(t, err)

	_, err = Load("noprompt.yaml", []byte("name: x\n"))
	require.ErrorContains(t, err, "prompt is required")

	_, err = Load("dup.yaml", []byte("name: x\nprompt: p\ninputs:\n  - name: a\n  - name: a\n"))
	require.ErrorContains(t, err, "duplicate input")

	_, err = Load("tiny.yaml", []byte("name: x\nprompt: p\nllm:\n  max_tokens: 1\n"))
	require.ErrorContains(t, err, "max_tokens must be at least 2")
}

func TestLoadRegistryOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	custom := "---\nname: code-review\nllm:\n  model: gpt-4o-mini\n---\nShort review of {{code}}"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "review.md"), []byte(custom), 0o600))
	extra := "name: translate\nprompt: Translate {{text}}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "translate.yaml"), []byte(extra), 0o600))

	reg, err := LoadRegistry(dir)
	require.NoError(t, err)

	review, err := reg.Get("code-review")
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", review.LLM.Model)

	_, err = reg.Get("translate")
	require.NoError(t, err)
	_, err = reg.Get("commit-message")
	require.NoError(t, err)

	names := make([]string, 0)
	for _, sk := range reg.List() {
		names = append(names, sk.Name)
	}
	require.IsIncreasing(t, names)
}

func TestRegistryErrors(t *testing.T) {
	_, err := NewRegistry([]*Skill{{Name: "a"}, {Name: "a"}})
	require.ErrorContains(t, err, "duplicate")

	reg, err := NewRegistry(nil)
	require.NoError(t, err)
	_, err = reg.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = reg.Get(" ")
	require.Error(t, err)
}
