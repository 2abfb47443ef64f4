// Package skill loads skill definitions and renders their prompt templates.
package skill

import (
	"fmt"
	"strings"
)

// PostprocessValidateOutput coerces enum outputs to a declared value.
const PostprocessValidateOutput = "validate_output"

// Defaults applied when a skill file omits llm settings.
const (
	DefaultModel       = "claude-3-5-sonnet"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
)

// LLMConfig selects the model and sampling parameters for a skill.
type LLMConfig struct {
	Model       string  `yaml:"model" json:"model"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
}

// Input declares one context key the prompt consumes.
type Input struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Default     any    `yaml:"default,omitempty" json:"default,omitempty"`
}

// Output declares one key expected in the parsed response.
type Output struct {
	Name        string   `yaml:"name" json:"name"`
	Type        string   `yaml:"type,omitempty" json:"type,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Enum        []string `yaml:"enum,omitempty" json:"enum,omitempty"`
}

// Skill is a named prompt with its model settings and input/output schema.
type Skill struct {
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string    `yaml:"version,omitempty" json:"version,omitempty"`
	System      string    `yaml:"system,omitempty" json:"system,omitempty"`
	Prompt      string    `yaml:"prompt,omitempty" json:"prompt"`
	LLM         LLMConfig `yaml:"llm" json:"llm"`
	Inputs      []Input   `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs     []Output  `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Postprocess []string  `yaml:"postprocess,omitempty" json:"postprocess,omitempty"`

	Source string `yaml:"-" json:"source,omitempty"`
}

// RequiredInputs lists inputs marked required, in declaration order.
func (s *Skill) RequiredInputs() []string {
	if s == nil {
		return nil
	}
	var names []string
	for _, input := range s.Inputs {
		if input.Required {
			names = append(names, input.Name)
		}
	}
	return names
}

// Validate checks the definition is usable.
func (s *Skill) Validate() error {
	if s == nil {
		return fmt.Errorf("skill is nil")
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("skill name is required")
	}
	if strings.TrimSpace(s.Prompt) == "" {
		return fmt.Errorf("skill %s: prompt is required", s.Name)
	}
	if strings.TrimSpace(s.LLM.Model) == "" {
		return fmt.Errorf("skill %s: llm.model is required", s.Name)
	}
	// Followups halve the budget, which must leave at least one token.
	if s.LLM.MaxTokens < 2 {
		return fmt.Errorf("skill %s: llm.max_tokens must be at least 2", s.Name)
	}
	if s.LLM.Temperature < 0 || s.LLM.Temperature > 2 {
		return fmt.Errorf("skill %s: llm.temperature must be within [0, 2]", s.Name)
	}
	seen := map[string]bool{}
	for _, input := range s.Inputs {
		name := strings.TrimSpace(input.Name)
		if name == "" {
			return fmt.Errorf("skill %s: input name is required", s.Name)
		}
		if seen[name] {
			return fmt.Errorf("skill %s: duplicate input %q", s.Name, name)
		}
		seen[name] = true
	}
	for _, output := range s.Outputs {
		if strings.TrimSpace(output.Name) == "" {
			return fmt.Errorf("skill %s: output name is required", s.Name)
		}
	}
	return nil
}

// HasPostprocess reports whether step is declared.
func (s *Skill) HasPostprocess(step string) bool {
	if s == nil {
		return false
	}
	for _, declared := range s.Postprocess {
		if strings.EqualFold(strings.TrimSpace(declared), step) {
			return true
		}
	}
	return false
}
