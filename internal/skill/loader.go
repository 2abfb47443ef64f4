package skill

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load parses a skill from YAML or Markdown with YAML frontmatter. A Markdown
// body becomes the prompt when the frontmatter has none.
func Load(source string, data []byte) (*Skill, error) {
	sk := &Skill{LLM: LLMConfig{
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}}

	body, err := parseYAMLWithFrontmatter(data, sk)
	if err != nil {
		return nil, fmt.Errorf("parse skill %s: %w", source, err)
	}
	if strings.TrimSpace(sk.Prompt) == "" {
		sk.Prompt = strings.TrimSpace(body)
	}
	if strings.TrimSpace(sk.Name) == "" {
		base := filepath.Base(source)
		sk.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	sk.Source = source

	if err := sk.Validate(); err != nil {
		return nil, fmt.Errorf("validate skill %s: %w", source, err)
	}
	return sk, nil
}

// LoadFromDir reads every .md, .yaml and .yml skill in dir.
func LoadFromDir(dir string) ([]*Skill, error) {
	var paths []string
	for _, pattern := range []string{"*.md", "*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("scan skills: %w", err)
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	results := make([]*Skill, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path) // #nosec G304 -- Skill path is user-provided
		if err != nil {
			return nil, fmt.Errorf("read skill %s: %w", path, err)
		}
		sk, err := Load(path, data)
		if err != nil {
			return nil, err
		}
		results = append(results, sk)
	}
	return results, nil
}

func parseYAMLWithFrontmatter(data []byte, out *Skill) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("empty skill")
	}

	lines := bufio.NewScanner(bytes.NewReader(trimmed))
	lines.Split(bufio.ScanLines)

	var (
		frontmatter []string
		body        []string
		inFront     bool
		headerSeen  bool
	)

	for lines.Scan() {
		line := lines.Text()
		switch {
		case !headerSeen && strings.TrimSpace(line) == "---":
			headerSeen = true
			inFront = true
		case headerSeen && inFront && strings.TrimSpace(line) == "---":
			inFront = false
		default:
			if inFront {
				frontmatter = append(frontmatter, line)
			} else {
				body = append(body, line)
			}
		}
	}
	if err := lines.Err(); err != nil {
		return "", err
	}

	if headerSeen {
		if err := yaml.Unmarshal([]byte(strings.Join(frontmatter, "\n")), out); err != nil {
			return "", fmt.Errorf("invalid frontmatter: %w", err)
		}
		return strings.Join(body, "\n"), nil
	}
	if err := yaml.Unmarshal(trimmed, out); err != nil {
		return "", fmt.Errorf("invalid yaml: %w", err)
	}
	return "", nil
}
