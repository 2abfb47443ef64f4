package skill

import (
	"embed"
	"fmt"
)

//go:embed skills/*.md
var defaultSkillsFS embed.FS

// LoadDefaults loads the embedded skill set.
func LoadDefaults() ([]*Skill, error) {
	entries, err := defaultSkillsFS.ReadDir("skills")
	if err != nil {
		return nil, fmt.Errorf("read embedded skills: %w", err)
	}
	results := make([]*Skill, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := defaultSkillsFS.ReadFile("skills/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read embedded skill %s: %w", entry.Name(), err)
		}
		sk, err := Load(entry.Name(), data)
		if err != nil {
			return nil, err
		}
		results = append(results, sk)
	}
	return results, nil
}

// DefaultRegistry builds a registry from embedded skills.
func DefaultRegistry() (*InMemoryRegistry, error) {
	skills, err := LoadDefaults()
	if err != nil {
		return nil, err
	}
	return NewRegistry(skills)
}

// LoadRegistry returns the embedded skills overlaid with any found in dir.
func LoadRegistry(dir string) (*InMemoryRegistry, error) {
	defaults, err := LoadDefaults()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return NewRegistry(defaults)
	}
	custom, err := LoadFromDir(dir)
	if err != nil {
		return nil, err
	}
	return Merge(defaults, custom)
}
