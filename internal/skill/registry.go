package skill

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound reports a lookup of an unknown skill name.
var ErrNotFound = errors.New("skill not found")

// Registry provides access to skill definitions.
type Registry interface {
	Get(name string) (*Skill, error)
	List() []*Skill
}

// InMemoryRegistry stores skills by name.
type InMemoryRegistry struct {
	skills map[string]*Skill
}

// NewRegistry builds a registry from skills.
func NewRegistry(skills []*Skill) (*InMemoryRegistry, error) {
	reg := &InMemoryRegistry{skills: make(map[string]*Skill)}
	for _, sk := range skills {
		if sk == nil {
			continue
		}
		name := strings.TrimSpace(sk.Name)
		if name == "" {
			return nil, fmt.Errorf("skill missing name")
		}
		if _, ok := reg.skills[name]; ok {
			return nil, fmt.Errorf("duplicate skill name: %s", name)
		}
		reg.skills[name] = sk
	}
	return reg, nil
}

// Merge returns a registry with overrides replacing base skills of the same name.
func Merge(base []*Skill, overrides []*Skill) (*InMemoryRegistry, error) {
	byName := make(map[string]*Skill, len(base)+len(overrides))
	for _, sk := range base {
		if sk != nil {
			byName[strings.TrimSpace(sk.Name)] = sk
		}
	}
	for _, sk := range overrides {
		if sk != nil {
			byName[strings.TrimSpace(sk.Name)] = sk
		}
	}
	merged := make([]*Skill, 0, len(byName))
	for _, sk := range byName {
		merged = append(merged, sk)
	}
	return NewRegistry(merged)
}

// Get returns the skill with the given name.
func (r *InMemoryRegistry) Get(name string) (*Skill, error) {
	if r == nil {
		return nil, fmt.Errorf("skill registry not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("skill name is required")
	}
	sk, ok := r.skills[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return sk, nil
}

// List returns skills sorted by name.
func (r *InMemoryRegistry) List() []*Skill {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.skills))
	for name := range r.skills {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	result := make([]*Skill, 0, len(keys))
	for _, name := range keys {
		result = append(result, r.skills[name])
	}
	return result
}
