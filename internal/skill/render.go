package skill

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// TemplateRenderer substitutes {{var}} placeholders and resolves
// {{#if var}}...{{else}}...{{/if}} blocks.
type TemplateRenderer struct {
	// Strict fails when a placeholder is left unresolved.
	Strict bool
}

// Render applies vars to template. Conditionals are resolved before substitution.
func (r TemplateRenderer) Render(template string, vars map[string]any) (string, error) {
	values := stringifyVars(vars)
	result, err := applyConditionals(template, values)
	if err != nil {
		return "", err
	}
	result = applyVars(result, values)

	if r.Strict {
		if missing := unresolved(result); len(missing) > 0 {
			return "", fmt.Errorf("unresolved template variables: %s", strings.Join(missing, ", "))
		}
	}
	return result, nil
}

func stringifyVars(vars map[string]any) map[string]string {
	out := make(map[string]string, len(vars))
	for key, value := range vars {
		out[key] = stringify(value)
	}
	return out
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case map[string]any, []any, []string:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	default:
		return fmt.Sprint(v)
	}
}

func applyVars(template string, vars map[string]string) string {
	result := template
	for key, value := range vars {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}

// applyConditionals handles {{#if var}}content{{else}}fallback{{/if}} blocks.
// If the variable exists and is non-empty, the content is included; otherwise the fallback is used.
func applyConditionals(template string, vars map[string]string) (string, error) {
	result := template
	for {
		start := strings.Index(result, "{{#if")
		if start == -1 {
			return result, nil
		}
		tagEnd := strings.Index(result[start:], "}}")
		if tagEnd == -1 {
			return "", fmt.Errorf("unterminated {{#if}} tag at offset %d", start)
		}
		tagEnd += start

		varName := strings.TrimSpace(result[start+len("{{#if") : tagEnd])
		blockStart := tagEnd + 2

		elseStart, elseEnd, endStart, endEnd := findConditionalBlock(result, blockStart)
		if endStart == -1 {
			return "", fmt.Errorf("missing {{/if}} for {{#if %s}}", varName)
		}

		ifContent := result[blockStart:endStart]
		elseContent := ""
		if elseStart != -1 {
			ifContent = result[blockStart:elseStart]
			elseContent = result[elseEnd:endStart]
		}

		value, exists := vars[varName]
		replacement := elseContent
		if exists && strings.TrimSpace(value) != "" {
			replacement = ifContent
		}

		result = result[:start] + replacement + result[endEnd:]
	}
}

func findConditionalBlock(input string, start int) (int, int, int, int) {
	depth := 0
	elseStart := -1
	elseEnd := -1

	pos := start
	for {
		openIdx := strings.Index(input[pos:], "{{")
		if openIdx == -1 {
			return -1, -1, -1, -1
		}
		openIdx += pos

		closeIdx := strings.Index(input[openIdx:], "}}")
		if closeIdx == -1 {
			return -1, -1, -1, -1
		}
		closeIdx += openIdx

		tag := strings.TrimSpace(input[openIdx+2 : closeIdx])
		switch {
		case tag == "#if" || strings.HasPrefix(tag, "#if "):
			depth++
		case tag == "/if":
			if depth == 0 {
				return elseStart, elseEnd, openIdx, closeIdx + 2
			}
			depth--
		case tag == "else" && depth == 0 && elseStart == -1:
			elseStart = openIdx
			elseEnd = closeIdx + 2
		}

		pos = closeIdx + 2
	}
}

func unresolved(text string) []string {
	seen := map[string]bool{}
	pos := 0
	for {
		open := strings.Index(text[pos:], "{{")
		if open == -1 {
			break
		}
		open += pos
		closeIdx := strings.Index(text[open:], "}}")
		if closeIdx == -1 {
			break
		}
		closeIdx += open
		name := strings.TrimSpace(text[open+2 : closeIdx])
		if name != "" {
			seen[name] = true
		}
		pos = closeIdx + 2
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
