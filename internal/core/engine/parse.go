package engine

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/daoyou-zhang/daoyoucode/internal/skill"
)

// ResponseKey holds raw text when a reply is not a JSON object.
const ResponseKey = "response"

// ParseOutput decodes a JSON object reply, unwrapping a fenced code block if
// present. Anything else is returned as {"response": content}.
func ParseOutput(content string) map[string]any {
	candidate := unwrapFence(strings.TrimSpace(content))
	if candidate != "" && gjson.Valid(candidate) {
		parsed := gjson.Parse(candidate)
		if parsed.IsObject() {
			if out, ok := parsed.Value().(map[string]any); ok {
				return out
			}
		}
	}
	return map[string]any{ResponseKey: content}
}

func unwrapFence(text string) string {
	start := strings.Index(text, "```")
	if start == -1 {
		return text
	}
	rest := text[start+3:]
	newline := strings.IndexByte(rest, '\n')
	if newline == -1 {
		return text
	}
	lang := strings.ToLower(strings.TrimSpace(rest[:newline]))
	if lang != "" && lang != "json" {
		return text
	}
	body := rest[newline+1:]
	end := strings.Index(body, "```")
	if end == -1 {
		return text
	}
	return strings.TrimSpace(body[:end])
}

// Coercion records one enum value replaced by validate_output.
type Coercion struct {
	Output string
	From   any
	To     string
}

// ValidateOutput replaces enum outputs holding an undeclared value with the
// first declared value. Missing outputs are left alone.
func ValidateOutput(sk *skill.Skill, output map[string]any) []Coercion {
	if sk == nil || output == nil {
		return nil
	}
	var coerced []Coercion
	for _, declared := range sk.Outputs {
		if len(declared.Enum) == 0 {
			continue
		}
		value, ok := output[declared.Name]
		if !ok {
			continue
		}
		if enumContains(declared.Enum, value) {
			continue
		}
		output[declared.Name] = declared.Enum[0]
		coerced = append(coerced, Coercion{Output: declared.Name, From: value, To: declared.Enum[0]})
	}
	return coerced
}

func enumContains(allowed []string, value any) bool {
	var text string
	switch v := value.(type) {
	case string:
		text = v
	case nil:
		return false
	default:
		text = fmt.Sprint(v)
	}
	for _, candidate := range allowed {
		if candidate == text {
			return true
		}
	}
	return false
}
