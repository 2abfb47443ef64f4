// Package output renders CLI reports as tables, markdown or JSON.
package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// Report is a set of tables describing Value. JSON output marshals Value
// directly; the other formats render the tables in order.
type Report struct {
	Title  string
	Tables []table.Writer
	Value  any
	// Empty is printed instead of tables when there are none.
	Empty string
}

// Render renders a report in the requested format.
func Render(format Format, report Report) (string, error) {
	switch format {
	case FormatJSON:
		return renderJSON(report.Value)
	case FormatMarkdown:
		return renderMarkdown(report), nil
	default:
		return renderTables(report), nil
	}
}

func renderTables(report Report) string {
	if len(report.Tables) == 0 {
		return emptyText(report)
	}
	rendered := make([]string, 0, len(report.Tables))
	for _, t := range report.Tables {
		rendered = append(rendered, t.Render())
	}
	return strings.Join(rendered, "\n\n")
}

func emptyText(report Report) string {
	if report.Empty != "" {
		return report.Empty
	}
	return "(nothing to show)"
}
