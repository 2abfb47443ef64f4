package output

import (
	"fmt"
	"strings"
)

func renderMarkdown(report Report) string {
	var sb strings.Builder
	if report.Title != "" {
		sb.WriteString(fmt.Sprintf("## %s\n\n", report.Title))
	}
	if len(report.Tables) == 0 {
		sb.WriteString(emptyText(report))
		sb.WriteString("\n")
		return sb.String()
	}
	for i, t := range report.Tables {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(t.RenderMarkdown())
	}
	sb.WriteString("\n")
	return sb.String()
}
