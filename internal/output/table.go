package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/daoyou-zhang/daoyoucode/internal/core"
	"github.com/daoyou-zhang/daoyoucode/internal/core/breaker"
	"github.com/daoyou-zhang/daoyoucode/internal/core/engine"
	"github.com/daoyou-zhang/daoyoucode/internal/core/fallback"
	"github.com/daoyou-zhang/daoyoucode/internal/core/ratelimit"
	"github.com/daoyou-zhang/daoyoucode/internal/skill"
)

func newTable(title string, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	if title != "" {
		t.SetTitle(title)
	}
	t.AppendHeader(header)
	return t
}

// ResultReport renders the output keys of one execution and its metadata.
func ResultReport(result *core.ExecutionResult) Report {
	if result == nil {
		return Report{Title: "Result", Empty: "(no result)"}
	}
	out := newTable("Output", table.Row{"Key", "Value"})
	for _, key := range sortedKeys(result.Output) {
		out.AppendRow(table.Row{key, formatValue(result.Output[key])})
	}

	meta := result.Metadata
	served := meta.Model
	if meta.RequestedModel != "" && meta.RequestedModel != meta.Model {
		served = fmt.Sprintf("%s (requested %s)", meta.Model, meta.RequestedModel)
	}
	md := newTable("Execution", table.Row{"Field", "Value"})
	md.AppendRows([]table.Row{
		{"skill", meta.Skill},
		{"mode", string(meta.Mode)},
		{"model", served},
		{"tokens", meta.TokensUsed},
		{"cost", formatCost(meta.Cost)},
		{"latency", formatSeconds(meta.Latency)},
		{"cached", meta.Cached},
	})
	if meta.ExecutionID != "" {
		md.AppendRow(table.Row{"execution_id", meta.ExecutionID})
	}

	return Report{Title: "Result", Tables: []table.Writer{out, md}, Value: result}
}

// StatsReport renders executor totals with per-skill and per-model breakdowns.
func StatsReport(stats engine.Stats) Report {
	totals := newTable("Executions", table.Row{"Total", "Succeeded", "Failed", "Followups", "Tokens", "Cost", "Avg Time"})
	totals.AppendRow(table.Row{
		stats.TotalExecutions,
		stats.SuccessfulExecutions,
		stats.FailedExecutions,
		stats.FollowupExecutions,
		stats.TotalTokens,
		formatCost(stats.TotalCost),
		formatSeconds(stats.AverageTime),
	})
	tables := []table.Writer{totals}

	if len(stats.Skills) > 0 {
		skills := newTable("Skills", table.Row{"Skill", "Runs", "OK", "Failed", "Followups", "Avg Tokens", "Cost", "Avg Time"})
		for _, name := range sortedKeys(stats.Skills) {
			s := stats.Skills[name]
			skills.AppendRow(table.Row{
				name, s.Executions, s.Successes, s.Failures, s.Followups,
				fmt.Sprintf("%.0f", s.AverageTokens), formatCost(s.TotalCost), formatSeconds(s.AverageTime),
			})
		}
		tables = append(tables, skills)
	}

	if len(stats.Models) > 0 {
		models := newTable("Models", table.Row{"Model", "Runs", "Failed", "Tokens", "Cost", "Avg Time"})
		for _, name := range sortedKeys(stats.Models) {
			m := stats.Models[name]
			models.AppendRow(table.Row{
				name, m.Executions, m.Failures, m.TotalTokens, formatCost(m.TotalCost), formatSeconds(m.AverageTime),
			})
		}
		tables = append(tables, models)
	}

	return Report{Title: "Execution statistics", Tables: tables, Value: stats}
}

// SkillStatsReport renders the counters of a single skill.
func SkillStatsReport(name string, s engine.SkillStats) Report {
	t := newTable(name, table.Row{"Runs", "OK", "Failed", "Followups", "Tokens", "Cost", "Avg Time"})
	t.AppendRow(table.Row{
		s.Executions, s.Successes, s.Failures, s.Followups,
		s.TotalTokens, formatCost(s.TotalCost), formatSeconds(s.AverageTime),
	})
	return Report{Title: "Skill statistics", Tables: []table.Writer{t}, Value: s}
}

// SkillsReport lists registered skills.
func SkillsReport(skills []*skill.Skill) Report {
	report := Report{Title: "Skills", Value: skills, Empty: "(no skills registered)"}
	if len(skills) == 0 {
		return report
	}
	t := newTable("", table.Row{"Name", "Model", "Inputs", "Outputs", "Description"})
	for _, sk := range skills {
		if sk == nil {
			continue
		}
		inputs := make([]string, 0, len(sk.Inputs))
		for _, in := range sk.Inputs {
			label := in.Name
			if in.Required {
				label += "*"
			}
			inputs = append(inputs, label)
		}
		outputs := make([]string, 0, len(sk.Outputs))
		for _, o := range sk.Outputs {
			outputs = append(outputs, o.Name)
		}
		t.AppendRow(table.Row{
			sk.Name, sk.LLM.Model, strings.Join(inputs, ", "), strings.Join(outputs, ", "), truncate(sk.Description, 60),
		})
	}
	report.Tables = []table.Writer{t}
	return report
}

// HistoryReport lists persisted execution records, newest first as given.
func HistoryReport(records []core.ExecutionRecord) Report {
	report := Report{Title: "Execution history", Value: records, Empty: "(no executions recorded)"}
	if len(records) == 0 {
		return report
	}
	t := newTable("", table.Row{"Started", "Skill", "Mode", "User", "Model", "Status", "Tokens", "Cost", "Duration"})
	for _, rec := range records {
		model := rec.Model
		if model == "" {
			model = rec.RequestedModel
		} else if rec.RequestedModel != "" && rec.RequestedModel != rec.Model {
			model = rec.Model + " <- " + rec.RequestedModel
		}
		status := "ok"
		if !rec.Success {
			status = "failed: " + truncate(rec.Error, 40)
		} else if rec.Cached {
			status = "ok (cached)"
		}
		t.AppendRow(table.Row{
			rec.StartedAt.UTC().Format(time.RFC3339),
			rec.Skill, string(rec.Mode), dash(rec.UserID), model, status,
			rec.TokensUsed, formatCost(rec.Cost), formatSeconds(rec.Duration),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", fmt.Sprintf("%d records", len(records))})
	report.Tables = []table.Writer{t}
	return report
}

// RateLimitReport renders every configured gate.
func RateLimitReport(stats ratelimit.Stats) Report {
	report := Report{Title: "Rate limits", Value: stats, Empty: "(no rate limits configured)"}
	if stats.Global != nil || len(stats.Users) > 0 {
		buckets := newTable("Token buckets", table.Row{"Gate", "Key", "Capacity", "Refill/s", "Available"})
		if g := stats.Global; g != nil {
			buckets.AppendRow(table.Row{ratelimit.GateGlobal, "-", g.Capacity, fmt.Sprintf("%.2f", g.RefillRate), fmt.Sprintf("%.2f", g.AvailableTokens)})
		}
		for _, user := range sortedKeys(stats.Users) {
			b := stats.Users[user]
			buckets.AppendRow(table.Row{ratelimit.GateUser, user, b.Capacity, fmt.Sprintf("%.2f", b.RefillRate), fmt.Sprintf("%.2f", b.AvailableTokens)})
		}
		report.Tables = append(report.Tables, buckets)
	}
	if len(stats.Models) > 0 {
		windows := newTable("Model windows", table.Row{"Model", "Window", "Max", "In Window"})
		for _, model := range sortedKeys(stats.Models) {
			w := stats.Models[model]
			windows.AppendRow(table.Row{model, w.WindowSize.String(), w.MaxRequests, w.Count})
		}
		report.Tables = append(report.Tables, windows)
	}
	return report
}

// FallbackReport renders configured chains and substitution counters.
func FallbackReport(chains []fallback.Info, stats fallback.Stats) Report {
	value := struct {
		Chains []fallback.Info `json:"chains"`
		Stats  fallback.Stats  `json:"stats"`
	}{chains, stats}
	report := Report{Title: "Fallback chains", Value: value, Empty: "(no fallback chains configured)"}
	if len(chains) > 0 {
		t := newTable("Chains", table.Row{"Model", "Chain"})
		for _, info := range chains {
			t.AppendRow(table.Row{info.Model, strings.Join(info.Chain, " -> ")})
		}
		report.Tables = append(report.Tables, t)
	}
	if stats.TotalCalls > 0 {
		t := newTable("Usage", table.Row{"Calls", "Fallback Used", "Fallback OK", "Fallback Failed"})
		t.AppendRow(table.Row{stats.TotalCalls, stats.FallbackUsed, stats.FallbackSuccess, stats.FallbackFailed})
		report.Tables = append(report.Tables, t)
	}
	return report
}

// BreakerReport renders the state of every breaker seen so far.
func BreakerReport(snapshots []breaker.Snapshot, cfg breaker.Config) Report {
	value := struct {
		Config   breaker.Config     `json:"config"`
		Breakers []breaker.Snapshot `json:"breakers"`
	}{cfg, snapshots}
	settings := newTable("Breaker settings", table.Row{"Failure Threshold", "Cooldown", "Success Threshold", "Half-open Probes"})
	settings.AppendRow(table.Row{cfg.FailureThreshold, cfg.Cooldown.String(), cfg.SuccessThreshold, cfg.HalfOpenProbes})
	report := Report{Title: "Circuit breakers", Value: value, Tables: []table.Writer{settings}}
	if len(snapshots) > 0 {
		t := newTable("Breakers", table.Row{"Model", "State", "Consecutive", "Failures", "Successes", "Rejected", "Last Error"})
		for _, s := range snapshots {
			t.AppendRow(table.Row{
				s.Model, s.State.String(), s.ConsecutiveFailures, s.TotalFailures, s.TotalSuccesses, s.Rejected, truncate(dash(s.LastError), 40),
			})
		}
		report.Tables = append(report.Tables, t)
	}
	return report
}

// Merge concatenates reports under one title. The JSON value becomes a map
// keyed by each part's key.
func Merge(title string, parts map[string]Report, order ...string) Report {
	merged := Report{Title: title}
	value := make(map[string]any, len(parts))
	for _, key := range order {
		part, ok := parts[key]
		if !ok {
			continue
		}
		value[key] = part.Value
		merged.Tables = append(merged.Tables, part.Tables...)
	}
	merged.Value = value
	return merged
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "-"
	case string:
		return truncate(v, 120)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, formatValue(item))
		}
		return truncate(strings.Join(parts, ", "), 120)
	default:
		return truncate(fmt.Sprint(v), 120)
	}
}

func formatCost(cost float64) string {
	return fmt.Sprintf("$%.4f", cost)
}

func formatSeconds(seconds float64) string {
	return fmt.Sprintf("%.2fs", seconds)
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(strings.ReplaceAll(value, "\n", " "))
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-3]) + "..."
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
