package engine

import (
	"sync"

	"github.com/daoyou-zhang/daoyoucode/internal/core"
)

// SkillStats aggregates executions of one skill.
type SkillStats struct {
	Executions    int64   `json:"executions"`
	Successes     int64   `json:"successes"`
	Failures      int64   `json:"failures"`
	Followups     int64   `json:"followups"`
	TotalTokens   int64   `json:"total_tokens"`
	TotalCost     float64 `json:"total_cost"`
	TotalTime     float64 `json:"total_time"`
	AverageTime   float64 `json:"avg_time"`
	AverageTokens float64 `json:"avg_tokens"`
}

// ModelStats aggregates executions attributed to one model.
type ModelStats struct {
	Executions  int64   `json:"executions"`
	Failures    int64   `json:"failures"`
	TotalTokens int64   `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
	AverageTime float64 `json:"avg_time"`
	totalTime   float64
}

// Stats are running totals since start or the last reset.
type Stats struct {
	TotalExecutions      int64                 `json:"total_executions"`
	SuccessfulExecutions int64                 `json:"successful_executions"`
	FailedExecutions     int64                 `json:"failed_executions"`
	FollowupExecutions   int64                 `json:"followup_executions"`
	TotalTokens          int64                 `json:"total_tokens"`
	TotalCost            float64               `json:"total_cost"`
	TotalTime            float64               `json:"total_time"`
	AverageTime          float64               `json:"avg_time"`
	Skills               map[string]SkillStats `json:"skills"`
	Models               map[string]ModelStats `json:"models"`
}

type statsBook struct {
	mu    sync.Mutex
	stats Stats
}

func newStats() Stats {
	return Stats{Skills: map[string]SkillStats{}, Models: map[string]ModelStats{}}
}

func (b *statsBook) record(rec core.ExecutionRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stats.Skills == nil {
		b.stats = newStats()
	}

	st := &b.stats
	st.TotalExecutions++
	st.TotalTokens += int64(rec.TokensUsed)
	st.TotalCost += rec.Cost
	st.TotalTime += rec.Duration
	st.AverageTime = st.TotalTime / float64(st.TotalExecutions)
	if rec.Success {
		st.SuccessfulExecutions++
	} else {
		st.FailedExecutions++
	}
	if rec.Mode == core.ModeFollowup {
		st.FollowupExecutions++
	}

	sk := st.Skills[rec.Skill]
	sk.Executions++
	if rec.Success {
		sk.Successes++
	} else {
		sk.Failures++
	}
	if rec.Mode == core.ModeFollowup {
		sk.Followups++
	}
	sk.TotalTokens += int64(rec.TokensUsed)
	sk.TotalCost += rec.Cost
	sk.TotalTime += rec.Duration
	sk.AverageTime = sk.TotalTime / float64(sk.Executions)
	sk.AverageTokens = float64(sk.TotalTokens) / float64(sk.Executions)
	st.Skills[rec.Skill] = sk

	model := rec.Model
	if model == "" {
		model = rec.RequestedModel
	}
	if model == "" {
		return
	}
	ms := st.Models[model]
	ms.Executions++
	if !rec.Success {
		ms.Failures++
	}
	ms.TotalTokens += int64(rec.TokensUsed)
	ms.TotalCost += rec.Cost
	ms.totalTime += rec.Duration
	ms.AverageTime = ms.totalTime / float64(ms.Executions)
	st.Models[model] = ms
}

func (b *statsBook) snapshot() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.stats
	out.Skills = make(map[string]SkillStats, len(b.stats.Skills))
	for name, sk := range b.stats.Skills {
		out.Skills[name] = sk
	}
	out.Models = make(map[string]ModelStats, len(b.stats.Models))
	for name, ms := range b.stats.Models {
		out.Models[name] = ms
	}
	return out
}

func (b *statsBook) skill(name string) (SkillStats, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sk, ok := b.stats.Skills[name]
	return sk, ok
}

func (b *statsBook) reset() {
	b.mu.Lock()
	b.stats = newStats()
	b.mu.Unlock()
}

// Aggregate folds persisted records into the same totals the executor keeps
// in memory.
func Aggregate(records []core.ExecutionRecord) Stats {
	book := statsBook{stats: newStats()}
	for _, rec := range records {
		book.record(rec)
	}
	return book.snapshot()
}
