package core

import (
	"context"
	"encoding/json"
	"time"
)

// Mode identifies how a skill was executed.
type Mode string

const (
	ModeFull     Mode = "full"
	ModeFollowup Mode = "followup"
)

// ChatRequest is the provider-agnostic request issued for one candidate model.
type ChatRequest struct {
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Skill       string  `json:"skill,omitempty"`
	UserID      string  `json:"user_id,omitempty"`
	// JSONMode asks the provider for a JSON object reply.
	JSONMode bool `json:"json_mode,omitempty"`
}

// Response is a provider reply with its accounting.
type Response struct {
	Content    string        `json:"content"`
	Model      string        `json:"model,omitempty"`
	TokensUsed int           `json:"tokens_used"`
	Cost       float64       `json:"cost"`
	Latency    time.Duration `json:"latency"`
	Cached     bool          `json:"cached,omitempty"`
}

// Metadata describes how an execution was served.
type Metadata struct {
	ExecutionID    string  `json:"execution_id,omitempty"`
	Skill          string  `json:"skill"`
	Model          string  `json:"model"`
	RequestedModel string  `json:"requested_model,omitempty"`
	TokensUsed     int     `json:"tokens_used"`
	Cost           float64 `json:"cost"`
	Latency        float64 `json:"latency"`
	Mode           Mode    `json:"mode"`
	Cached         bool    `json:"cached,omitempty"`
}

// ExecutionResult is the parsed skill output plus its metadata.
//
// It marshals as a flat object with the metadata under "_metadata".
type ExecutionResult struct {
	Output   map[string]any
	Metadata Metadata
}

// MetadataKey is the reserved output key holding execution metadata.
const MetadataKey = "_metadata"

// MarshalJSON flattens the output map and adds the metadata key.
func (r ExecutionResult) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Output)+1)
	for key, value := range r.Output {
		flat[key] = value
	}
	flat[MetadataKey] = r.Metadata
	return json.Marshal(flat)
}

// UnmarshalJSON reverses MarshalJSON.
func (r *ExecutionResult) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Output = make(map[string]any, len(raw))
	for key, value := range raw {
		if key == MetadataKey {
			if err := json.Unmarshal(value, &r.Metadata); err != nil {
				return err
			}
			continue
		}
		var decoded any
		if err := json.Unmarshal(value, &decoded); err != nil {
			return err
		}
		r.Output[key] = decoded
	}
	return nil
}

// ExecutionRecord is a persisted summary of a finished execution.
type ExecutionRecord struct {
	ID             string    `json:"id"`
	Skill          string    `json:"skill"`
	Mode           Mode      `json:"mode"`
	UserID         string    `json:"user_id,omitempty"`
	RequestedModel string    `json:"requested_model"`
	Model          string    `json:"model,omitempty"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	TokensUsed     int       `json:"tokens_used"`
	Cost           float64   `json:"cost"`
	Cached         bool      `json:"cached,omitempty"`
	Duration       float64   `json:"duration"`
	StartedAt      time.Time `json:"started_at"`
}

// ProviderCall performs one provider request for the given model.
type ProviderCall func(ctx context.Context, model string) (Response, error)
