package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/daoyou-zhang/daoyoucode/internal/ailink/driver"
)

// DefaultMaxTokens is sent when a request carries no limit; the Messages API requires one.
const DefaultMaxTokens = 1024

// Client implements the Anthropic Messages driver on the official SDK.
type Client struct {
	client  sdk.Client
	baseURL string
	Timeout time.Duration
}

// Options configures the SDK client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	MaxRetries int
}

// NewClient returns a driver bound to one API key.
func NewClient(opts Options) *Client {
	requestOpts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(opts.APIKey)),
		option.WithMaxRetries(opts.MaxRetries),
	}
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(baseURL))
	}
	if opts.HTTPClient != nil {
		requestOpts = append(requestOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	return &Client{
		client:  sdk.NewClient(requestOpts...),
		baseURL: baseURL,
	}
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	return "anthropic"
}

// Capabilities describes supported features.
func (c *Client) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		SupportsJSONMode:  false,
		SupportsSystem:    true,
		SupportsStreaming: false,
	}
}

// Complete sends a Messages API request.
func (c *Client) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if c == nil {
		return nil, fmt.Errorf("anthropic client not configured")
	}
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	if _, bounded := ctx.Deadline(); c.Timeout > 0 && !bounded {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	start := time.Now()
	msg, err := c.client.Messages.New(ctx, params)
	trace := driver.TraceEntry{
		Driver:     c.Name(),
		Endpoint:   strings.TrimRight(c.baseURL, "/") + "/v1/messages",
		Method:     http.MethodPost,
		Model:      req.Model,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		trace.Error = err.Error()
		driver.Trace(trace)
		return nil, toProviderError(err)
	}
	trace.StatusCode = http.StatusOK
	if raw := msg.RawJSON(); raw != "" {
		trace.Response = []byte(raw)
	}
	driver.Trace(trace)

	return toDriverResponse(msg), nil
}

func buildParams(req *driver.Request) (sdk.MessageNewParams, error) {
	if req == nil {
		return sdk.MessageNewParams{}, fmt.Errorf("request is required")
	}
	if strings.TrimSpace(req.Model) == "" {
		return sdk.MessageNewParams{}, fmt.Errorf("model is required")
	}
	if len(req.Messages) == 0 {
		return sdk.MessageNewParams{}, fmt.Errorf("messages are required")
	}

	maxTokens := int64(DefaultMaxTokens)
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = int64(*req.MaxTokens)
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  convertMessages(req.Messages),
	}

	system := strings.TrimSpace(req.System)
	if req.JSONMode {
		// No native JSON mode; ask for it in the system prompt.
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object and nothing else.")
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	return params, nil
}

func convertMessages(messages []driver.Message) []sdk.MessageParam {
	result := make([]sdk.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case driver.RoleAssistant:
			result = append(result, sdk.NewAssistantMessage(sdk.NewTextBlock(msg.Content)))
		case driver.RoleSystem:
			// System turns are carried in params.System.
		default:
			result = append(result, sdk.NewUserMessage(sdk.NewTextBlock(msg.Content)))
		}
	}
	return result
}

func toDriverResponse(msg *sdk.Message) *driver.Response {
	var text strings.Builder
	for _, block := range msg.Content {
		if b, ok := block.AsAny().(sdk.TextBlock); ok {
			text.WriteString(b.Text)
		}
	}

	input := int(msg.Usage.InputTokens)
	output := int(msg.Usage.OutputTokens)
	return &driver.Response{
		Text:         text.String(),
		Model:        string(msg.Model),
		FinishReason: string(msg.StopReason),
		Usage: &driver.Usage{
			PromptTokens:     input,
			CompletionTokens: output,
			TotalTokens:      input + output,
		},
	}
}

func toProviderError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		message := strings.TrimSpace(apiErr.RawJSON())
		if message == "" {
			message = apiErr.Error()
		}
		return &driver.ProviderError{
			Provider:    "anthropic",
			StatusCode:  apiErr.StatusCode,
			Message:     message,
			RawResponse: []byte(apiErr.RawJSON()),
		}
	}
	return fmt.Errorf("anthropic request failed: %w", err)
}
