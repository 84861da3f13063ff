package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// defaultRequestTimeout bounds a single brain call. The orchestrator treats
// a timeout the same as any other provider failure.
const defaultRequestTimeout = 60 * time.Second

// AnthropicProvider implements the Provider interface for Claude and
// Anthropic-compatible APIs.
type AnthropicProvider struct {
	client  *anthropic.Client
	model   string
	name    string // provider name ("anthropic" or a compat name)
	timeout time.Duration
}

// NewAnthropic creates a new Anthropic provider with a static API key.
func NewAnthropic(apiKey, model string, timeout time.Duration) *AnthropicProvider {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)

	if model == "" {
		model = "claude-sonnet-4-5"
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &AnthropicProvider{
		client:  &client,
		model:   model,
		timeout: timeout,
	}
}

// NewAnthropicCompat creates an Anthropic-compatible provider with a custom
// base URL, for gateways that expose an Anthropic-format API.
func NewAnthropicCompat(name, baseURL, apiKey, model string, timeout time.Duration) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)

	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &AnthropicProvider{
		client:  &client,
		model:   model,
		name:    name,
		timeout: timeout,
	}
}

func (p *AnthropicProvider) Name() string {
	if p.name != "" {
		return p.name
	}
	return "anthropic"
}

func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return p.complete(ctx, req, nil, nil)
}

// CompleteWithTools sends a completion request with the capability catalog.
// toolMessages contains the multi-turn tool conversation after the initial
// messages. This implements the ToolProvider interface.
func (p *AnthropicProvider) CompleteWithTools(ctx context.Context, req CompletionRequest, tools []ToolDefinition, toolMessages []ToolMessage) (*CompletionResponse, error) {
	return p.complete(ctx, req, tools, toolMessages)
}

func (p *AnthropicProvider) complete(ctx context.Context, req CompletionRequest, tools []ToolDefinition, toolMessages []ToolMessage) (*CompletionResponse, error) {
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case "user":
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	for _, tm := range toolMessages {
		var blocks []anthropic.ContentBlockParamUnion
		for _, b := range tm.Content {
			switch b.Type {
			case "text":
				if b.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				}
			case "tool_use":
				if b.ToolCall == nil {
					continue
				}
				var inputValue any
				if len(b.ToolCall.Input) > 0 {
					if err := json.Unmarshal(b.ToolCall.Input, &inputValue); err != nil {
						inputValue = map[string]any{}
					}
				} else {
					inputValue = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolCall.ID, inputValue, b.ToolCall.Name))
			case "tool_result":
				if b.ToolResult == nil {
					continue
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolResult.ToolCallID, b.ToolResult.Content, b.ToolResult.IsError))
			}
		}

		if len(blocks) == 0 {
			continue
		}

		switch tm.Role {
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		case "user":
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}

	var anthropicTools []anthropic.ToolUnionParam
	for _, t := range tools {
		props := make(map[string]any, len(t.InputSchema))
		for k, v := range t.InputSchema {
			props[k] = v
		}
		anthropicTools = append(anthropicTools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: props},
			},
		})
	}

	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if len(anthropicTools) > 0 {
		params.Tools = anthropicTools
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	// Streaming keeps the connection alive on slow completions; chunks are
	// accumulated and returned as one result.
	stream := p.client.Messages.NewStreaming(ctx, params,
		option.WithRequestTimeout(p.timeout),
	)
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, &ProviderError{
				Message:  "stream accumulate: " + err.Error(),
				Provider: p.Name(),
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, &ProviderError{
			Message:  err.Error(),
			Provider: p.Name(),
		}
	}

	var content string
	var toolCalls []ToolCall
	for _, block := range message.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += v.Text
		case anthropic.ToolUseBlock:
			inputJSON, _ := json.Marshal(v.Input)
			toolCalls = append(toolCalls, ToolCall{
				ID:    v.ID,
				Name:  v.Name,
				Input: inputJSON,
			})
		}
	}

	slog.Debug("brain completion",
		"provider", p.Name(),
		"model", string(message.Model),
		"input_tokens", message.Usage.InputTokens,
		"output_tokens", message.Usage.OutputTokens,
		"stop_reason", string(message.StopReason),
		"tool_calls", len(toolCalls),
	)

	return &CompletionResponse{
		Content:      content,
		Model:        string(message.Model),
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
		StopReason:   string(message.StopReason),
		ToolCalls:    toolCalls,
	}, nil
}
