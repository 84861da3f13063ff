// Package agent implements the orchestrator: the bounded loop that turns a
// user utterance plus stored history into capability invocations and a final
// natural-language answer.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/selam-labs/selam/internal/capability"
	"github.com/selam-labs/selam/internal/convo"
	"github.com/selam-labs/selam/internal/dispatch"
	"github.com/selam-labs/selam/internal/llm"
	"github.com/selam-labs/selam/internal/metrics"
	"github.com/selam-labs/selam/internal/platform"
)

const (
	// DefaultMaxTurns bounds reasoning-brain calls per request. An
	// unbounded loop risks runaway cost and latency when the brain keeps
	// requesting tools; the ceiling keeps worst-case latency predictable.
	DefaultMaxTurns = 6

	// exhaustedMessage is the graceful answer when the ceiling is hit
	// without a terminal response.
	exhaustedMessage = "I've completed the requested actions. Is there anything else I can help you with?"
)

// Request is one inbound utterance to orchestrate.
type Request struct {
	Caller         platform.Caller
	ConversationID string
	Text           string
	// Context is optional page/entity context from the front end, folded
	// into the system turn.
	Context string
}

// Result is the orchestrator's answer for one request.
type Result struct {
	Text      string
	Data      map[string]any
	ToolsUsed []string
}

// Orchestrator runs the bounded agent loop. Each pass is one sequential
// unit of work: tool calls within a brain response execute in the order
// returned, since later calls may depend on earlier ones.
type Orchestrator struct {
	provider   llm.ToolProvider
	dispatcher *dispatch.Dispatcher
	store      convo.Store
	maxTurns   int
	maxTokens  int
	temp       float64
}

// Config holds orchestrator tuning.
type Config struct {
	MaxTurns    int
	MaxTokens   int
	Temperature float64
}

// New creates an orchestrator.
func New(provider llm.ToolProvider, dispatcher *dispatch.Dispatcher, store convo.Store, cfg Config) *Orchestrator {
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Orchestrator{
		provider:   provider,
		dispatcher: dispatcher,
		store:      store,
		maxTurns:   maxTurns,
		maxTokens:  maxTokens,
		temp:       cfg.Temperature,
	}
}

// Run executes one orchestrator pass. An error means the loop itself could
// not run (brain unavailable, etc.) and the caller must escalate to the
// deterministic fallback: the user still gets an answer either way.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	history := o.store.Load(ctx, req.Caller.UserID, req.ConversationID)

	messages := historyToMessages(history)
	messages = append(messages, llm.Message{Role: "user", Content: req.Text})

	creq := llm.CompletionRequest{
		System:      systemPrompt(req),
		Messages:    messages,
		MaxTokens:   o.maxTokens,
		Temperature: o.temp,
	}

	tools := capability.Definitions()

	newTurns := []convo.Turn{{Role: convo.RoleUser, Content: req.Text}}
	result := &Result{Data: make(map[string]any)}
	var toolMessages []llm.ToolMessage

	defer func() {
		// Persist whatever was exchanged, minus the ephemeral system turn.
		// Two concurrent requests on the same conversation race; last save
		// wins: conversations are advisory memory, not a ledger.
		o.store.Save(ctx, req.Caller.UserID, req.ConversationID, append(history, newTurns...))
	}()

	for turn := 0; turn < o.maxTurns; turn++ {
		start := time.Now()
		resp, err := o.provider.CompleteWithTools(ctx, creq, tools, toolMessages)
		metrics.BrainLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, fmt.Errorf("brain turn %d: %w", turn+1, err)
		}

		if resp.StopReason != "tool_use" || len(resp.ToolCalls) == 0 {
			result.Text = resp.Content
			if result.Text == "" {
				result.Text = exhaustedMessage
			}
			newTurns = append(newTurns, convo.Turn{Role: convo.RoleAssistant, Content: result.Text})
			return result, nil
		}

		// Record the assistant turn with its requested invocations.
		assistantTurn := convo.Turn{Role: convo.RoleAssistant, Content: resp.Content}
		assistantBlocks := make([]llm.ContentBlock, 0, len(resp.ToolCalls)+1)
		if resp.Content != "" {
			assistantBlocks = append(assistantBlocks, llm.ContentBlock{Type: "text", Text: resp.Content})
		}
		for _, tc := range resp.ToolCalls {
			copyCall := tc
			assistantBlocks = append(assistantBlocks, llm.ContentBlock{Type: "tool_use", ToolCall: &copyCall})
			assistantTurn.ToolCalls = append(assistantTurn.ToolCalls, convo.ToolInvocation{
				ID: tc.ID, Name: tc.Name, Args: tc.Input,
			})
		}
		toolMessages = append(toolMessages, llm.ToolMessage{Role: "assistant", Content: assistantBlocks})
		newTurns = append(newTurns, assistantTurn)

		// Execute in the order returned.
		resultBlocks := make([]llm.ContentBlock, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			tr := o.invoke(ctx, tc, req.Caller, result)
			copyResult := tr
			resultBlocks = append(resultBlocks, llm.ContentBlock{Type: "tool_result", ToolResult: &copyResult})
			newTurns = append(newTurns, convo.Turn{
				Role: convo.RoleTool,
				Result: &convo.ToolOutcome{
					CallID:  tr.ToolCallID,
					Content: tr.Content,
					IsError: tr.IsError,
				},
			})
		}
		toolMessages = append(toolMessages, llm.ToolMessage{Role: "user", Content: resultBlocks})
	}

	slog.Warn("orchestrator hit turn ceiling",
		"max_turns", o.maxTurns,
		"user", req.Caller.UserID,
		"tools_used", result.ToolsUsed,
	)
	result.Text = exhaustedMessage
	newTurns = append(newTurns, convo.Turn{Role: convo.RoleAssistant, Content: result.Text})
	return result, nil
}

// invoke validates one brain-requested invocation and dispatches it.
// Validation failures and handler errors both come back as error tool
// results: the brain gets to retry, apologize, or pick another capability.
func (o *Orchestrator) invoke(ctx context.Context, tc llm.ToolCall, caller platform.Caller, result *Result) llm.ToolResult {
	tr := llm.ToolResult{ToolCallID: tc.ID}

	params, err := capability.Decode(tc.Name, tc.Input)
	if err != nil {
		tr.IsError = true
		tr.Content = err.Error()
		metrics.ToolCalls.WithLabelValues(tc.Name, "invalid").Inc()
		slog.Info("capability arguments rejected", "capability", tc.Name, "error", err)
		return tr
	}

	res := o.dispatcher.Execute(ctx, params, caller)
	result.ToolsUsed = append(result.ToolsUsed, tc.Name)
	if !res.OK {
		tr.IsError = true
		tr.Content = res.Err
		return tr
	}
	tr.Content = res.Content
	if res.Data != nil {
		result.Data[tc.Name] = res.Data
	}
	return tr
}

// historyToMessages replays stored user/assistant text turns to the brain.
// Prior tool exchanges stay in the store for the record but are not
// replayed: their outcomes are already reflected in the assistant text.
func historyToMessages(history []convo.Turn) []llm.Message {
	var msgs []llm.Message
	for _, t := range history {
		if t.Content == "" {
			continue
		}
		switch t.Role {
		case convo.RoleUser:
			msgs = append(msgs, llm.Message{Role: "user", Content: t.Content})
		case convo.RoleAssistant:
			msgs = append(msgs, llm.Message{Role: "assistant", Content: t.Content})
		}
	}
	// Brains require the history to open with a user message.
	for len(msgs) > 0 && msgs[0].Role != "user" {
		msgs = msgs[1:]
	}
	return msgs
}
