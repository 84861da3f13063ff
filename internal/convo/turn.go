// Package convo holds per-conversation state: the ordered turn history keyed
// by (user, conversation) and the legacy dialogue context used by the
// fallback pipeline. Both live in a shared cache with an idle TTL; the
// orchestration core keeps no cross-request state in process memory.
package convo

import "encoding/json"

// Role tags a turn variant. The system turn is synthesized fresh on every
// orchestrator pass and is never persisted, so it has no role here.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool_result"
)

// ToolInvocation is a capability request recorded on an assistant turn.
type ToolInvocation struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ToolOutcome is the result of exactly one invocation, correlated by CallID.
type ToolOutcome struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Turn is one message in a conversation's ordered history. Turns are
// immutable once appended; order is the only ordering guarantee.
type Turn struct {
	Role      Role             `json:"role"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []ToolInvocation `json:"tool_calls,omitempty"`
	Result    *ToolOutcome     `json:"result,omitempty"`
}
