package agent

import (
	"fmt"
	"strings"
)

// basePrompt primes the brain for donation-platform assistance over chat
// and voice front ends.
const basePrompt = `You are Selam, the assistant for the Tesfa donation platform.

Behavioral rules:
- Be concise and conversational — replies are read aloud as well as shown as text.
- No markdown headers, no code fences. Plain short sentences.
- Use the provided tools for campaign data, donations and account actions. NEVER invent campaign names, ids, or amounts.
- When a tool returns an error, explain the problem politely and suggest what to try instead.
- Confirm amounts and campaign names back to the user before and after a donation.
- Answer in the user's language.`

// systemPrompt synthesizes the ephemeral system turn from caller identity,
// role, language, and optional page/entity context. Built fresh on every
// pass, never persisted.
func systemPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	b.WriteString("\n\nCaller:\n")
	fmt.Fprintf(&b, "- user id: %s\n", req.Caller.UserID)
	if req.Caller.Role != "" {
		fmt.Fprintf(&b, "- role: %s\n", req.Caller.Role)
	}
	if req.Caller.Language != "" {
		fmt.Fprintf(&b, "- preferred language: %s\n", req.Caller.Language)
	}
	if req.Context != "" {
		fmt.Fprintf(&b, "- currently viewing: %s\n", req.Context)
	}
	return b.String()
}
