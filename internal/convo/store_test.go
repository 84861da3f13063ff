package convo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func turnsOfLen(n int) []Turn {
	turns := make([]Turn, n)
	for i := range turns {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		turns[i] = Turn{Role: role, Content: string(rune('a' + i%26))}
	}
	return turns
}

func TestTruncateKeepsNewest(t *testing.T) {
	turns := turnsOfLen(10)
	got := Truncate(turns, 4)
	require.Len(t, got, 4)
	assert.Equal(t, turns[6:], got)

	// Under the cap nothing changes.
	assert.Len(t, Truncate(turnsOfLen(3), 4), 3)
	// Non-positive max falls back to the default.
	assert.Len(t, Truncate(turnsOfLen(DefaultMaxTurns+5), 0), DefaultMaxTurns)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(4)

	assert.Empty(t, s.Load(ctx, "u1", "c1"))

	s.Save(ctx, "u1", "c1", turnsOfLen(6))
	got := s.Load(ctx, "u1", "c1")
	require.Len(t, got, 4, "save should truncate to max turns")

	// Conversations are isolated per user and per conversation.
	assert.Empty(t, s.Load(ctx, "u2", "c1"))
	assert.Empty(t, s.Load(ctx, "u1", "c2"))

	s.Delete(ctx, "u1", "c1")
	assert.Empty(t, s.Load(ctx, "u1", "c1"))
}

func TestMemoryStoreDialogueContext(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	dc := s.LoadContext(ctx, "u1")
	assert.Empty(t, dc.LastResults)

	dc.LastResults = []EntityRef{{Kind: "campaign", ID: 7, Title: "Clean Water"}}
	dc.ActiveEntity = &dc.LastResults[0]
	s.SaveContext(ctx, "u1", dc)

	got := s.LoadContext(ctx, "u1")
	require.Len(t, got.LastResults, 1)
	assert.Equal(t, int64(7), got.LastResults[0].ID)

	s.ClearContext(ctx, "u1")
	assert.Empty(t, s.LoadContext(ctx, "u1").LastResults)
}

func TestNthPositionalResolution(t *testing.T) {
	dc := DialogueContext{LastResults: []EntityRef{
		{Kind: "campaign", ID: 10},
		{Kind: "campaign", ID: 20},
	}}

	ref, ok := dc.Nth(2)
	require.True(t, ok)
	assert.Equal(t, int64(20), ref.ID)

	_, ok = dc.Nth(0)
	assert.False(t, ok)
	_, ok = dc.Nth(3)
	assert.False(t, ok)
}

func TestWorkflowLifecycle(t *testing.T) {
	var dc DialogueContext
	dc.StartWorkflow("donate")
	dc.UpdateWorkflow("campaign_id", "7")

	assert.Equal(t, "donate", dc.Workflow)
	data := dc.CompleteWorkflow()
	assert.Equal(t, "7", data["campaign_id"])
	assert.Empty(t, dc.Workflow)
	assert.Nil(t, dc.WorkflowData)
}

// The Redis store must degrade to stateless, never fail, when the cache is
// unreachable.
func TestRedisStoreDegradesWhenUnreachable(t *testing.T) {
	ctx := context.Background()
	s := NewRedisStore(RedisConfig{Addr: "127.0.0.1:1"})

	assert.NotPanics(t, func() {
		s.Save(ctx, "u1", "c1", turnsOfLen(2))
		assert.Empty(t, s.Load(ctx, "u1", "c1"))
		s.Delete(ctx, "u1", "c1")

		s.SaveContext(ctx, "u1", DialogueContext{Workflow: "donate"})
		assert.Empty(t, s.LoadContext(ctx, "u1").Workflow)
		s.ClearContext(ctx, "u1")
	})
}
