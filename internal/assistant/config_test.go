package assistant

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "selam", cfg.Name)
	assert.NotEmpty(t, cfg.HTTP.Addr)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"name": "selam",
		"http": {"addr": ":9090"},
		"brain": {"provider": "anthropic", "model": "claude-sonnet-4-5", "api_key": "$SELAM_TEST_KEY", "timeout": "30s"},
		"conversation": {"ttl": "15m", "max_turns": 20},
		"speech": {"url": "http://speech:8000", "render_timeout": "20s"}
	}`), 0o644))

	t.Setenv("SELAM_TEST_KEY", "sk-test")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "sk-test", cfg.Brain.APIKey, "$VAR references resolve from the environment")
	assert.Equal(t, 15*time.Minute, cfg.Conversation.TTLOrDefault())
	assert.Equal(t, 30*time.Second, cfg.Brain.TimeoutOrDefault())
	assert.Equal(t, 20*time.Second, cfg.Speech.RenderTimeoutOrDefault())
}

func TestLoadConfigBadFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.json")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestDurationFallbacks(t *testing.T) {
	// Empty and malformed durations fall back to zero so the consumer
	// applies its own default.
	assert.Zero(t, ConversationConfig{}.TTLOrDefault())
	assert.Zero(t, BrainConfig{Timeout: "soon"}.TimeoutOrDefault())
	assert.Zero(t, SpeechConfig{}.RenderTimeoutOrDefault())
}
