package speech

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveLanguagePriority(t *testing.T) {
	// Explicit wins over everything.
	assert.Equal(t, "am", ResolveLanguage("am", "en", "hello there"))

	// Stored preference wins over the script heuristic.
	assert.Equal(t, "en", ResolveLanguage("", "en", "ሰላም እንዴት ነህ"))

	// Nothing known: fall back to script detection.
	assert.Equal(t, "am", ResolveLanguage("", "", "ሰላም እንዴት ነህ"))
	assert.Equal(t, "en", ResolveLanguage("", "", "hello how are you"))
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"hello how are you", "en"},
		{"ሰላም እንዴት ነህ", "am"},
		{"ሰላም hi", "am"},
		{"I donated 200 birr to ውሃ", "en"}, // mostly Latin
		{"", "en"},
		{"12345 !!!", "en"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectLanguage(tt.text), "text %q", tt.text)
	}
}
