package speech

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpeakable(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text unchanged",
			in:   "Thank you for your donation!",
			want: "Thank you for your donation!",
		},
		{
			name: "markdown link keeps label",
			in:   "See [the campaign](https://tesfa.org/c/42) for details.",
			want: "See the campaign for details.",
		},
		{
			name: "raw url dropped",
			in:   "Donate at https://tesfa.org/c/42 today.",
			want: "Donate at today.",
		},
		{
			name: "bullets and emphasis stripped",
			in:   "# Results\n- **Clean Water** fund\n- *School* books",
			want: "Results Clean Water fund School books",
		},
		{
			name: "only a link leaves nothing",
			in:   "https://tesfa.org/c/42",
			want: "",
		},
		{
			name: "empty stays empty",
			in:   "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Speakable(tt.in))
		})
	}
}
