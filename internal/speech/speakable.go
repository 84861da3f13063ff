package speech

import (
	"regexp"
	"strings"
)

var (
	mdLink    = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	rawURL    = regexp.MustCompile(`https?://\S+`)
	mdHeading = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	mdBullet  = regexp.MustCompile(`(?m)^\s*[-*•]\s+`)
	mdEmpha   = regexp.MustCompile("[*_`~]+")
	spaces    = regexp.MustCompile(`[ \t]+`)
)

// Speakable strips markup, markdown, and URLs from a chat reply so the
// renderer gets plain prose. Returns "" when nothing speakable remains
// (e.g. the reply was only a link).
func Speakable(text string) string {
	s := mdLink.ReplaceAllString(text, "$1")
	s = rawURL.ReplaceAllString(s, "")
	s = mdHeading.ReplaceAllString(s, "")
	s = mdBullet.ReplaceAllString(s, "")
	s = mdEmpha.ReplaceAllString(s, "")
	s = spaces.ReplaceAllString(s, " ")

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, " ")
}
