package speech

import "unicode"

// ResolveLanguage picks the render language by priority:
// explicit parameter > stored user preference > script heuristic over the
// cleaned text. The heuristic only runs when nothing else is known.
func ResolveLanguage(explicit, preference, text string) string {
	if explicit != "" {
		return explicit
	}
	if preference != "" {
		return preference
	}
	return DetectLanguage(text)
}

// DetectLanguage guesses between Amharic and English by counting Ethiopic
// vs Latin letters. The platform renders exactly these two languages, so a
// two-script ratio check is all that's needed.
func DetectLanguage(text string) string {
	var ethiopic, latin int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Ethiopic, r):
			ethiopic++
		case unicode.IsLetter(r):
			latin++
		}
	}
	if ethiopic > latin {
		return "am"
	}
	return "en"
}
