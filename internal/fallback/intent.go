// Package fallback is the deterministic last-resort pipeline: a
// closed-vocabulary intent classifier and a router over the domain store
// and action handlers. It never calls the reasoning brain, so it cannot
// share the orchestrator's failure mode: every request gets some answer.
package fallback

import (
	"regexp"
	"strconv"
	"strings"
)

// Intent is one of a fixed set of named intents.
type Intent string

const (
	IntentSearch   Intent = "search"
	IntentDetail   Intent = "detail"
	IntentDonate   Intent = "donate"
	IntentHistory  Intent = "history"
	IntentStats    Intent = "stats"
	IntentLanguage Intent = "language"
	IntentGreeting Intent = "greeting"
	IntentCancel   Intent = "cancel"
	IntentHelp     Intent = "help"
	IntentUnknown  Intent = "unknown"
)

// Entities are the values extracted alongside an intent.
type Entities struct {
	Category   string
	Query      string
	CampaignID int64
	Ordinal    int  // 1-based position into the last result set
	Anaphora   bool // "it", "that one": resolve via active entity
	Amount     float64
	Currency   string
	Language   string
}

var (
	amountRe   = regexp.MustCompile(`(?i)(?:\$\s*)?(\d+(?:\.\d+)?)\s*(birr|etb|usd|dollars?)?`)
	ordinalRe  = regexp.MustCompile(`(?i)(?:number|no\.?|#)\s*(\d+)`)
	campaignRe = regexp.MustCompile(`(?i)campaign\s+(\d+)`)
)

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
}

var categorySignals = map[string][]string{
	"water":       {"water", "well", "borehole", "ውሃ"},
	"health":      {"health", "medical", "hospital", "clinic", "ጤና"},
	"education":   {"education", "school", "student", "ትምህርት"},
	"emergency":   {"emergency", "disaster", "flood", "drought", "relief"},
	"agriculture": {"agriculture", "farm", "seed", "harvest", "እርሻ"},
}

// Classify maps an utterance to an intent plus extracted entities.
// Closed vocabulary, pure function: no I/O, no model.
func Classify(text string) (Intent, Entities) {
	s := strings.ToLower(strings.TrimSpace(text))
	var e Entities

	if m := campaignRe.FindStringSubmatch(s); m != nil {
		e.CampaignID, _ = strconv.ParseInt(m[1], 10, 64)
	}
	if m := ordinalRe.FindStringSubmatch(s); m != nil {
		e.Ordinal, _ = strconv.Atoi(m[1])
	}
	for word, n := range ordinalWords {
		if strings.Contains(s, word+" one") || strings.Contains(s, "the "+word) {
			e.Ordinal = n
		}
	}
	if containsAny(s, " it", " that one", " this one", "to it") {
		e.Anaphora = true
	}
	for category, signals := range categorySignals {
		if containsAny(s, signals...) {
			e.Category = category
			break
		}
	}

	switch {
	case containsAny(s, "cancel", "never mind", "nevermind", "stop", "ተወው"):
		return IntentCancel, e

	// Before donate: "my donation history" contains "donate" as a substring.
	case containsAny(s, "my donation", "history", "donated before", "past donation"):
		return IntentHistory, e

	case containsAny(s, "donate", "give", "contribute", "support", "ለግስ", "መለገስ"):
		e.Amount, e.Currency = extractAmount(s)
		return IntentDonate, e

	case containsAny(s, "find", "search", "show me", "list", "looking for", "ፈልግ") || e.Category != "":
		e.Query = extractQuery(s)
		return IntentSearch, e

	case containsAny(s, "detail", "tell me about", "more about", "what is") &&
		(e.CampaignID > 0 || e.Ordinal > 0 || e.Anaphora):
		return IntentDetail, e

	case containsAny(s, "stats", "statistic", "progress", "how much", "raised"):
		return IntentStats, e

	case containsAny(s, "amharic", "english", "language", "አማርኛ", "እንግሊዝኛ"):
		if containsAny(s, "amharic", "አማርኛ") {
			e.Language = "am"
		} else if containsAny(s, "english", "እንግሊዝኛ") {
			e.Language = "en"
		}
		if e.Language != "" {
			return IntentLanguage, e
		}
		return IntentUnknown, e

	case containsAny(s, "hello", "hi ", "hey", "selam", "ሰላም", "good morning", "good afternoon") || s == "hi":
		return IntentGreeting, e

	case containsAny(s, "help", "what can you do", "እርዳታ"):
		return IntentHelp, e

	// A bare number while an amount is being collected is handled by the
	// router's workflow continuation, but classify it as donate so the
	// entities carry the value.
	case amountRe.MatchString(s) && len(strings.Fields(s)) <= 3:
		e.Amount, e.Currency = extractAmount(s)
		if e.Amount > 0 {
			return IntentDonate, e
		}
	}

	return IntentUnknown, e
}

func containsAny(s string, signals ...string) bool {
	for _, sig := range signals {
		if sig != "" && strings.Contains(s, sig) {
			return true
		}
	}
	return false
}

// extractAmount finds a money amount in the utterance. Digits naming a
// campaign or a position ("campaign 3", "number 2") are references, not
// amounts, so those spans are blanked before matching.
func extractAmount(s string) (float64, string) {
	s = campaignRe.ReplaceAllString(s, " ")
	s = ordinalRe.ReplaceAllString(s, " ")
	m := amountRe.FindStringSubmatch(s)
	if m == nil {
		return 0, ""
	}
	amount, _ := strconv.ParseFloat(m[1], 64)
	return amount, normalizeCurrency(m[2])
}

func normalizeCurrency(raw string) string {
	switch strings.ToLower(raw) {
	case "usd", "dollar", "dollars":
		return "USD"
	case "birr", "etb":
		return "ETB"
	default:
		return ""
	}
}

// extractQuery trims search verbs and filler so "find water campaigns"
// leaves "water campaigns" worth of signal.
func extractQuery(s string) string {
	for _, prefix := range []string{"find", "search for", "search", "show me", "list", "looking for"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
	}
	s = strings.TrimSuffix(s, "campaigns")
	s = strings.TrimSuffix(s, "campaign")
	return strings.TrimSpace(s)
}
