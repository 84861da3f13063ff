package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/selam-labs/selam/internal/capability"
	"github.com/selam-labs/selam/internal/convo"
	"github.com/selam-labs/selam/internal/metrics"
	"github.com/selam-labs/selam/internal/platform"
)

const searchLimit = 5

// Response is the fallback's answer. Always non-empty text.
type Response struct {
	Text      string
	Data      map[string]any
	ToolsUsed []string
}

// Router maps classified intents to store reads and action-handler writes,
// resolving positional and anaphoric references through the per-user
// dialogue context. It returns no error: anything that fails internally
// becomes apologetic text.
type Router struct {
	store   platform.Store
	actions platform.ActionHandlers
	conv    convo.Store
}

func NewRouter(store platform.Store, actions platform.ActionHandlers, conv convo.Store) *Router {
	return &Router{store: store, actions: actions, conv: conv}
}

// Respond answers an utterance deterministically.
func (r *Router) Respond(ctx context.Context, caller platform.Caller, text string) Response {
	metrics.FallbackTotal.Inc()

	intent, ents := Classify(text)
	dc := r.conv.LoadContext(ctx, caller.UserID)

	slog.Debug("fallback routing", "user", caller.UserID, "intent", intent,
		"workflow", dc.Workflow)

	// Workflow continuation runs before fresh intent handling: a bare
	// "500" while collecting a donation amount is the amount, not search.
	if dc.Workflow == "donate" && intent != IntentCancel {
		if resp, handled := r.continueDonate(ctx, caller, &dc, text, ents); handled {
			r.conv.SaveContext(ctx, caller.UserID, dc)
			return resp
		}
	}

	var resp Response
	switch intent {
	case IntentGreeting:
		resp = Response{Text: greeting(caller)}
	case IntentHelp:
		resp = Response{Text: capability.HelpText()}
	case IntentCancel:
		dc.ClearWorkflow()
		resp = Response{Text: "Okay, I've cancelled that. Anything else I can help with?"}
	case IntentSearch:
		resp = r.search(ctx, &dc, ents)
	case IntentDetail:
		resp = r.detail(ctx, &dc, ents)
	case IntentDonate:
		resp = r.donate(ctx, caller, &dc, ents)
	case IntentHistory:
		resp = r.history(ctx, caller)
	case IntentStats:
		resp = r.stats(ctx, &dc, ents)
	case IntentLanguage:
		resp = r.changeLanguage(ctx, caller, ents)
	default:
		resp = Response{Text: "I'm not sure I understood that.\n\n" + capability.HelpText()}
	}

	r.conv.SaveContext(ctx, caller.UserID, dc)
	return resp
}

func greeting(caller platform.Caller) string {
	if caller.Language == "am" {
		return "ሰላም! እኔ ሰላም ነኝ፣ የተስፋ ረዳት። ዘመቻ መፈለግ፣ መለገስ ወይም ታሪክዎን ማየት እችላለሁ።"
	}
	return "Hello! I'm Selam, the Tesfa assistant. I can help you find campaigns, donate, or check your donation history."
}

func (r *Router) search(ctx context.Context, dc *convo.DialogueContext, ents Entities) Response {
	q := platform.SearchQuery{Text: ents.Query, Category: ents.Category, Limit: searchLimit}
	campaigns, err := r.store.SearchCampaigns(ctx, q)
	if err != nil {
		slog.Warn("fallback search failed", "error", err)
		return Response{Text: "Sorry, I couldn't search campaigns right now. Please try again in a moment."}
	}
	if len(campaigns) == 0 {
		return Response{Text: "I couldn't find any campaigns matching that. Try a category like water, health, or education."}
	}

	dc.LastResults = dc.LastResults[:0]
	var b strings.Builder
	b.WriteString("Here's what I found:\n")
	for i, c := range campaigns {
		fmt.Fprintf(&b, "%d. %s — %.0f of %.0f %s raised\n", i+1, c.Title, c.Raised, c.Goal, c.Currency)
		dc.LastResults = append(dc.LastResults, convo.EntityRef{Kind: "campaign", ID: c.ID, Title: c.Title})
	}
	b.WriteString("Say \"tell me about number 2\" for details, or \"donate to number 1\" to give.")

	return Response{
		Text:      b.String(),
		Data:      map[string]any{"campaigns": campaigns},
		ToolsUsed: []string{"search_campaigns"},
	}
}

// resolveCampaign turns explicit ids, ordinals, and anaphora into a
// campaign id, in that priority order.
func resolveCampaign(dc *convo.DialogueContext, ents Entities) (int64, bool) {
	if ents.CampaignID > 0 {
		return ents.CampaignID, true
	}
	if ents.Ordinal > 0 {
		if ref, ok := dc.Nth(ents.Ordinal); ok {
			return ref.ID, true
		}
		return 0, false
	}
	if ents.Anaphora && dc.ActiveEntity != nil {
		return dc.ActiveEntity.ID, true
	}
	return 0, false
}

func (r *Router) detail(ctx context.Context, dc *convo.DialogueContext, ents Entities) Response {
	id, ok := resolveCampaign(dc, ents)
	if !ok {
		return Response{Text: "Which campaign do you mean? You can say a number from the list, like \"number 2\"."}
	}
	c, err := r.store.Campaign(ctx, id)
	if err != nil {
		slog.Warn("fallback detail lookup failed", "campaign", id, "error", err)
		return Response{Text: "Sorry, I couldn't look that campaign up right now."}
	}
	if c == nil {
		return Response{Text: fmt.Sprintf("I couldn't find campaign %d. It may have closed.", id)}
	}

	dc.ActiveEntity = &convo.EntityRef{Kind: "campaign", ID: c.ID, Title: c.Title}
	text := fmt.Sprintf("%s (%s)\n%s\nRaised %.0f of %.0f %s.\nSay \"donate to it\" if you'd like to give.",
		c.Title, c.Category, c.Description, c.Raised, c.Goal, c.Currency)
	return Response{
		Text:      text,
		Data:      map[string]any{"campaign": c},
		ToolsUsed: []string{"get_campaign"},
	}
}

func (r *Router) donate(ctx context.Context, caller platform.Caller, dc *convo.DialogueContext, ents Entities) Response {
	id, ok := resolveCampaign(dc, ents)
	if !ok {
		return Response{Text: "Which campaign would you like to donate to? Search first, then say \"donate to number 1\"."}
	}

	if ents.Amount <= 0 {
		c, err := r.store.Campaign(ctx, id)
		title := fmt.Sprintf("campaign %d", id)
		if err == nil && c != nil {
			title = c.Title
			dc.ActiveEntity = &convo.EntityRef{Kind: "campaign", ID: c.ID, Title: c.Title}
		}
		dc.StartWorkflow("donate")
		dc.UpdateWorkflow("campaign_id", fmt.Sprintf("%d", id))
		dc.UpdateWorkflow("title", title)
		return Response{Text: fmt.Sprintf("How much would you like to donate to %s? For example, \"200 birr\".", title)}
	}

	return r.submitDonation(ctx, caller, dc, id, ents.Amount, ents.Currency)
}

// continueDonate handles the amount-collection step of the donate workflow.
// Returns handled=false when the utterance carries no amount, so the fresh
// intent path can take over (the user changed their mind mid-form).
func (r *Router) continueDonate(ctx context.Context, caller platform.Caller, dc *convo.DialogueContext, text string, ents Entities) (Response, bool) {
	amount := ents.Amount
	currency := ents.Currency
	if amount <= 0 {
		amount, currency = extractAmount(strings.ToLower(text))
	}
	if amount <= 0 {
		return Response{}, false
	}

	var id int64
	fmt.Sscanf(dc.WorkflowData["campaign_id"], "%d", &id)
	dc.CompleteWorkflow()
	return r.submitDonation(ctx, caller, dc, id, amount, currency), true
}

func (r *Router) submitDonation(ctx context.Context, caller platform.Caller, dc *convo.DialogueContext, id int64, amount float64, currency string) Response {
	if currency == "" {
		currency = "ETB"
	}
	p := capability.DonateParams{CampaignID: id, Amount: amount, Currency: currency}
	if err := p.Validate(); err != nil {
		return Response{Text: "That donation doesn't look right: " + err.Error()}
	}

	result, err := r.actions.Donate(ctx, caller, p)
	if err != nil {
		slog.Warn("fallback donation failed", "campaign", id, "error", err)
		return Response{Text: "Sorry, I couldn't process that donation right now. Your money has not been taken. Please try again."}
	}
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = result.Message
		}
		return Response{Text: "I couldn't complete the donation: " + msg, ToolsUsed: []string{"donate"}}
	}

	dc.ActiveEntity = &convo.EntityRef{Kind: "campaign", ID: id}
	msg := result.Message
	if msg == "" {
		msg = fmt.Sprintf("Thank you! Your donation of %.0f %s was received.", amount, currency)
	}
	return Response{Text: msg, Data: map[string]any{"donation": result.Data}, ToolsUsed: []string{"donate"}}
}

func (r *Router) history(ctx context.Context, caller platform.Caller) Response {
	donations, err := r.store.DonationsByUser(ctx, caller.UserID, 10)
	if err != nil {
		slog.Warn("fallback history failed", "user", caller.UserID, "error", err)
		return Response{Text: "Sorry, I couldn't load your donation history right now."}
	}
	if len(donations) == 0 {
		return Response{Text: "You haven't made any donations yet. Search for a campaign to get started."}
	}

	var b strings.Builder
	b.WriteString("Your recent donations:\n")
	for _, d := range donations {
		fmt.Fprintf(&b, "- %.0f %s to %s on %s\n", d.Amount, d.Currency, d.CampaignTitle, d.CreatedAt.Format("2 Jan 2006"))
	}
	return Response{
		Text:      b.String(),
		Data:      map[string]any{"donations": donations},
		ToolsUsed: []string{"donation_history"},
	}
}

func (r *Router) stats(ctx context.Context, dc *convo.DialogueContext, ents Entities) Response {
	id, _ := resolveCampaign(dc, ents)
	stats, err := r.store.Stats(ctx, id)
	if err != nil {
		slog.Warn("fallback stats failed", "campaign", id, "error", err)
		return Response{Text: "Sorry, I couldn't load statistics right now."}
	}

	var text string
	if stats.CampaignID == 0 {
		text = fmt.Sprintf("Across Tesfa, %d donations have raised %.0f %s over %d active campaigns.",
			stats.DonationCount, stats.TotalRaised, stats.Currency, stats.ActiveCampaign)
	} else {
		text = fmt.Sprintf("This campaign has raised %.0f of its %.0f %s goal from %d donations.",
			stats.TotalRaised, stats.Goal, stats.Currency, stats.DonationCount)
	}
	return Response{Text: text, Data: map[string]any{"stats": stats}, ToolsUsed: []string{"campaign_stats"}}
}

func (r *Router) changeLanguage(ctx context.Context, caller platform.Caller, ents Entities) Response {
	p := capability.ChangeLanguageParams{Language: ents.Language}
	result, err := r.actions.ChangeLanguage(ctx, caller, p)
	if err != nil || !result.Success {
		slog.Warn("fallback language change failed", "user", caller.UserID, "error", err)
		return Response{Text: "Sorry, I couldn't update your language preference right now."}
	}
	if ents.Language == "am" {
		return Response{Text: "እሺ! ከአሁን በኋላ በአማርኛ እመልሳለሁ።", ToolsUsed: []string{"change_language"}}
	}
	return Response{Text: "Done! I'll reply in English from now on.", ToolsUsed: []string{"change_language"}}
}
