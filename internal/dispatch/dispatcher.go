// Package dispatch routes a validated capability invocation to either a
// direct read against the domain store or a delegated call into a domain
// action handler. It never lets a failure escape its boundary: handler
// errors and panics become error results the orchestrator can feed back to
// the brain.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/selam-labs/selam/internal/capability"
	"github.com/selam-labs/selam/internal/metrics"
	"github.com/selam-labs/selam/internal/platform"
)

const defaultCallTimeout = 15 * time.Second

// Result is the outcome of one invocation: {ok: structured data} or
// {error: message}. Content is the text summary fed back to the brain;
// Data is the machine-readable payload collected into the response's
// data bag.
type Result struct {
	OK      bool
	Content string
	Data    any
	Err     string
}

// Dispatcher executes catalog capabilities.
type Dispatcher struct {
	store   platform.Store
	actions platform.ActionHandlers
	timeout time.Duration
}

// New creates a dispatcher over the domain store and action handlers.
func New(store platform.Store, actions platform.ActionHandlers, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Dispatcher{store: store, actions: actions, timeout: timeout}
}

// Execute runs one validated capability invocation for the given caller.
// Reads query the domain store directly; writes forward to the action
// handlers with the caller identity: authorization happens there.
func (d *Dispatcher) Execute(ctx context.Context, params capability.Params, caller platform.Caller) (res Result) {
	start := time.Now()
	name := "unknown"

	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Sprintf("internal error executing %s", name)}
			slog.Error("capability handler panicked", "capability", name, "panic", r)
		}
		status := "ok"
		if !res.OK {
			status = "error"
		}
		metrics.ToolCalls.WithLabelValues(name, status).Inc()
		slog.Info("capability executed",
			"capability", name,
			"caller", caller.UserID,
			"ok", res.OK,
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
	}()

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	switch p := params.(type) {
	case *capability.SearchCampaignsParams:
		name = "search_campaigns"
		return d.searchCampaigns(callCtx, p)
	case *capability.GetCampaignParams:
		name = "get_campaign"
		return d.getCampaign(callCtx, p)
	case *capability.DonationHistoryParams:
		name = "donation_history"
		return d.donationHistory(callCtx, caller, p)
	case *capability.CampaignStatsParams:
		name = "campaign_stats"
		return d.campaignStats(callCtx, p)
	case *capability.HelpParams:
		name = "help"
		return Result{OK: true, Content: capability.HelpText()}
	case *capability.DonateParams:
		name = "donate"
		return action(d.actions.Donate(callCtx, caller, *p))
	case *capability.CreateCampaignParams:
		name = "create_campaign"
		return action(d.actions.CreateCampaign(callCtx, caller, *p))
	case *capability.WithdrawParams:
		name = "withdraw"
		return action(d.actions.Withdraw(callCtx, caller, *p))
	case *capability.SubmitReportParams:
		name = "submit_report"
		return action(d.actions.SubmitReport(callCtx, caller, *p))
	case *capability.RegisterOrganizationParams:
		name = "register_organization"
		return action(d.actions.RegisterOrganization(callCtx, caller, *p))
	case *capability.ChangeLanguageParams:
		name = "change_language"
		return action(d.actions.ChangeLanguage(callCtx, caller, *p))
	default:
		return Result{Err: fmt.Sprintf("no handler for parameter type %T", params)}
	}
}

// action converts an action-handler outcome into a Result.
func action(ar *platform.ActionResult, err error) Result {
	if err != nil {
		return Result{Err: err.Error()}
	}
	if !ar.Success {
		msg := ar.Error
		if msg == "" {
			msg = "the action was rejected"
		}
		return Result{Err: msg}
	}
	content := ar.Message
	if content == "" {
		content = "done"
	}
	var data any
	if len(ar.Data) > 0 {
		data = ar.Data
	}
	return Result{OK: true, Content: content, Data: data}
}

func (d *Dispatcher) searchCampaigns(ctx context.Context, p *capability.SearchCampaignsParams) Result {
	campaigns, err := d.store.SearchCampaigns(ctx, platform.SearchQuery{
		Text:     p.Query,
		Category: p.Category,
		Limit:    p.Limit,
	})
	if err != nil {
		return Result{Err: err.Error()}
	}
	if len(campaigns) == 0 {
		return Result{OK: true, Content: "No matching campaigns found."}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d campaigns:\n", len(campaigns))
	for i, c := range campaigns {
		fmt.Fprintf(&b, "%d. [%d] %s (%s) — %.0f/%.0f %s raised\n",
			i+1, c.ID, c.Title, c.Category, c.Raised, c.Goal, c.Currency)
	}
	return Result{OK: true, Content: b.String(), Data: campaigns}
}

func (d *Dispatcher) getCampaign(ctx context.Context, p *capability.GetCampaignParams) Result {
	c, err := d.store.Campaign(ctx, p.CampaignID)
	if err != nil {
		return Result{Err: err.Error()}
	}
	if c == nil {
		return Result{Err: fmt.Sprintf("campaign %d not found", p.CampaignID)}
	}
	content := fmt.Sprintf("Campaign [%d] %s (%s, %s)\nGoal: %.0f %s, raised: %.0f %s\n%s",
		c.ID, c.Title, c.Category, c.Status, c.Goal, c.Currency, c.Raised, c.Currency, c.Description)
	return Result{OK: true, Content: content, Data: c}
}

func (d *Dispatcher) donationHistory(ctx context.Context, caller platform.Caller, p *capability.DonationHistoryParams) Result {
	donations, err := d.store.DonationsByUser(ctx, caller.UserID, p.Limit)
	if err != nil {
		return Result{Err: err.Error()}
	}
	if len(donations) == 0 {
		return Result{OK: true, Content: "No donations yet."}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d donations:\n", len(donations))
	for _, dn := range donations {
		fmt.Fprintf(&b, "• %.0f %s to %s on %s\n",
			dn.Amount, dn.Currency, dn.CampaignTitle, dn.CreatedAt.Format("2006-01-02"))
	}
	return Result{OK: true, Content: b.String(), Data: donations}
}

func (d *Dispatcher) campaignStats(ctx context.Context, p *capability.CampaignStatsParams) Result {
	st, err := d.store.Stats(ctx, p.CampaignID)
	if err != nil {
		return Result{Err: err.Error()}
	}
	var content string
	if st.CampaignID > 0 {
		content = fmt.Sprintf("Campaign %d: %.0f %s raised of %.0f goal across %d donations.",
			st.CampaignID, st.TotalRaised, st.Currency, st.Goal, st.DonationCount)
	} else {
		content = fmt.Sprintf("Platform: %.0f %s raised across %d donations, %d active campaigns.",
			st.TotalRaised, st.Currency, st.DonationCount, st.ActiveCampaign)
	}
	return Result{OK: true, Content: content, Data: st}
}
