package fallback

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selam-labs/selam/internal/capability"
	"github.com/selam-labs/selam/internal/convo"
	"github.com/selam-labs/selam/internal/platform"
)

type fakeStore struct {
	campaigns []platform.Campaign
	donations []platform.Donation
	failing   bool
}

func (f *fakeStore) SearchCampaigns(_ context.Context, q platform.SearchQuery) ([]platform.Campaign, error) {
	if f.failing {
		return nil, fmt.Errorf("store down")
	}
	if q.Category == "" {
		return f.campaigns, nil
	}
	var out []platform.Campaign
	for _, c := range f.campaigns {
		if c.Category == q.Category {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) Campaign(_ context.Context, id int64) (*platform.Campaign, error) {
	if f.failing {
		return nil, fmt.Errorf("store down")
	}
	for i := range f.campaigns {
		if f.campaigns[i].ID == id {
			return &f.campaigns[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) DonationsByUser(_ context.Context, _ string, _ int) ([]platform.Donation, error) {
	if f.failing {
		return nil, fmt.Errorf("store down")
	}
	return f.donations, nil
}

func (f *fakeStore) Stats(_ context.Context, campaignID int64) (*platform.Stats, error) {
	if f.failing {
		return nil, fmt.Errorf("store down")
	}
	return &platform.Stats{CampaignID: campaignID, TotalRaised: 900, Goal: 1000, DonationCount: 12, Currency: "ETB", ActiveCampaign: 3}, nil
}

func (f *fakeStore) UserLanguage(_ context.Context, _ string) (string, error) { return "", nil }
func (f *fakeStore) Close()                                                  {}

type fakeActions struct {
	donated    []capability.DonateParams
	donateErr  error
	donateFail string // non-empty makes Donate return {success:false, error:...}
	language   string
}

func (f *fakeActions) Donate(_ context.Context, _ platform.Caller, p capability.DonateParams) (*platform.ActionResult, error) {
	if f.donateErr != nil {
		return nil, f.donateErr
	}
	if f.donateFail != "" {
		return &platform.ActionResult{Success: false, Error: f.donateFail}, nil
	}
	f.donated = append(f.donated, p)
	return &platform.ActionResult{Success: true, Message: "Donation received, thank you!"}, nil
}

func (f *fakeActions) CreateCampaign(_ context.Context, _ platform.Caller, _ capability.CreateCampaignParams) (*platform.ActionResult, error) {
	return &platform.ActionResult{Success: true}, nil
}

func (f *fakeActions) Withdraw(_ context.Context, _ platform.Caller, _ capability.WithdrawParams) (*platform.ActionResult, error) {
	return &platform.ActionResult{Success: true}, nil
}

func (f *fakeActions) SubmitReport(_ context.Context, _ platform.Caller, _ capability.SubmitReportParams) (*platform.ActionResult, error) {
	return &platform.ActionResult{Success: true}, nil
}

func (f *fakeActions) RegisterOrganization(_ context.Context, _ platform.Caller, _ capability.RegisterOrganizationParams) (*platform.ActionResult, error) {
	return &platform.ActionResult{Success: true}, nil
}

func (f *fakeActions) ChangeLanguage(_ context.Context, _ platform.Caller, p capability.ChangeLanguageParams) (*platform.ActionResult, error) {
	f.language = p.Language
	return &platform.ActionResult{Success: true}, nil
}

func testCampaigns() []platform.Campaign {
	return []platform.Campaign{
		{ID: 1, Title: "Clean Water for Adama", Category: "water", Goal: 10000, Raised: 4000, Currency: "ETB"},
		{ID: 2, Title: "School Books for Bahir Dar", Category: "education", Goal: 5000, Raised: 1500, Currency: "ETB"},
	}
}

func newTestRouter(store *fakeStore, actions *fakeActions) *Router {
	return NewRouter(store, actions, convo.NewMemoryStore(0))
}

var caller = platform.Caller{UserID: "u1", Role: "donor"}

func TestSearchPopulatesPositionalContext(t *testing.T) {
	store := &fakeStore{campaigns: testCampaigns()}
	r := newTestRouter(store, &fakeActions{})
	ctx := context.Background()

	resp := r.Respond(ctx, caller, "find water campaigns")
	assert.Contains(t, resp.Text, "Clean Water for Adama")
	assert.Equal(t, []string{"search_campaigns"}, resp.ToolsUsed)

	// "number 1" now resolves against the remembered result list.
	resp = r.Respond(ctx, caller, "tell me about number 1")
	assert.Contains(t, resp.Text, "Clean Water for Adama")
	assert.Equal(t, []string{"get_campaign"}, resp.ToolsUsed)
}

func TestOrdinalOutOfRange(t *testing.T) {
	store := &fakeStore{campaigns: testCampaigns()}
	r := newTestRouter(store, &fakeActions{})
	ctx := context.Background()

	r.Respond(ctx, caller, "find water campaigns")
	resp := r.Respond(ctx, caller, "tell me about number 9")
	assert.Contains(t, resp.Text, "Which campaign")
}

func TestDonateWorkflowCollectsAmount(t *testing.T) {
	store := &fakeStore{campaigns: testCampaigns()}
	actions := &fakeActions{}
	r := newTestRouter(store, actions)
	ctx := context.Background()

	r.Respond(ctx, caller, "show me water campaigns")

	// No amount yet: the router asks for one instead of guessing.
	resp := r.Respond(ctx, caller, "donate to the first one")
	assert.Contains(t, resp.Text, "How much")
	assert.Empty(t, actions.donated)

	// The bare amount completes the workflow.
	resp = r.Respond(ctx, caller, "250 birr")
	assert.Contains(t, resp.Text, "thank you")
	require.Len(t, actions.donated, 1)
	assert.Equal(t, int64(1), actions.donated[0].CampaignID)
	assert.Equal(t, 250.0, actions.donated[0].Amount)
	assert.Equal(t, "ETB", actions.donated[0].Currency)
}

func TestDonateReferenceNumberIsNotAnAmount(t *testing.T) {
	store := &fakeStore{campaigns: testCampaigns()}
	actions := &fakeActions{}
	r := newTestRouter(store, actions)
	ctx := context.Background()

	// The campaign number must never be submitted as the amount.
	resp := r.Respond(ctx, caller, "donate to campaign 1")
	assert.Contains(t, resp.Text, "How much")
	assert.Empty(t, actions.donated)

	r.Respond(ctx, caller, "cancel")
	r.Respond(ctx, caller, "show me water campaigns")

	// Same for the positional form the search hint suggests.
	resp = r.Respond(ctx, caller, "donate to number 1")
	assert.Contains(t, resp.Text, "How much")
	assert.Empty(t, actions.donated)
}

func TestDonateOneShot(t *testing.T) {
	actions := &fakeActions{}
	r := newTestRouter(&fakeStore{campaigns: testCampaigns()}, actions)

	resp := r.Respond(context.Background(), caller, "donate 100 birr to campaign 2")
	assert.Equal(t, []string{"donate"}, resp.ToolsUsed)
	require.Len(t, actions.donated, 1)
	assert.Equal(t, int64(2), actions.donated[0].CampaignID)
	assert.Equal(t, 100.0, actions.donated[0].Amount)
}

func TestCancelClearsWorkflow(t *testing.T) {
	actions := &fakeActions{}
	r := newTestRouter(&fakeStore{campaigns: testCampaigns()}, actions)
	ctx := context.Background()

	r.Respond(ctx, caller, "donate to campaign 1")
	resp := r.Respond(ctx, caller, "cancel")
	assert.Contains(t, resp.Text, "cancelled")

	// The amount no longer completes anything.
	resp = r.Respond(ctx, caller, "250 birr")
	assert.Empty(t, actions.donated)
	assert.NotEmpty(t, resp.Text)
}

func TestDonateHandlerRefusal(t *testing.T) {
	actions := &fakeActions{donateFail: "insufficient funds"}
	r := newTestRouter(&fakeStore{campaigns: testCampaigns()}, actions)

	resp := r.Respond(context.Background(), caller, "donate 100 birr to campaign 1")
	assert.Contains(t, resp.Text, "insufficient funds")
}

func TestDonateTransportErrorIsSoftened(t *testing.T) {
	actions := &fakeActions{donateErr: fmt.Errorf("connection refused")}
	r := newTestRouter(&fakeStore{campaigns: testCampaigns()}, actions)

	resp := r.Respond(context.Background(), caller, "donate 100 birr to campaign 1")
	assert.NotContains(t, resp.Text, "connection refused")
	assert.Contains(t, resp.Text, "try again")
}

func TestHistoryAndStats(t *testing.T) {
	store := &fakeStore{donations: []platform.Donation{
		{ID: 1, CampaignTitle: "Clean Water for Adama", Amount: 200, Currency: "ETB"},
	}}
	r := newTestRouter(store, &fakeActions{})
	ctx := context.Background()

	resp := r.Respond(ctx, caller, "my donation history")
	assert.Contains(t, resp.Text, "Clean Water for Adama")
	assert.Equal(t, []string{"donation_history"}, resp.ToolsUsed)

	resp = r.Respond(ctx, caller, "show platform stats")
	assert.Contains(t, resp.Text, "raised")
	assert.Equal(t, []string{"campaign_stats"}, resp.ToolsUsed)
}

func TestLanguageSwitch(t *testing.T) {
	actions := &fakeActions{}
	r := newTestRouter(&fakeStore{}, actions)

	resp := r.Respond(context.Background(), caller, "switch to amharic please")
	assert.Equal(t, "am", actions.language)
	assert.NotEmpty(t, resp.Text)
}

// Every utterance gets a non-empty answer, even with every backend failing.
func TestAlwaysAnswers(t *testing.T) {
	r := newTestRouter(&fakeStore{failing: true}, &fakeActions{donateErr: fmt.Errorf("down")})
	ctx := context.Background()

	utterances := []string{
		"hello",
		"find water campaigns",
		"tell me about number 1",
		"donate 50 birr to campaign 3",
		"my donation history",
		"show progress",
		"switch to amharic",
		"help",
		"cancel",
		"complete gibberish zzz",
		"",
	}
	for _, u := range utterances {
		resp := r.Respond(ctx, caller, u)
		assert.NotEmpty(t, resp.Text, "utterance %q", u)
	}
}
