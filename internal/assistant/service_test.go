package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selam-labs/selam/internal/agent"
	"github.com/selam-labs/selam/internal/capability"
	"github.com/selam-labs/selam/internal/convo"
	"github.com/selam-labs/selam/internal/delivery"
	"github.com/selam-labs/selam/internal/dispatch"
	"github.com/selam-labs/selam/internal/fallback"
	"github.com/selam-labs/selam/internal/llm"
	"github.com/selam-labs/selam/internal/platform"
)

type fakeStore struct {
	campaigns []platform.Campaign
}

func (f *fakeStore) SearchCampaigns(_ context.Context, _ platform.SearchQuery) ([]platform.Campaign, error) {
	return f.campaigns, nil
}

func (f *fakeStore) Campaign(_ context.Context, id int64) (*platform.Campaign, error) {
	for i := range f.campaigns {
		if f.campaigns[i].ID == id {
			return &f.campaigns[i], nil
		}
	}
	return nil, fmt.Errorf("campaign %d not found", id)
}

func (f *fakeStore) DonationsByUser(_ context.Context, _ string, _ int) ([]platform.Donation, error) {
	return nil, nil
}

func (f *fakeStore) Stats(_ context.Context, id int64) (*platform.Stats, error) {
	return &platform.Stats{CampaignID: id, Currency: "ETB"}, nil
}

func (f *fakeStore) UserLanguage(_ context.Context, _ string) (string, error) { return "", nil }
func (f *fakeStore) Close()                                                  {}

type noopActions struct{}

func (noopActions) Donate(_ context.Context, _ platform.Caller, _ capability.DonateParams) (*platform.ActionResult, error) {
	return &platform.ActionResult{Success: true, Message: "Donation received"}, nil
}
func (noopActions) CreateCampaign(_ context.Context, _ platform.Caller, _ capability.CreateCampaignParams) (*platform.ActionResult, error) {
	return &platform.ActionResult{Success: true}, nil
}
func (noopActions) Withdraw(_ context.Context, _ platform.Caller, _ capability.WithdrawParams) (*platform.ActionResult, error) {
	return &platform.ActionResult{Success: true}, nil
}
func (noopActions) SubmitReport(_ context.Context, _ platform.Caller, _ capability.SubmitReportParams) (*platform.ActionResult, error) {
	return &platform.ActionResult{Success: true}, nil
}
func (noopActions) RegisterOrganization(_ context.Context, _ platform.Caller, _ capability.RegisterOrganizationParams) (*platform.ActionResult, error) {
	return &platform.ActionResult{Success: true}, nil
}
func (noopActions) ChangeLanguage(_ context.Context, _ platform.Caller, _ capability.ChangeLanguageParams) (*platform.ActionResult, error) {
	return &platform.ActionResult{Success: true}, nil
}

// failingProvider simulates a brain outage.
type failingProvider struct{}

func (failingProvider) Name() string { return "failing" }
func (failingProvider) Complete(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return nil, &llm.ProviderError{Message: "overloaded", StatusCode: 529}
}
func (failingProvider) CompleteWithTools(_ context.Context, _ llm.CompletionRequest, _ []llm.ToolDefinition, _ []llm.ToolMessage) (*llm.CompletionResponse, error) {
	return nil, &llm.ProviderError{Message: "overloaded", StatusCode: 529}
}

// panickingProvider simulates a bug below the orchestrator boundary.
type panickingProvider struct{}

func (panickingProvider) Name() string { return "panicking" }
func (panickingProvider) Complete(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	panic("provider bug")
}
func (panickingProvider) CompleteWithTools(_ context.Context, _ llm.CompletionRequest, _ []llm.ToolDefinition, _ []llm.ToolMessage) (*llm.CompletionResponse, error) {
	panic("provider bug")
}

// answeringProvider always replies with fixed text.
type answeringProvider struct{ text string }

func (p answeringProvider) Name() string { return "answering" }
func (p answeringProvider) Complete(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: p.text, StopReason: "end_turn"}, nil
}
func (p answeringProvider) CompleteWithTools(_ context.Context, _ llm.CompletionRequest, _ []llm.ToolDefinition, _ []llm.ToolMessage) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: p.text, StopReason: "end_turn"}, nil
}

func newTestService(provider llm.ToolProvider) *Service {
	store := &fakeStore{campaigns: []platform.Campaign{
		{ID: 1, Title: "Clean Water", Category: "water", Goal: 1000, Raised: 200, Currency: "ETB"},
	}}
	actions := noopActions{}
	conv := convo.NewMemoryStore(0)

	var orch *agent.Orchestrator
	if provider != nil {
		orch = agent.New(provider, dispatch.New(store, actions, 0), conv, agent.Config{})
	}
	fb := fallback.NewRouter(store, actions, conv)
	del := delivery.New(nil, store, 0)

	return New(&Config{Name: "selam"}, orch, fb, del, store, nil, nil)
}

var caller = platform.Caller{UserID: "u1", Role: "donor"}

func TestHandleTextAgentPath(t *testing.T) {
	svc := newTestService(answeringProvider{text: "Hello from the brain."})

	out := svc.HandleText(context.Background(), "http", caller, "", "hi", "")
	assert.Equal(t, "agent", out.Source)
	assert.Equal(t, "Hello from the brain.", out.Text)
	assert.NotEmpty(t, out.ConversationID, "a conversation id is minted when absent")
}

func TestHandleTextFallsBackOnBrainOutage(t *testing.T) {
	svc := newTestService(failingProvider{})

	out := svc.HandleText(context.Background(), "http", caller, "c1", "find water campaigns", "")
	assert.Equal(t, "fallback", out.Source)
	assert.NotEmpty(t, out.Text)
	assert.Contains(t, out.Text, "Clean Water")
	assert.Equal(t, "c1", out.ConversationID)
}

func TestHandleTextNoBrainConfigured(t *testing.T) {
	svc := newTestService(nil)

	out := svc.HandleText(context.Background(), "telegram", caller, "c1", "help", "")
	assert.Equal(t, "fallback", out.Source)
	assert.NotEmpty(t, out.Text)
}

func TestHandleTextFallsBackOnBrainPanic(t *testing.T) {
	svc := newTestService(panickingProvider{})

	// A panic below the orchestrator still reaches the deterministic
	// router, not the generic last-resort message.
	out := svc.HandleText(context.Background(), "http", caller, "c1", "find water campaigns", "")
	assert.Equal(t, "fallback", out.Source)
	assert.Contains(t, out.Text, "Clean Water")
}

func TestAnswerSurvivesPanic(t *testing.T) {
	svc := newTestService(nil)
	svc.fallback = nil // Respond on a nil router panics.

	out := svc.HandleText(context.Background(), "http", platform.Caller{UserID: "u1"}, "c1", "hello", "")
	assert.Equal(t, "fallback", out.Source)
	assert.Contains(t, out.Text, "try again")
}

func TestServeMessage(t *testing.T) {
	svc := newTestService(answeringProvider{text: "Hello!"})
	srv := httptest.NewServer(svc.routes())
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"user_id": "u1", "text": "hi"})
	resp, err := http.Post(srv.URL+"/v1/message", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out Outbound
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "Hello!", out.Text)
	assert.Equal(t, "agent", out.Source)
}

func TestServeMessageValidation(t *testing.T) {
	svc := newTestService(nil)
	srv := httptest.NewServer(svc.routes())
	defer srv.Close()

	// Missing user_id.
	body, _ := json.Marshal(map[string]string{"text": "hi"})
	resp, err := http.Post(srv.URL+"/v1/message", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Malformed JSON.
	resp, err = http.Post(srv.URL+"/v1/message", "application/json", bytes.NewReader([]byte("{nope")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServeMessageAuth(t *testing.T) {
	svc := newTestService(nil)
	svc.cfg.HTTP.APIToken = "secret"
	srv := httptest.NewServer(svc.routes())
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"user_id": "u1", "text": "hi"})
	resp, err := http.Post(srv.URL+"/v1/message", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/message", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServeVoiceWithoutSpeechService(t *testing.T) {
	svc := newTestService(nil)
	srv := httptest.NewServer(svc.routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/voice", "multipart/form-data", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestServeHealth(t *testing.T) {
	svc := newTestService(nil)
	srv := httptest.NewServer(svc.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
