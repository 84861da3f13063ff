package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/selam-labs/selam/internal/capability"
)

// ActionResult is the outcome of one delegated write. The handlers return
// {success, ...} or {error}; Message carries either the human-readable
// confirmation or the error text.
type ActionResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// ActionHandlers is the boundary to the pre-existing domain action handlers.
// One call per write capability; the handlers own validation, external
// services, persistence, and authorization of the caller.
type ActionHandlers interface {
	Donate(ctx context.Context, caller Caller, p capability.DonateParams) (*ActionResult, error)
	CreateCampaign(ctx context.Context, caller Caller, p capability.CreateCampaignParams) (*ActionResult, error)
	Withdraw(ctx context.Context, caller Caller, p capability.WithdrawParams) (*ActionResult, error)
	SubmitReport(ctx context.Context, caller Caller, p capability.SubmitReportParams) (*ActionResult, error)
	RegisterOrganization(ctx context.Context, caller Caller, p capability.RegisterOrganizationParams) (*ActionResult, error)
	ChangeLanguage(ctx context.Context, caller Caller, p capability.ChangeLanguageParams) (*ActionResult, error)
}

// ActionClient calls the platform's action-handler API over HTTP.
type ActionClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewActionClient creates an action-handler client.
func NewActionClient(baseURL, token string, timeout time.Duration) *ActionClient {
	if timeout <= 0 {
		// Writes reach payment and messaging services; give them room.
		timeout = 30 * time.Second
	}
	return &ActionClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *ActionClient) Donate(ctx context.Context, caller Caller, p capability.DonateParams) (*ActionResult, error) {
	return c.post(ctx, "/internal/actions/donate", caller, p)
}

func (c *ActionClient) CreateCampaign(ctx context.Context, caller Caller, p capability.CreateCampaignParams) (*ActionResult, error) {
	return c.post(ctx, "/internal/actions/create-campaign", caller, p)
}

func (c *ActionClient) Withdraw(ctx context.Context, caller Caller, p capability.WithdrawParams) (*ActionResult, error) {
	return c.post(ctx, "/internal/actions/withdraw", caller, p)
}

func (c *ActionClient) SubmitReport(ctx context.Context, caller Caller, p capability.SubmitReportParams) (*ActionResult, error) {
	return c.post(ctx, "/internal/actions/submit-report", caller, p)
}

func (c *ActionClient) RegisterOrganization(ctx context.Context, caller Caller, p capability.RegisterOrganizationParams) (*ActionResult, error) {
	return c.post(ctx, "/internal/actions/register-organization", caller, p)
}

func (c *ActionClient) ChangeLanguage(ctx context.Context, caller Caller, p capability.ChangeLanguageParams) (*ActionResult, error) {
	return c.post(ctx, "/internal/actions/change-language", caller, p)
}

func (c *ActionClient) post(ctx context.Context, path string, caller Caller, params any) (*ActionResult, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal action request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build action request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Caller-ID", caller.UserID)
	req.Header.Set("X-Caller-Role", caller.Role)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("action request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("read action response: %w", err)
	}

	var result ActionResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parse action response (HTTP %d): %w", resp.StatusCode, err)
	}

	slog.Info("action handler call",
		"path", path,
		"caller", caller.UserID,
		"status", resp.StatusCode,
		"success", result.Success,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("action handler HTTP %d", resp.StatusCode)
	}
	return &result, nil
}
