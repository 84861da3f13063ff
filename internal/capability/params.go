package capability

import (
	"fmt"
	"strings"
)

// Campaign categories understood by search. Closed set: the schema enum
// shown to the brain is generated from this list.
var Categories = []string{"water", "health", "education", "emergency", "agriculture", "other"}

// Languages the platform replies in.
var Languages = []string{"en", "am"}

// Params is a decoded, validated argument set for one capability.
// Each capability has its own struct; Validate runs before dispatch so a
// malformed brain-generated call never reaches a handler.
type Params interface {
	Validate() error
}

// ValidationError reports brain-supplied arguments that failed schema
// validation. It is fed back into the loop as an error tool result, never
// shown to the user.
type ValidationError struct {
	Capability string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Capability, e.Reason)
}

// --- Read capabilities ---

type SearchCampaignsParams struct {
	Query    string `json:"query,omitempty"`
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

func (p *SearchCampaignsParams) Validate() error {
	if p.Query == "" && p.Category == "" {
		return &ValidationError{"search_campaigns", "query or category is required"}
	}
	if p.Category != "" && !oneOf(p.Category, Categories) {
		return &ValidationError{"search_campaigns", "category must be one of " + strings.Join(Categories, ", ")}
	}
	if p.Limit < 0 || p.Limit > 25 {
		return &ValidationError{"search_campaigns", "limit must be between 0 and 25"}
	}
	return nil
}

type GetCampaignParams struct {
	CampaignID int64 `json:"campaign_id"`
}

func (p *GetCampaignParams) Validate() error {
	if p.CampaignID <= 0 {
		return &ValidationError{"get_campaign", "campaign_id must be positive"}
	}
	return nil
}

type DonationHistoryParams struct {
	Limit int `json:"limit,omitempty"`
}

func (p *DonationHistoryParams) Validate() error {
	if p.Limit < 0 || p.Limit > 50 {
		return &ValidationError{"donation_history", "limit must be between 0 and 50"}
	}
	return nil
}

type CampaignStatsParams struct {
	// CampaignID 0 means platform-wide stats.
	CampaignID int64 `json:"campaign_id,omitempty"`
}

func (p *CampaignStatsParams) Validate() error {
	if p.CampaignID < 0 {
		return &ValidationError{"campaign_stats", "campaign_id must not be negative"}
	}
	return nil
}

type HelpParams struct{}

func (p *HelpParams) Validate() error { return nil }

// --- Write capabilities ---

type DonateParams struct {
	CampaignID int64   `json:"campaign_id"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency,omitempty"`
	Anonymous  bool    `json:"anonymous,omitempty"`
}

func (p *DonateParams) Validate() error {
	if p.CampaignID <= 0 {
		return &ValidationError{"donate", "campaign_id must be positive"}
	}
	if p.Amount <= 0 {
		return &ValidationError{"donate", "amount must be positive"}
	}
	if p.Currency != "" && !oneOf(p.Currency, []string{"ETB", "USD"}) {
		return &ValidationError{"donate", "currency must be ETB or USD"}
	}
	return nil
}

type CreateCampaignParams struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Goal        float64 `json:"goal"`
}

func (p *CreateCampaignParams) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return &ValidationError{"create_campaign", "title is required"}
	}
	if strings.TrimSpace(p.Description) == "" {
		return &ValidationError{"create_campaign", "description is required"}
	}
	if !oneOf(p.Category, Categories) {
		return &ValidationError{"create_campaign", "category must be one of " + strings.Join(Categories, ", ")}
	}
	if p.Goal <= 0 {
		return &ValidationError{"create_campaign", "goal must be positive"}
	}
	return nil
}

type WithdrawParams struct {
	CampaignID int64   `json:"campaign_id"`
	Amount     float64 `json:"amount"`
}

func (p *WithdrawParams) Validate() error {
	if p.CampaignID <= 0 {
		return &ValidationError{"withdraw", "campaign_id must be positive"}
	}
	if p.Amount <= 0 {
		return &ValidationError{"withdraw", "amount must be positive"}
	}
	return nil
}

type SubmitReportParams struct {
	CampaignID int64  `json:"campaign_id"`
	Report     string `json:"report"`
}

func (p *SubmitReportParams) Validate() error {
	if p.CampaignID <= 0 {
		return &ValidationError{"submit_report", "campaign_id must be positive"}
	}
	if strings.TrimSpace(p.Report) == "" {
		return &ValidationError{"submit_report", "report is required"}
	}
	return nil
}

type RegisterOrganizationParams struct {
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email"`
}

func (p *RegisterOrganizationParams) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{"register_organization", "name is required"}
	}
	if !strings.Contains(p.ContactEmail, "@") {
		return &ValidationError{"register_organization", "contact_email must be an email address"}
	}
	return nil
}

type ChangeLanguageParams struct {
	Language string `json:"language"`
}

func (p *ChangeLanguageParams) Validate() error {
	if !oneOf(p.Language, Languages) {
		return &ValidationError{"change_language", "language must be one of " + strings.Join(Languages, ", ")}
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
