// Package platform is the boundary to the Tesfa donation platform: read-only
// queries against the domain store and delegated calls to the pre-existing
// domain action handlers. Validation, external-service calls, and
// persistence for writes live behind the action handlers, not here.
package platform

import (
	"context"
	"time"
)

// Caller identifies who is asking. Passed through to action handlers for
// authorization: the orchestration core performs no authorization itself.
type Caller struct {
	UserID   string
	Role     string // "donor", "agent", "org"
	Language string // stored preference, may be empty
}

// Campaign is a donation campaign as the read side sees it.
type Campaign struct {
	ID          int64
	Title       string
	Description string
	Category    string
	Goal        float64
	Raised      float64
	Currency    string
	Status      string
	OwnerID     string
	CreatedAt   time.Time
}

// Donation is a single donation record.
type Donation struct {
	ID            int64
	CampaignID    int64
	CampaignTitle string
	Amount        float64
	Currency      string
	DonorID       string
	CreatedAt     time.Time
}

// Stats summarizes fundraising progress, per campaign or platform-wide.
type Stats struct {
	CampaignID     int64 // 0 for platform-wide
	TotalRaised    float64
	DonationCount  int64
	ActiveCampaign int64 // number of active campaigns (platform-wide only)
	Goal           float64
	Currency       string
}

// SearchQuery narrows a campaign search.
type SearchQuery struct {
	Text     string
	Category string
	Limit    int
}

// Store is the read-only query interface over campaigns, donations and
// users. Read capabilities hit it directly for latency; writes never do.
type Store interface {
	SearchCampaigns(ctx context.Context, q SearchQuery) ([]Campaign, error)
	Campaign(ctx context.Context, id int64) (*Campaign, error)
	DonationsByUser(ctx context.Context, userID string, limit int) ([]Donation, error)
	Stats(ctx context.Context, campaignID int64) (*Stats, error)
	// UserLanguage returns the stored reply-language preference, "" if unset.
	UserLanguage(ctx context.Context, userID string) (string, error)
	Close()
}
