package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultSearchLimit = 5

// PostgresStore is the production read-only Store over the platform's
// Postgres database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pgx pool and verifies the connection.
func NewPostgresStore(ctx context.Context, pgURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) SearchCampaigns(ctx context.Context, q SearchQuery) ([]Campaign, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, title, description, category, goal, raised, currency, status, owner_id, created_at
		FROM campaigns
		WHERE status = 'active'
		  AND ($1 = '' OR category = $1)
		  AND ($2 = '' OR title ILIKE '%' || $2 || '%' OR description ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC
		LIMIT $3
	`, q.Category, q.Text, limit)
	if err != nil {
		return nil, fmt.Errorf("search campaigns: %w", err)
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		var c Campaign
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.Category, &c.Goal,
			&c.Raised, &c.Currency, &c.Status, &c.OwnerID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Campaign(ctx context.Context, id int64) (*Campaign, error) {
	var c Campaign
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, description, category, goal, raised, currency, status, owner_id, created_at
		FROM campaigns WHERE id = $1
	`, id).Scan(&c.ID, &c.Title, &c.Description, &c.Category, &c.Goal,
		&c.Raised, &c.Currency, &c.Status, &c.OwnerID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("campaign %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) DonationsByUser(ctx context.Context, userID string, limit int) ([]Donation, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT d.id, d.campaign_id, c.title, d.amount, d.currency, d.donor_id, d.created_at
		FROM donations d
		JOIN campaigns c ON c.id = d.campaign_id
		WHERE d.donor_id = $1
		ORDER BY d.created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("donation history: %w", err)
	}
	defer rows.Close()

	var out []Donation
	for rows.Next() {
		var d Donation
		if err := rows.Scan(&d.ID, &d.CampaignID, &d.CampaignTitle, &d.Amount,
			&d.Currency, &d.DonorID, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context, campaignID int64) (*Stats, error) {
	st := Stats{CampaignID: campaignID, Currency: "ETB"}
	if campaignID > 0 {
		err := s.pool.QueryRow(ctx, `
			SELECT c.goal, c.currency, COALESCE(SUM(d.amount), 0), COUNT(d.id)
			FROM campaigns c
			LEFT JOIN donations d ON d.campaign_id = c.id
			WHERE c.id = $1
			GROUP BY c.goal, c.currency
		`, campaignID).Scan(&st.Goal, &st.Currency, &st.TotalRaised, &st.DonationCount)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("campaign %d not found", campaignID)
		}
		if err != nil {
			return nil, fmt.Errorf("campaign stats: %w", err)
		}
		return &st, nil
	}

	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0), COUNT(id),
		       (SELECT COUNT(*) FROM campaigns WHERE status = 'active')
		FROM donations
	`).Scan(&st.TotalRaised, &st.DonationCount, &st.ActiveCampaign)
	if err != nil {
		return nil, fmt.Errorf("platform stats: %w", err)
	}
	return &st, nil
}

func (s *PostgresStore) UserLanguage(ctx context.Context, userID string) (string, error) {
	var lang string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(language, '') FROM users WHERE id = $1`, userID).Scan(&lang)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("user language: %w", err)
	}
	return lang, nil
}
