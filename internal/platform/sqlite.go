package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a file-backed Store for local development and tests,
// schema-compatible with the Postgres read side.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite domain store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS campaigns (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category    TEXT NOT NULL DEFAULT 'other',
			goal        REAL NOT NULL DEFAULT 0,
			raised      REAL NOT NULL DEFAULT 0,
			currency    TEXT NOT NULL DEFAULT 'ETB',
			status      TEXT NOT NULL DEFAULT 'active',
			owner_id    TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS donations (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			campaign_id INTEGER NOT NULL,
			amount      REAL NOT NULL,
			currency    TEXT NOT NULL DEFAULT 'ETB',
			donor_id    TEXT NOT NULL,
			created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS users (
			id       TEXT PRIMARY KEY,
			language TEXT
		);
	`)
	if err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() {
	s.db.Close()
}

// DB exposes the underlying handle for test seeding.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) SearchCampaigns(ctx context.Context, q SearchQuery) ([]Campaign, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, category, goal, raised, currency, status, owner_id, created_at
		FROM campaigns
		WHERE status = 'active'
		  AND (? = '' OR category = ?)
		  AND (? = '' OR title LIKE '%' || ? || '%' OR description LIKE '%' || ? || '%')
		ORDER BY created_at DESC
		LIMIT ?
	`, q.Category, q.Category, q.Text, q.Text, q.Text, limit)
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

func (s *SQLiteStore) Campaign(ctx context.Context, id int64) (*Campaign, error) {
	var c Campaign
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, category, goal, raised, currency, status, owner_id, created_at
		FROM campaigns WHERE id = ?
	`, id).Scan(&c.ID, &c.Title, &c.Description, &c.Category, &c.Goal,
		&c.Raised, &c.Currency, &c.Status, &c.OwnerID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("campaign %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) DonationsByUser(ctx context.Context, userID string, limit int) ([]Donation, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.campaign_id, c.title, d.amount, d.currency, d.donor_id, d.created_at
		FROM donations d
		JOIN campaigns c ON c.id = d.campaign_id
		WHERE d.donor_id = ?
		ORDER BY d.created_at DESC
		LIMIT ?
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

func (s *SQLiteStore) Stats(ctx context.Context, campaignID int64) (*Stats, error) {
	st := Stats{CampaignID: campaignID, Currency: "ETB"}
	if campaignID > 0 {
		err := s.db.QueryRowContext(ctx, `
			SELECT c.goal, c.currency, COALESCE(SUM(d.amount), 0), COUNT(d.id)
			FROM campaigns c
			LEFT JOIN donations d ON d.campaign_id = c.id
			WHERE c.id = ?
			GROUP BY c.goal, c.currency
		`, campaignID).Scan(&st.Goal, &st.Currency, &st.TotalRaised, &st.DonationCount)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("campaign %d not found", campaignID)
		}
		if err != nil {
			return nil, fmt.Errorf("campaign stats: %w", err)
		}
		return &st, nil
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0), COUNT(id),
		       (SELECT COUNT(*) FROM campaigns WHERE status = 'active')
		FROM donations
	`).Scan(&st.TotalRaised, &st.DonationCount, &st.ActiveCampaign)
	if err != nil {
		return nil, fmt.Errorf("platform stats: %w", err)
	}
	return &st, nil
}

func (s *SQLiteStore) UserLanguage(ctx context.Context, userID string) (string, error) {
	var lang sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT language FROM users WHERE id = ?`, userID).Scan(&lang)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("user language: %w", err)
	}
	return lang.String, nil
}
