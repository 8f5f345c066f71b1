package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kkkkikiki/donation/internal/model"
)

// Postgres is the durable store backend. Each unit of work maps onto one
// database transaction, which carries the atomic call boundary.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres creates a Postgres-backed store.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// schema is applied idempotently at startup.
const schema = `
CREATE TABLE IF NOT EXISTS ledger_meta (
	id          SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	initialized BOOLEAN NOT NULL DEFAULT FALSE,
	owner       TEXT NOT NULL DEFAULT ''
);

INSERT INTO ledger_meta (id) VALUES (1) ON CONFLICT DO NOTHING;

CREATE TABLE IF NOT EXISTS campaigns (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	description    TEXT NOT NULL,
	image_url      TEXT NOT NULL,
	category       TEXT NOT NULL,
	goal_amount    BIGINT NOT NULL,
	current_amount BIGINT NOT NULL,
	creator        TEXT NOT NULL,
	start_time     BIGINT NOT NULL,
	end_time       BIGINT NOT NULL,
	is_active      BOOLEAN NOT NULL,
	is_withdrawn   BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS donations (
	pos         BIGSERIAL PRIMARY KEY,
	campaign_id TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
	donor       TEXT NOT NULL,
	amount      BIGINT NOT NULL,
	donated_at  BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS campaign_index (
	pos         BIGSERIAL PRIMARY KEY,
	campaign_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_infos (
	identity      TEXT PRIMARY KEY,
	total_donated BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS user_campaigns (
	pos         BIGSERIAL PRIMARY KEY,
	identity    TEXT NOT NULL,
	campaign_id TEXT NOT NULL,
	relation    TEXT NOT NULL CHECK (relation IN ('created', 'donated'))
);
`

// EnsureSchema creates the ledger tables if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply ledger schema: %w", err)
	}
	return nil
}

// Begin opens a database transaction.
func (p *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &postgresTx{tx: tx}, nil
}

type postgresTx struct {
	tx *sqlx.Tx
}

func (t *postgresTx) Meta() (Meta, error) {
	var meta Meta
	err := t.tx.Get(&meta, `SELECT initialized, owner FROM ledger_meta WHERE id = 1`)
	if err != nil {
		return Meta{}, fmt.Errorf("failed to get ledger meta: %w", err)
	}
	return meta, nil
}

func (t *postgresTx) PutMeta(meta Meta) error {
	_, err := t.tx.Exec(`UPDATE ledger_meta SET initialized = $1, owner = $2 WHERE id = 1`,
		meta.Initialized, meta.Owner)
	if err != nil {
		return fmt.Errorf("failed to put ledger meta: %w", err)
	}
	return nil
}

func (t *postgresTx) Campaign(id string) (*model.Campaign, error) {
	query := `
		SELECT id, title, description, image_url, category, goal_amount,
		       current_amount, creator, start_time, end_time, is_active, is_withdrawn
		FROM campaigns
		WHERE id = $1
	`

	var campaign model.Campaign
	if err := t.tx.Get(&campaign, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	query = `
		SELECT donor, amount, donated_at
		FROM donations
		WHERE campaign_id = $1
		ORDER BY pos ASC
	`
	if err := t.tx.Select(&campaign.Donations, query, id); err != nil {
		return nil, fmt.Errorf("failed to get donations: %w", err)
	}

	return &campaign, nil
}

func (t *postgresTx) PutCampaign(c *model.Campaign) error {
	query := `
		INSERT INTO campaigns (id, title, description, image_url, category,
			goal_amount, current_amount, creator, start_time, end_time,
			is_active, is_withdrawn)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			image_url = EXCLUDED.image_url,
			category = EXCLUDED.category,
			goal_amount = EXCLUDED.goal_amount,
			current_amount = EXCLUDED.current_amount,
			is_active = EXCLUDED.is_active,
			is_withdrawn = EXCLUDED.is_withdrawn
	`

	_, err := t.tx.Exec(query,
		c.ID, c.Title, c.Description, c.ImageURL, c.Category,
		c.GoalAmount, c.CurrentAmount, c.Creator, c.StartTime, c.EndTime,
		c.IsActive, c.IsWithdrawn)
	if err != nil {
		return fmt.Errorf("failed to put campaign: %w", err)
	}

	// Donations are append-only: persist any entries beyond what the
	// donations table already holds.
	var stored int
	if err := t.tx.Get(&stored, `SELECT COUNT(*) FROM donations WHERE campaign_id = $1`, c.ID); err != nil {
		return fmt.Errorf("failed to count donations: %w", err)
	}
	for _, d := range c.Donations[stored:] {
		_, err := t.tx.Exec(`
			INSERT INTO donations (campaign_id, donor, amount, donated_at)
			VALUES ($1, $2, $3, $4)
		`, c.ID, d.Donor, d.Amount, d.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to insert donation: %w", err)
		}
	}

	return nil
}

func (t *postgresTx) DeleteCampaign(id string) error {
	if _, err := t.tx.Exec(`DELETE FROM campaigns WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	return nil
}

func (t *postgresTx) CampaignIDs() ([]string, error) {
	var ids []string
	err := t.tx.Select(&ids, `SELECT campaign_id FROM campaign_index ORDER BY pos ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaign index: %w", err)
	}
	return ids, nil
}

func (t *postgresTx) AppendCampaignID(id string) error {
	if _, err := t.tx.Exec(`INSERT INTO campaign_index (campaign_id) VALUES ($1)`, id); err != nil {
		return fmt.Errorf("failed to append campaign index: %w", err)
	}
	return nil
}

func (t *postgresTx) User(identity string) (model.UserInfo, error) {
	var info model.UserInfo

	err := t.tx.Get(&info.TotalDonated,
		`SELECT total_donated FROM user_infos WHERE identity = $1`, identity)
	if err != nil && err != sql.ErrNoRows {
		return model.UserInfo{}, fmt.Errorf("failed to get user info: %w", err)
	}

	query := `
		SELECT campaign_id
		FROM user_campaigns
		WHERE identity = $1 AND relation = $2
		ORDER BY pos ASC
	`
	if err := t.tx.Select(&info.CreatedCampaigns, query, identity, "created"); err != nil {
		return model.UserInfo{}, fmt.Errorf("failed to get created campaigns: %w", err)
	}
	if err := t.tx.Select(&info.DonatedCampaigns, query, identity, "donated"); err != nil {
		return model.UserInfo{}, fmt.Errorf("failed to get donated campaigns: %w", err)
	}

	return info, nil
}

func (t *postgresTx) PutUser(identity string, info model.UserInfo) error {
	query := `
		INSERT INTO user_infos (identity, total_donated)
		VALUES ($1, $2)
		ON CONFLICT (identity) DO UPDATE SET total_donated = EXCLUDED.total_donated
	`
	if _, err := t.tx.Exec(query, identity, info.TotalDonated); err != nil {
		return fmt.Errorf("failed to put user info: %w", err)
	}

	if _, err := t.tx.Exec(`DELETE FROM user_campaigns WHERE identity = $1`, identity); err != nil {
		return fmt.Errorf("failed to clear user campaigns: %w", err)
	}
	for _, id := range info.CreatedCampaigns {
		_, err := t.tx.Exec(`INSERT INTO user_campaigns (identity, campaign_id, relation) VALUES ($1, $2, $3)`,
			identity, id, "created")
		if err != nil {
			return fmt.Errorf("failed to insert created campaign: %w", err)
		}
	}
	for _, id := range info.DonatedCampaigns {
		_, err := t.tx.Exec(`INSERT INTO user_campaigns (identity, campaign_id, relation) VALUES ($1, $2, $3)`,
			identity, id, "donated")
		if err != nil {
			return fmt.Errorf("failed to insert donated campaign: %w", err)
		}
	}

	return nil
}

func (t *postgresTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *postgresTx) Rollback() error {
	return t.tx.Rollback()
}
