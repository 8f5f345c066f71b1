package model

// Campaign represents a fundraising campaign in the ledger
type Campaign struct {
	ID            string `db:"id" json:"id"`
	Title         string `db:"title" json:"title"`
	Description   string `db:"description" json:"description"`
	ImageURL      string `db:"image_url" json:"image_url"`
	Category      string `db:"category" json:"category"`
	GoalAmount    int64  `db:"goal_amount" json:"goal_amount"`
	CurrentAmount int64  `db:"current_amount" json:"current_amount"`
	Creator       string `db:"creator" json:"creator"`
	StartTime     int64  `db:"start_time" json:"start_time"` // unix seconds
	EndTime       int64  `db:"end_time" json:"end_time"`     // unix seconds
	IsActive      bool   `db:"is_active" json:"is_active"`
	IsWithdrawn   bool   `db:"is_withdrawn" json:"is_withdrawn"`

	Donations []Donation `json:"donations"`
}

// Donation is an immutable record of value contributed to a campaign
type Donation struct {
	Donor     string `db:"donor" json:"donor"`
	Amount    int64  `db:"amount" json:"amount"`
	Timestamp int64  `db:"donated_at" json:"timestamp"` // unix seconds
}

// ActiveAt reports whether the campaign should be presented as active at
// the given time. Time-based expiry is derived on read, never written back.
func (c *Campaign) ActiveAt(now int64) bool {
	return c.IsActive && now <= c.EndTime
}

// GoalReached reports whether the campaign has collected its goal amount.
func (c *Campaign) GoalReached() bool {
	return c.CurrentAmount >= c.GoalAmount
}

// UserInfo tracks a user's footprint across the ledger
type UserInfo struct {
	CreatedCampaigns []string `json:"created_campaigns"`
	DonatedCampaigns []string `json:"donated_campaigns"`
	TotalDonated     int64    `json:"total_donated"`
}

// HasDonatedTo reports whether the campaign id is already recorded in
// DonatedCampaigns.
func (u *UserInfo) HasDonatedTo(campaignID string) bool {
	for _, id := range u.DonatedCampaigns {
		if id == campaignID {
			return true
		}
	}
	return false
}
