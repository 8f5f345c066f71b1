package ledger

import (
	"context"

	"github.com/kkkkikiki/donation/internal/model"
)

// Read queries are pure: they stage nothing and always roll back their
// unit of work. Every reader recomputes the derived active flag at read
// time and skips campaign ids that no longer resolve, so listings stay
// robust to deletions.

// IsInitialized reports whether Initialize has run.
func (s *Service) IsInitialized(ctx context.Context) (bool, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return false, Wrap(CodeStorage, "failed to begin unit of work", err)
	}
	defer tx.Rollback()

	meta, err := tx.Meta()
	if err != nil {
		return false, Wrap(CodeStorage, "failed to read ledger meta", err)
	}
	return meta.Initialized, nil
}

// GetCampaign returns one campaign with its donation ledger.
func (s *Service) GetCampaign(ctx context.Context, campaignID string) (*model.Campaign, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, Wrap(CodeStorage, "failed to begin unit of work", err)
	}
	defer tx.Rollback()

	campaign, err := tx.Campaign(campaignID)
	if err != nil {
		return nil, Wrap(CodeStorage, "failed to read campaign", err)
	}
	if campaign == nil {
		return nil, ErrCampaignNotFound
	}
	campaign.IsActive = campaign.ActiveAt(s.now().Unix())
	return campaign, nil
}

// GetCampaignsData enumerates all campaigns in creation order.
func (s *Service) GetCampaignsData(ctx context.Context) ([]model.Campaign, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, Wrap(CodeStorage, "failed to begin unit of work", err)
	}
	defer tx.Rollback()

	ids, err := tx.CampaignIDs()
	if err != nil {
		return nil, Wrap(CodeStorage, "failed to list campaign index", err)
	}

	now := s.now().Unix()
	campaigns := make([]model.Campaign, 0, len(ids))
	for _, id := range ids {
		campaign, err := tx.Campaign(id)
		if err != nil {
			return nil, Wrap(CodeStorage, "failed to read campaign", err)
		}
		if campaign == nil {
			// Deleted campaigns keep their index entry.
			continue
		}
		campaign.IsActive = campaign.ActiveAt(now)
		campaigns = append(campaigns, *campaign)
	}
	return campaigns, nil
}

// UserCampaigns groups the campaigns a user created and donated to.
type UserCampaigns struct {
	Created []model.Campaign `json:"created"`
	Donated []model.Campaign `json:"donated"`
}

// GetUsersCampaigns returns the campaigns referenced by a user's index
// entries, skipping ids deleted since they were recorded.
func (s *Service) GetUsersCampaigns(ctx context.Context, identity string) (*UserCampaigns, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, Wrap(CodeStorage, "failed to begin unit of work", err)
	}
	defer tx.Rollback()

	info, err := tx.User(identity)
	if err != nil {
		return nil, Wrap(CodeStorage, "failed to read user info", err)
	}

	now := s.now().Unix()
	out := &UserCampaigns{
		Created: make([]model.Campaign, 0, len(info.CreatedCampaigns)),
		Donated: make([]model.Campaign, 0, len(info.DonatedCampaigns)),
	}
	for _, id := range info.CreatedCampaigns {
		campaign, err := tx.Campaign(id)
		if err != nil {
			return nil, Wrap(CodeStorage, "failed to read campaign", err)
		}
		if campaign == nil {
			continue
		}
		campaign.IsActive = campaign.ActiveAt(now)
		out.Created = append(out.Created, *campaign)
	}
	for _, id := range info.DonatedCampaigns {
		campaign, err := tx.Campaign(id)
		if err != nil {
			return nil, Wrap(CodeStorage, "failed to read campaign", err)
		}
		if campaign == nil {
			continue
		}
		campaign.IsActive = campaign.ActiveAt(now)
		out.Donated = append(out.Donated, *campaign)
	}
	return out, nil
}

// UserDetails is the per-user aggregate view. DonatedByCampaign sums the
// user's donation entries per surviving campaign; the underlying ledger
// entries stay separate for auditability.
type UserDetails struct {
	Identity          string           `json:"identity"`
	CreatedCampaigns  []string         `json:"created_campaigns"`
	DonatedCampaigns  []string         `json:"donated_campaigns"`
	TotalDonated      int64            `json:"total_donated"`
	DonatedByCampaign map[string]int64 `json:"donated_by_campaign"`
}

// GetUserDetails returns a user's index entries and donation aggregates.
// Unknown identities yield an empty record.
func (s *Service) GetUserDetails(ctx context.Context, identity string) (*UserDetails, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, Wrap(CodeStorage, "failed to begin unit of work", err)
	}
	defer tx.Rollback()

	info, err := tx.User(identity)
	if err != nil {
		return nil, Wrap(CodeStorage, "failed to read user info", err)
	}

	details := &UserDetails{
		Identity:          identity,
		CreatedCampaigns:  info.CreatedCampaigns,
		DonatedCampaigns:  info.DonatedCampaigns,
		TotalDonated:      info.TotalDonated,
		DonatedByCampaign: make(map[string]int64),
	}
	for _, id := range info.DonatedCampaigns {
		campaign, err := tx.Campaign(id)
		if err != nil {
			return nil, Wrap(CodeStorage, "failed to read campaign", err)
		}
		if campaign == nil {
			continue
		}
		for _, d := range campaign.Donations {
			if d.Donor == identity {
				details.DonatedByCampaign[id] += d.Amount
			}
		}
	}
	return details, nil
}
