package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kkkkikiki/donation/internal/gateway"
	"github.com/kkkkikiki/donation/internal/metrics"
	"github.com/kkkkikiki/donation/internal/model"
	"github.com/kkkkikiki/donation/internal/notify"
	"github.com/kkkkikiki/donation/internal/store"
)

// DefaultMaxGoalAmount caps campaign goals when no limit is configured.
const DefaultMaxGoalAmount = 1_000_000_000_000

// Options configures a Service. Zero fields fall back to defaults.
type Options struct {
	// Notifier receives host-delegated notifications. Defaults to a no-op.
	Notifier notify.Notifier
	// Now supplies the host-assigned current time per call. Defaults to
	// time.Now.
	Now func() time.Time
	// CustodyAccount holds donated funds until withdrawal.
	CustodyAccount string
	// MaxGoalAmount caps campaign goals, in the smallest currency unit.
	MaxGoalAmount int64
}

// Service implements the ledger operations. It is the only component
// permitted to mutate the campaign store and user index, always within
// one store unit of work.
type Service struct {
	store    store.Store
	gateway  gateway.Gateway
	notifier notify.Notifier
	now      func() time.Time
	custody  string
	maxGoal  int64
}

// New creates a Service over a store and a value-transfer gateway.
func New(st store.Store, gw gateway.Gateway, opts Options) *Service {
	if opts.Notifier == nil {
		opts.Notifier = notify.Noop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CustodyAccount == "" {
		opts.CustodyAccount = "ledger-custody"
	}
	if opts.MaxGoalAmount <= 0 {
		opts.MaxGoalAmount = DefaultMaxGoalAmount
	}
	return &Service{
		store:    st,
		gateway:  gw,
		notifier: opts.Notifier,
		now:      opts.Now,
		custody:  opts.CustodyAccount,
		maxGoal:  opts.MaxGoalAmount,
	}
}

// CustodyAccount returns the identity holding donated funds.
func (s *Service) CustodyAccount() string {
	return s.custody
}

// record emits one duration observation per mutating operation,
// labelled success or failed.
func record(operation string, start time.Time, err *error) {
	status := "success"
	if *err != nil {
		status = "failed"
	}
	metrics.RecordOperation(operation, status, time.Since(start).Seconds())
}

// Initialize marks the ledger as initialized and records the calling
// identity as contract owner. It must be the first operation ever
// invoked; a second call fails with AlreadyInitialized.
func (s *Service) Initialize(ctx context.Context, caller string) (err error) {
	defer record("initialize", time.Now(), &err)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return Wrap(CodeStorage, "failed to begin unit of work", err)
	}
	defer tx.Rollback()

	meta, err := tx.Meta()
	if err != nil {
		return Wrap(CodeStorage, "failed to read ledger meta", err)
	}
	if meta.Initialized {
		return ErrAlreadyInitialized
	}

	if err := tx.PutMeta(store.Meta{Initialized: true, Owner: caller}); err != nil {
		return Wrap(CodeStorage, "failed to write ledger meta", err)
	}
	if err := tx.Commit(); err != nil {
		return Wrap(CodeStorage, "failed to commit", err)
	}
	return nil
}

// CreateCampaignInput carries the creation parameters. Duration is in
// seconds from the host-assigned creation time.
type CreateCampaignInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	Category    string `json:"category"`
	GoalAmount  int64  `json:"goal_amount"`
	Duration    int64  `json:"duration"`
}

// CreateCampaign stores a new campaign and returns its id. The id is
// derived from (title, creator, creation time) so it is reproducible
// and collision-resistant; deriving an id that already exists fails
// with CampaignExists rather than overwriting.
func (s *Service) CreateCampaign(ctx context.Context, caller string, in CreateCampaignInput) (id string, err error) {
	defer record("create_campaign", time.Now(), &err)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return "", Wrap(CodeStorage, "failed to begin unit of work", err)
	}
	defer tx.Rollback()

	if err := requireInitialized(tx); err != nil {
		return "", err
	}
	if in.Title == "" {
		return "", ErrInvalidTitle
	}
	if in.GoalAmount <= 0 {
		return "", ErrInvalidGoal
	}
	if in.GoalAmount > s.maxGoal {
		return "", E(CodeInvalidGoal, fmt.Sprintf("goal amount exceeds maximum of %d", s.maxGoal))
	}

	now := s.now().Unix()
	startTime := now
	endTime := now + in.Duration
	if endTime <= startTime {
		return "", ErrInvalidDuration
	}

	id = deriveCampaignID(in.Title, caller, now)
	existing, err := tx.Campaign(id)
	if err != nil {
		return "", Wrap(CodeStorage, "failed to read campaign", err)
	}
	if existing != nil {
		return "", ErrCampaignExists
	}

	campaign := &model.Campaign{
		ID:            id,
		Title:         in.Title,
		Description:   in.Description,
		ImageURL:      in.ImageURL,
		Category:      in.Category,
		GoalAmount:    in.GoalAmount,
		CurrentAmount: 0,
		Creator:       caller,
		StartTime:     startTime,
		EndTime:       endTime,
		IsActive:      true,
		IsWithdrawn:   false,
	}
	if err := tx.PutCampaign(campaign); err != nil {
		return "", Wrap(CodeStorage, "failed to write campaign", err)
	}
	if err := tx.AppendCampaignID(id); err != nil {
		return "", Wrap(CodeStorage, "failed to index campaign", err)
	}

	creator, err := tx.User(caller)
	if err != nil {
		return "", Wrap(CodeStorage, "failed to read user info", err)
	}
	creator.CreatedCampaigns = append(creator.CreatedCampaigns, id)
	if err := tx.PutUser(caller, creator); err != nil {
		return "", Wrap(CodeStorage, "failed to write user info", err)
	}

	if err := tx.Commit(); err != nil {
		return "", Wrap(CodeStorage, "failed to commit", err)
	}

	s.notifier.CampaignCreated(id, caller)
	return id, nil
}

// Donate moves amount from the donor to the ledger's custody account and
// records the donation. Every donation appends its own ledger entry;
// repeat donations to one campaign are never merged.
func (s *Service) Donate(ctx context.Context, caller, campaignID string, amount int64) (err error) {
	defer record("donate", time.Now(), &err)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return Wrap(CodeStorage, "failed to begin unit of work", err)
	}
	defer tx.Rollback()

	if err := requireInitialized(tx); err != nil {
		return err
	}

	campaign, err := tx.Campaign(campaignID)
	if err != nil {
		return Wrap(CodeStorage, "failed to read campaign", err)
	}
	if campaign == nil {
		return ErrCampaignNotFound
	}

	now := s.now().Unix()
	if !campaign.IsActive {
		return ErrCampaignNotActive
	}
	if now < campaign.StartTime {
		return ErrCampaignNotStarted
	}
	if now >= campaign.EndTime {
		return ErrCampaignEnded
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if campaign.GoalReached() {
		return ErrGoalReached
	}

	// The gateway call is the single external step of the operation. It
	// runs before any staged write is committed, so a failure aborts the
	// call with no partial effects.
	if err := s.gateway.Transfer(ctx, caller, s.custody, amount); err != nil {
		if errors.Is(err, gateway.ErrInsufficientBalance) {
			return Wrap(CodeInsufficientBalance, "insufficient balance", err)
		}
		return Wrap(CodeTransferFailed, "value transfer failed", err)
	}

	campaign.Donations = append(campaign.Donations, model.Donation{
		Donor:     caller,
		Amount:    amount,
		Timestamp: now,
	})
	campaign.CurrentAmount += amount
	if err := tx.PutCampaign(campaign); err != nil {
		return Wrap(CodeStorage, "failed to write campaign", err)
	}

	donor, err := tx.User(caller)
	if err != nil {
		return Wrap(CodeStorage, "failed to read user info", err)
	}
	if !donor.HasDonatedTo(campaignID) {
		donor.DonatedCampaigns = append(donor.DonatedCampaigns, campaignID)
	}
	donor.TotalDonated += amount
	if err := tx.PutUser(caller, donor); err != nil {
		return Wrap(CodeStorage, "failed to write user info", err)
	}

	if err := tx.Commit(); err != nil {
		return Wrap(CodeStorage, "failed to commit", err)
	}

	metrics.RecordDonation(amount)
	s.notifier.DonationMade(campaignID, caller, amount)
	return nil
}

// EditCampaignInput carries per-field updates. A nil pointer leaves the
// field unchanged; IsActive is not optional and always overwrites.
type EditCampaignInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	ImageURL    *string `json:"image_url"`
	Category    *string `json:"category"`
	GoalAmount  *int64  `json:"goal_amount"`
	IsActive    bool    `json:"is_active"`
}

// EditCampaign applies the supplied fields. Only the creator may edit;
// the campaign dates are never altered.
func (s *Service) EditCampaign(ctx context.Context, caller, campaignID string, in EditCampaignInput) (err error) {
	defer record("edit_campaign", time.Now(), &err)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return Wrap(CodeStorage, "failed to begin unit of work", err)
	}
	defer tx.Rollback()

	if err := requireInitialized(tx); err != nil {
		return err
	}

	campaign, err := tx.Campaign(campaignID)
	if err != nil {
		return Wrap(CodeStorage, "failed to read campaign", err)
	}
	if campaign == nil {
		return ErrCampaignNotFound
	}
	if campaign.Creator != caller {
		return ErrUnauthorized
	}

	if in.Title != nil {
		if *in.Title == "" {
			return ErrInvalidTitle
		}
		campaign.Title = *in.Title
	}
	if in.Description != nil {
		campaign.Description = *in.Description
	}
	if in.ImageURL != nil {
		campaign.ImageURL = *in.ImageURL
	}
	if in.Category != nil {
		campaign.Category = *in.Category
	}
	if in.GoalAmount != nil {
		if *in.GoalAmount <= 0 {
			return ErrInvalidGoal
		}
		if *in.GoalAmount > s.maxGoal {
			return E(CodeInvalidGoal, fmt.Sprintf("goal amount exceeds maximum of %d", s.maxGoal))
		}
		campaign.GoalAmount = *in.GoalAmount
	}
	campaign.IsActive = in.IsActive

	if err := tx.PutCampaign(campaign); err != nil {
		return Wrap(CodeStorage, "failed to write campaign", err)
	}
	if err := tx.Commit(); err != nil {
		return Wrap(CodeStorage, "failed to commit", err)
	}
	return nil
}

// DeleteCampaign removes the campaign from the store and from the
// creator's created list. Donors' donated lists keep their entries;
// readers tolerate the dangling ids.
func (s *Service) DeleteCampaign(ctx context.Context, caller, campaignID string) (err error) {
	defer record("delete_campaign", time.Now(), &err)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return Wrap(CodeStorage, "failed to begin unit of work", err)
	}
	defer tx.Rollback()

	if err := requireInitialized(tx); err != nil {
		return err
	}

	campaign, err := tx.Campaign(campaignID)
	if err != nil {
		return Wrap(CodeStorage, "failed to read campaign", err)
	}
	if campaign == nil {
		return ErrCampaignNotFound
	}
	if campaign.Creator != caller {
		return ErrUnauthorized
	}

	if err := tx.DeleteCampaign(campaignID); err != nil {
		return Wrap(CodeStorage, "failed to delete campaign", err)
	}

	creator, err := tx.User(caller)
	if err != nil {
		return Wrap(CodeStorage, "failed to read user info", err)
	}
	kept := creator.CreatedCampaigns[:0]
	for _, id := range creator.CreatedCampaigns {
		if id != campaignID {
			kept = append(kept, id)
		}
	}
	creator.CreatedCampaigns = kept
	if err := tx.PutUser(caller, creator); err != nil {
		return Wrap(CodeStorage, "failed to write user info", err)
	}

	if err := tx.Commit(); err != nil {
		return Wrap(CodeStorage, "failed to commit", err)
	}
	return nil
}

// WithdrawCampaignAmount moves the collected amount from custody to the
// creator once the campaign has ended. A second call fails with
// AlreadyWithdrawn and never double-pays.
func (s *Service) WithdrawCampaignAmount(ctx context.Context, caller, campaignID string) (amount int64, err error) {
	defer record("withdraw", time.Now(), &err)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return 0, Wrap(CodeStorage, "failed to begin unit of work", err)
	}
	defer tx.Rollback()

	if err := requireInitialized(tx); err != nil {
		return 0, err
	}

	campaign, err := tx.Campaign(campaignID)
	if err != nil {
		return 0, Wrap(CodeStorage, "failed to read campaign", err)
	}
	if campaign == nil {
		return 0, ErrCampaignNotFound
	}
	if campaign.Creator != caller {
		return 0, ErrUnauthorized
	}
	if s.now().Unix() < campaign.EndTime {
		return 0, ErrStillRunning
	}
	if campaign.IsWithdrawn {
		return 0, ErrAlreadyWithdrawn
	}

	amount = campaign.CurrentAmount
	if amount > 0 {
		if err := s.gateway.Transfer(ctx, s.custody, caller, amount); err != nil {
			if errors.Is(err, gateway.ErrInsufficientBalance) {
				return 0, Wrap(CodeInsufficientBalance, "custody balance insufficient", err)
			}
			return 0, Wrap(CodeTransferFailed, "value transfer failed", err)
		}
	}

	campaign.IsWithdrawn = true
	if err := tx.PutCampaign(campaign); err != nil {
		return 0, Wrap(CodeStorage, "failed to write campaign", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, Wrap(CodeStorage, "failed to commit", err)
	}

	s.notifier.FundsWithdrawn(campaignID, caller, amount)
	return amount, nil
}

func requireInitialized(tx store.Tx) error {
	meta, err := tx.Meta()
	if err != nil {
		return Wrap(CodeStorage, "failed to read ledger meta", err)
	}
	if !meta.Initialized {
		return ErrNotInitialized
	}
	return nil
}

// deriveCampaignID derives a stable id from the creation inputs. Hashing
// title alone would collide across campaigns sharing a title, so the
// creator and creation time are folded in.
func deriveCampaignID(title, creator string, createdAt int64) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(creator))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(createdAt, 10)))
	return hex.EncodeToString(h.Sum(nil))
}
