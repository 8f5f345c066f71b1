package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kkkkikiki/donation/internal/gateway"
	"github.com/kkkkikiki/donation/internal/store"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newFixture(t *testing.T) (*Service, *gateway.Bank, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	bank := gateway.NewBank()
	svc := New(store.NewMemory(), bank, Options{
		Now:            clock.Now,
		CustodyAccount: "custody",
	})
	return svc, bank, clock
}

func initialized(t *testing.T) (*Service, *gateway.Bank, *fakeClock) {
	t.Helper()
	svc, bank, clock := newFixture(t)
	if err := svc.Initialize(context.Background(), "owner"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return svc, bank, clock
}

func mustCreate(t *testing.T, svc *Service, creator string, in CreateCampaignInput) string {
	t.Helper()
	id, err := svc.CreateCampaign(context.Background(), creator, in)
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return id
}

func TestInitializeOnce(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	if err := svc.Initialize(ctx, "owner"); err != nil {
		t.Fatalf("first initialize: %v", err)
	}
	ok, err := svc.IsInitialized(ctx)
	if err != nil || !ok {
		t.Fatalf("expected initialized, got %v %v", ok, err)
	}
	if err := svc.Initialize(ctx, "other"); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected AlreadyInitialized, got %v", err)
	}
}

func TestMutationsRequireInitialize(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	if _, err := svc.CreateCampaign(ctx, "alice", CreateCampaignInput{Title: "x", GoalAmount: 1, Duration: 60}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("create: expected NotInitialized, got %v", err)
	}
	if err := svc.Donate(ctx, "alice", "missing", 1); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("donate: expected NotInitialized, got %v", err)
	}
	if err := svc.EditCampaign(ctx, "alice", "missing", EditCampaignInput{IsActive: true}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("edit: expected NotInitialized, got %v", err)
	}
	if err := svc.DeleteCampaign(ctx, "alice", "missing"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("delete: expected NotInitialized, got %v", err)
	}
	if _, err := svc.WithdrawCampaignAmount(ctx, "alice", "missing"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("withdraw: expected NotInitialized, got %v", err)
	}
}

func TestCreateCampaignDefaults(t *testing.T) {
	svc, _, clock := initialized(t)
	ctx := context.Background()

	in := CreateCampaignInput{
		Title:       "Clean Water",
		Description: "wells for the village",
		ImageURL:    "https://img.example/water.png",
		Category:    "community",
		GoalAmount:  1000,
		Duration:    3600,
	}
	id := mustCreate(t, svc, "alice", in)

	c, err := svc.GetCampaign(ctx, id)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if c.Title != in.Title || c.Description != in.Description || c.ImageURL != in.ImageURL || c.Category != in.Category {
		t.Fatalf("campaign fields do not match input: %+v", c)
	}
	if c.GoalAmount != in.GoalAmount {
		t.Fatalf("expected goal %d, got %d", in.GoalAmount, c.GoalAmount)
	}
	if c.CurrentAmount != 0 {
		t.Fatalf("expected zero current amount, got %d", c.CurrentAmount)
	}
	if !c.IsActive || c.IsWithdrawn {
		t.Fatalf("expected active, not withdrawn: %+v", c)
	}
	if c.Creator != "alice" {
		t.Fatalf("expected creator alice, got %q", c.Creator)
	}
	start := clock.Now().Unix()
	if c.StartTime != start || c.EndTime != start+in.Duration {
		t.Fatalf("unexpected window: start=%d end=%d", c.StartTime, c.EndTime)
	}

	details, err := svc.GetUserDetails(ctx, "alice")
	if err != nil {
		t.Fatalf("get user details: %v", err)
	}
	if len(details.CreatedCampaigns) != 1 || details.CreatedCampaigns[0] != id {
		t.Fatalf("expected created campaigns [%s], got %v", id, details.CreatedCampaigns)
	}
}

func TestCreateCampaignValidation(t *testing.T) {
	svc, _, _ := initialized(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateCampaignInput
		want error
	}{
		{"empty title", CreateCampaignInput{GoalAmount: 10, Duration: 60}, ErrInvalidTitle},
		{"zero goal", CreateCampaignInput{Title: "x", Duration: 60}, ErrInvalidGoal},
		{"negative goal", CreateCampaignInput{Title: "x", GoalAmount: -5, Duration: 60}, ErrInvalidGoal},
		{"goal above maximum", CreateCampaignInput{Title: "x", GoalAmount: DefaultMaxGoalAmount + 1, Duration: 60}, ErrInvalidGoal},
		{"zero duration", CreateCampaignInput{Title: "x", GoalAmount: 10}, ErrInvalidDuration},
		{"negative duration", CreateCampaignInput{Title: "x", GoalAmount: 10, Duration: -60}, ErrInvalidDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateCampaign(ctx, "alice", tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateCampaignIDCollision(t *testing.T) {
	svc, _, _ := initialized(t)
	ctx := context.Background()

	in := CreateCampaignInput{Title: "same", GoalAmount: 10, Duration: 60}
	if _, err := svc.CreateCampaign(ctx, "alice", in); err != nil {
		t.Fatalf("first create: %v", err)
	}
	// The clock is frozen, so (title, creator, time) repeats exactly.
	if _, err := svc.CreateCampaign(ctx, "alice", in); !errors.Is(err, ErrCampaignExists) {
		t.Fatalf("expected CampaignExists, got %v", err)
	}
	// Another creator derives a different id from the same title.
	if _, err := svc.CreateCampaign(ctx, "bob", in); err != nil {
		t.Fatalf("create by other creator: %v", err)
	}
}

func TestDonateAccumulatesExactly(t *testing.T) {
	svc, bank, _ := initialized(t)
	ctx := context.Background()

	bank.Credit("dana", 1000)
	id := mustCreate(t, svc, "alice", CreateCampaignInput{Title: "t", GoalAmount: 1000, Duration: 3600})

	amounts := []int64{100, 250, 50}
	var sum int64
	for _, a := range amounts {
		if err := svc.Donate(ctx, "dana", id, a); err != nil {
			t.Fatalf("donate %d: %v", a, err)
		}
		sum += a
	}

	c, err := svc.GetCampaign(ctx, id)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if c.CurrentAmount != sum {
		t.Fatalf("expected current amount %d, got %d", sum, c.CurrentAmount)
	}
	if len(c.Donations) != len(amounts) {
		t.Fatalf("expected %d ledger entries, got %d", len(amounts), len(c.Donations))
	}
	for i, d := range c.Donations {
		if d.Amount != amounts[i] || d.Donor != "dana" {
			t.Fatalf("entry %d: %+v", i, d)
		}
	}

	custody, _ := bank.Balance(ctx, "custody")
	if custody != sum {
		t.Fatalf("expected custody balance %d, got %d", sum, custody)
	}
	remaining, _ := bank.Balance(ctx, "dana")
	if remaining != 1000-sum {
		t.Fatalf("expected donor balance %d, got %d", 1000-sum, remaining)
	}

	details, err := svc.GetUserDetails(ctx, "dana")
	if err != nil {
		t.Fatalf("get user details: %v", err)
	}
	if details.TotalDonated != sum {
		t.Fatalf("expected total donated %d, got %d", sum, details.TotalDonated)
	}
	// Repeat donations record one index entry but aggregate fully.
	if len(details.DonatedCampaigns) != 1 || details.DonatedCampaigns[0] != id {
		t.Fatalf("expected donated campaigns [%s], got %v", id, details.DonatedCampaigns)
	}
	if details.DonatedByCampaign[id] != sum {
		t.Fatalf("expected per-campaign aggregate %d, got %d", sum, details.DonatedByCampaign[id])
	}
}

func TestDonatePreconditions(t *testing.T) {
	svc, bank, clock := initialized(t)
	ctx := context.Background()

	bank.Credit("dana", 10_000)
	id := mustCreate(t, svc, "alice", CreateCampaignInput{Title: "t", GoalAmount: 1000, Duration: 3600})

	if err := svc.Donate(ctx, "dana", "missing", 10); !errors.Is(err, ErrCampaignNotFound) {
		t.Fatalf("expected CampaignNotFound, got %v", err)
	}
	if err := svc.Donate(ctx, "dana", id, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected InvalidAmount for zero, got %v", err)
	}
	if err := svc.Donate(ctx, "dana", id, -5); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected InvalidAmount for negative, got %v", err)
	}

	// Deactivated by the creator.
	if err := svc.EditCampaign(ctx, "alice", id, EditCampaignInput{IsActive: false}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := svc.Donate(ctx, "dana", id, 10); !errors.Is(err, ErrCampaignNotActive) {
		t.Fatalf("expected CampaignNotActive, got %v", err)
	}
	if err := svc.EditCampaign(ctx, "alice", id, EditCampaignInput{IsActive: true}); err != nil {
		t.Fatalf("reactivate: %v", err)
	}

	// Before the start of the window.
	clock.Advance(-time.Hour)
	if err := svc.Donate(ctx, "dana", id, 10); !errors.Is(err, ErrCampaignNotStarted) {
		t.Fatalf("expected CampaignNotStarted, got %v", err)
	}
	clock.Advance(time.Hour)

	// Exactly at endTime the donation is rejected.
	clock.Advance(3600 * time.Second)
	if err := svc.Donate(ctx, "dana", id, 10); !errors.Is(err, ErrCampaignEnded) {
		t.Fatalf("expected CampaignEnded at boundary, got %v", err)
	}

	// One second before endTime it is accepted.
	clock.Advance(-time.Second)
	if err := svc.Donate(ctx, "dana", id, 10); err != nil {
		t.Fatalf("donate inside window: %v", err)
	}
}

func TestDonateInsufficientBalanceLeavesStateUntouched(t *testing.T) {
	svc, bank, _ := initialized(t)
	ctx := context.Background()

	id := mustCreate(t, svc, "alice", CreateCampaignInput{Title: "t", GoalAmount: 1000, Duration: 3600})

	err := svc.Donate(ctx, "poor", id, 10)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}

	c, err := svc.GetCampaign(ctx, id)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if c.CurrentAmount != 0 || len(c.Donations) != 0 {
		t.Fatalf("expected untouched campaign, got %+v", c)
	}
	details, err := svc.GetUserDetails(ctx, "poor")
	if err != nil {
		t.Fatalf("get user details: %v", err)
	}
	if details.TotalDonated != 0 || len(details.DonatedCampaigns) != 0 {
		t.Fatalf("expected untouched user info, got %+v", details)
	}
	custody, _ := bank.Balance(ctx, "custody")
	if custody != 0 {
		t.Fatalf("expected empty custody, got %d", custody)
	}
}

func TestDonateRejectedOnceGoalReached(t *testing.T) {
	svc, bank, _ := initialized(t)
	ctx := context.Background()

	bank.Credit("dana", 10_000)
	id := mustCreate(t, svc, "alice", CreateCampaignInput{Title: "t", GoalAmount: 100, Duration: 3600})

	if err := svc.Donate(ctx, "dana", id, 60); err != nil {
		t.Fatalf("first donation: %v", err)
	}
	// The donation crossing the goal may overshoot and is accepted.
	if err := svc.Donate(ctx, "dana", id, 60); err != nil {
		t.Fatalf("goal-crossing donation: %v", err)
	}
	// Nothing is accepted after the goal is reached.
	if err := svc.Donate(ctx, "dana", id, 1); !errors.Is(err, ErrGoalReached) {
		t.Fatalf("expected GoalReached, got %v", err)
	}

	c, err := svc.GetCampaign(ctx, id)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if c.CurrentAmount != 120 {
		t.Fatalf("expected 120, got %d", c.CurrentAmount)
	}
}

func TestEditCampaignFieldSentinels(t *testing.T) {
	svc, _, _ := initialized(t)
	ctx := context.Background()

	id := mustCreate(t, svc, "alice", CreateCampaignInput{
		Title:       "orig title",
		Description: "orig description",
		ImageURL:    "orig.png",
		Category:    "orig",
		GoalAmount:  500,
		Duration:    3600,
	})
	before, err := svc.GetCampaign(ctx, id)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}

	newTitle := "new title"
	newGoal := int64(900)
	err = svc.EditCampaign(ctx, "alice", id, EditCampaignInput{
		Title:      &newTitle,
		GoalAmount: &newGoal,
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}

	after, err := svc.GetCampaign(ctx, id)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if after.Title != newTitle || after.GoalAmount != newGoal {
		t.Fatalf("supplied fields not applied: %+v", after)
	}
	if after.Description != before.Description || after.ImageURL != before.ImageURL || after.Category != before.Category {
		t.Fatalf("nil fields must stay unchanged: %+v", after)
	}
	if after.StartTime != before.StartTime || after.EndTime != before.EndTime {
		t.Fatalf("edit must never alter dates: %+v", after)
	}

	// IsActive is not optional: it always overwrites.
	if err := svc.EditCampaign(ctx, "alice", id, EditCampaignInput{IsActive: false}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	deactivated, err := svc.GetCampaign(ctx, id)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if deactivated.IsActive {
		t.Fatalf("expected inactive campaign")
	}

	empty := ""
	if err := svc.EditCampaign(ctx, "alice", id, EditCampaignInput{Title: &empty, IsActive: true}); !errors.Is(err, ErrInvalidTitle) {
		t.Fatalf("expected InvalidTitle, got %v", err)
	}
	badGoal := int64(0)
	if err := svc.EditCampaign(ctx, "alice", id, EditCampaignInput{GoalAmount: &badGoal, IsActive: true}); !errors.Is(err, ErrInvalidGoal) {
		t.Fatalf("expected InvalidGoal, got %v", err)
	}
}

func TestOnlyCreatorMayMutate(t *testing.T) {
	svc, _, clock := initialized(t)
	ctx := context.Background()

	id := mustCreate(t, svc, "alice", CreateCampaignInput{Title: "t", GoalAmount: 100, Duration: 3600})
	before, err := svc.GetCampaign(ctx, id)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}

	title := "hijacked"
	if err := svc.EditCampaign(ctx, "mallory", id, EditCampaignInput{Title: &title, IsActive: false}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("edit: expected Unauthorized, got %v", err)
	}
	if err := svc.DeleteCampaign(ctx, "mallory", id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("delete: expected Unauthorized, got %v", err)
	}
	clock.Advance(2 * time.Hour)
	if _, err := svc.WithdrawCampaignAmount(ctx, "mallory", id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("withdraw: expected Unauthorized, got %v", err)
	}

	after, err := svc.GetCampaign(ctx, id)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if after.Title != before.Title || after.GoalAmount != before.GoalAmount ||
		after.Creator != before.Creator || after.IsWithdrawn || len(after.Donations) != 0 {
		t.Fatalf("campaign changed by unauthorized caller:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestWithdrawLifecycle(t *testing.T) {
	svc, bank, clock := initialized(t)
	ctx := context.Background()

	bank.Credit("dana", 1000)
	id := mustCreate(t, svc, "alice", CreateCampaignInput{
		Title:      "spec scenario",
		GoalAmount: 1000,
		Duration:   30 * 24 * 3600, // 30 days
	})

	if err := svc.Donate(ctx, "dana", id, 400); err != nil {
		t.Fatalf("donate: %v", err)
	}
	if err := svc.Donate(ctx, "dana", id, 400); err != nil {
		t.Fatalf("donate: %v", err)
	}
	c, err := svc.GetCampaign(ctx, id)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if c.CurrentAmount != 800 {
		t.Fatalf("expected 800, got %d", c.CurrentAmount)
	}

	// Still running: withdrawal is rejected.
	if _, err := svc.WithdrawCampaignAmount(ctx, "alice", id); !errors.Is(err, ErrStillRunning) {
		t.Fatalf("expected CampaignStillRunning, got %v", err)
	}

	clock.Advance(31 * 24 * time.Hour)

	amount, err := svc.WithdrawCampaignAmount(ctx, "alice", id)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount != 800 {
		t.Fatalf("expected withdrawal of 800, got %d", amount)
	}
	creatorBalance, _ := bank.Balance(ctx, "alice")
	if creatorBalance != 800 {
		t.Fatalf("expected creator balance 800, got %d", creatorBalance)
	}

	c, err = svc.GetCampaign(ctx, id)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if !c.IsWithdrawn {
		t.Fatalf("expected withdrawn flag set")
	}

	// A second withdrawal never double-pays.
	if _, err := svc.WithdrawCampaignAmount(ctx, "alice", id); !errors.Is(err, ErrAlreadyWithdrawn) {
		t.Fatalf("expected AlreadyWithdrawn, got %v", err)
	}
	creatorBalance, _ = bank.Balance(ctx, "alice")
	if creatorBalance != 800 {
		t.Fatalf("creator balance changed on failed withdrawal: %d", creatorBalance)
	}
}

func TestDeleteToleratedByReaders(t *testing.T) {
	svc, bank, _ := initialized(t)
	ctx := context.Background()

	bank.Credit("dana", 1000)
	keep := mustCreate(t, svc, "alice", CreateCampaignInput{Title: "keep", GoalAmount: 100, Duration: 3600})
	gone := mustCreate(t, svc, "alice", CreateCampaignInput{Title: "gone", GoalAmount: 100, Duration: 3600})

	if err := svc.Donate(ctx, "dana", gone, 50); err != nil {
		t.Fatalf("donate: %v", err)
	}
	if err := svc.DeleteCampaign(ctx, "alice", gone); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := svc.GetCampaign(ctx, gone); !errors.Is(err, ErrCampaignNotFound) {
		t.Fatalf("expected CampaignNotFound, got %v", err)
	}

	all, err := svc.GetCampaignsData(ctx)
	if err != nil {
		t.Fatalf("list campaigns: %v", err)
	}
	if len(all) != 1 || all[0].ID != keep {
		t.Fatalf("expected only %s, got %+v", keep, all)
	}

	// The donor's index still references the deleted id; readers skip it.
	details, err := svc.GetUserDetails(ctx, "dana")
	if err != nil {
		t.Fatalf("get user details: %v", err)
	}
	if len(details.DonatedCampaigns) != 1 || details.DonatedCampaigns[0] != gone {
		t.Fatalf("expected dangling donated entry, got %v", details.DonatedCampaigns)
	}
	if len(details.DonatedByCampaign) != 0 {
		t.Fatalf("expected no aggregate for deleted campaign, got %v", details.DonatedByCampaign)
	}

	campaigns, err := svc.GetUsersCampaigns(ctx, "dana")
	if err != nil {
		t.Fatalf("get users campaigns: %v", err)
	}
	if len(campaigns.Donated) != 0 {
		t.Fatalf("expected deleted campaign skipped, got %+v", campaigns.Donated)
	}

	creator, err := svc.GetUserDetails(ctx, "alice")
	if err != nil {
		t.Fatalf("get creator details: %v", err)
	}
	if len(creator.CreatedCampaigns) != 1 || creator.CreatedCampaigns[0] != keep {
		t.Fatalf("expected created campaigns [%s], got %v", keep, creator.CreatedCampaigns)
	}
}

func TestReadsDeriveActiveFromTime(t *testing.T) {
	svc, _, clock := initialized(t)
	ctx := context.Background()

	id := mustCreate(t, svc, "alice", CreateCampaignInput{Title: "t", GoalAmount: 100, Duration: 3600})

	c, err := svc.GetCampaign(ctx, id)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if !c.IsActive {
		t.Fatalf("expected active before end")
	}

	clock.Advance(2 * time.Hour)
	c, err = svc.GetCampaign(ctx, id)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if c.IsActive {
		t.Fatalf("expected derived inactive after end")
	}

	all, err := svc.GetCampaignsData(ctx)
	if err != nil {
		t.Fatalf("list campaigns: %v", err)
	}
	if len(all) != 1 || all[0].IsActive {
		t.Fatalf("expected derived inactive in listing, got %+v", all)
	}
}

func TestCampaignEnumerationOrder(t *testing.T) {
	svc, _, clock := initialized(t)
	ctx := context.Background()

	var want []string
	for _, title := range []string{"a", "b", "c"} {
		want = append(want, mustCreate(t, svc, "alice", CreateCampaignInput{Title: title, GoalAmount: 10, Duration: 7200}))
		clock.Advance(time.Second)
	}

	all, err := svc.GetCampaignsData(ctx)
	if err != nil {
		t.Fatalf("list campaigns: %v", err)
	}
	if len(all) != len(want) {
		t.Fatalf("expected %d campaigns, got %d", len(want), len(all))
	}
	for i, c := range all {
		if c.ID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], c.ID)
		}
	}
}
