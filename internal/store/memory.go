package store

import (
	"context"
	"errors"
	"sync"

	"github.com/kkkkikiki/donation/internal/model"
)

// ErrTxDone is returned when a finished tx is used again.
var ErrTxDone = errors.New("store: transaction already finished")

// Memory is the in-process ledger state. Begin acquires the store lock,
// so calls execute one at a time to completion; that lock is the only
// concurrency control the ledger relies on.
type Memory struct {
	mu        sync.Mutex
	meta      Meta
	campaigns map[string]model.Campaign
	index     []string
	users     map[string]model.UserInfo
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		campaigns: make(map[string]model.Campaign),
		users:     make(map[string]model.UserInfo),
	}
}

// Begin opens a unit of work. The store lock is held until Commit or
// Rollback.
func (m *Memory) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	return &memoryTx{
		store:     m,
		campaigns: make(map[string]*model.Campaign),
		users:     make(map[string]model.UserInfo),
	}, nil
}

// memoryTx stages writes in overlay maps and applies them on Commit.
// A nil campaign entry in the overlay marks a staged delete.
type memoryTx struct {
	store     *Memory
	meta      *Meta
	campaigns map[string]*model.Campaign
	appended  []string
	users     map[string]model.UserInfo
	done      bool
}

func cloneCampaign(c model.Campaign) *model.Campaign {
	out := c
	out.Donations = make([]model.Donation, len(c.Donations))
	copy(out.Donations, c.Donations)
	return &out
}

func cloneUser(u model.UserInfo) model.UserInfo {
	out := u
	out.CreatedCampaigns = append([]string(nil), u.CreatedCampaigns...)
	out.DonatedCampaigns = append([]string(nil), u.DonatedCampaigns...)
	return out
}

func (t *memoryTx) Meta() (Meta, error) {
	if t.done {
		return Meta{}, ErrTxDone
	}
	if t.meta != nil {
		return *t.meta, nil
	}
	return t.store.meta, nil
}

func (t *memoryTx) PutMeta(meta Meta) error {
	if t.done {
		return ErrTxDone
	}
	t.meta = &meta
	return nil
}

func (t *memoryTx) Campaign(id string) (*model.Campaign, error) {
	if t.done {
		return nil, ErrTxDone
	}
	if staged, ok := t.campaigns[id]; ok {
		if staged == nil {
			return nil, nil
		}
		return cloneCampaign(*staged), nil
	}
	c, ok := t.store.campaigns[id]
	if !ok {
		return nil, nil
	}
	return cloneCampaign(c), nil
}

func (t *memoryTx) PutCampaign(c *model.Campaign) error {
	if t.done {
		return ErrTxDone
	}
	t.campaigns[c.ID] = cloneCampaign(*c)
	return nil
}

func (t *memoryTx) DeleteCampaign(id string) error {
	if t.done {
		return ErrTxDone
	}
	t.campaigns[id] = nil
	return nil
}

func (t *memoryTx) CampaignIDs() ([]string, error) {
	if t.done {
		return nil, ErrTxDone
	}
	ids := append([]string(nil), t.store.index...)
	return append(ids, t.appended...), nil
}

func (t *memoryTx) AppendCampaignID(id string) error {
	if t.done {
		return ErrTxDone
	}
	t.appended = append(t.appended, id)
	return nil
}

func (t *memoryTx) User(identity string) (model.UserInfo, error) {
	if t.done {
		return model.UserInfo{}, ErrTxDone
	}
	if staged, ok := t.users[identity]; ok {
		return cloneUser(staged), nil
	}
	return cloneUser(t.store.users[identity]), nil
}

func (t *memoryTx) PutUser(identity string, info model.UserInfo) error {
	if t.done {
		return ErrTxDone
	}
	t.users[identity] = cloneUser(info)
	return nil
}

func (t *memoryTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	if t.meta != nil {
		t.store.meta = *t.meta
	}
	for id, c := range t.campaigns {
		if c == nil {
			delete(t.store.campaigns, id)
			continue
		}
		t.store.campaigns[id] = *c
	}
	t.store.index = append(t.store.index, t.appended...)
	for identity, u := range t.users {
		t.store.users[identity] = u
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}
