// Package store holds the campaign store and user index behind an atomic
// unit-of-work contract. A Tx spans exactly one ledger operation: either
// every staged write commits, or none does.
package store

import (
	"context"

	"github.com/kkkkikiki/donation/internal/model"
)

// Meta holds the ledger singletons.
type Meta struct {
	Initialized bool   `db:"initialized"`
	Owner       string `db:"owner"`
}

// Store opens atomic units of work against the ledger state.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one atomic unit of work. Reads observe committed state plus the
// tx's own staged writes. No validation logic lives here.
type Tx interface {
	// Meta returns the initialized flag and contract owner.
	Meta() (Meta, error)
	PutMeta(meta Meta) error

	// Campaign returns the campaign for id, or nil if absent.
	Campaign(id string) (*model.Campaign, error)
	PutCampaign(c *model.Campaign) error
	DeleteCampaign(id string) error

	// CampaignIDs enumerates the global campaign index in insertion
	// order. Deleted campaigns keep their index entry; readers skip ids
	// that no longer resolve.
	CampaignIDs() ([]string, error)
	AppendCampaignID(id string) error

	// User returns the user info for an identity, lazily defaulting to
	// an empty record.
	User(identity string) (model.UserInfo, error)
	PutUser(identity string, info model.UserInfo) error

	Commit() error
	Rollback() error
}
