// Package gateway defines the value-transfer primitive the ledger calls
// to move funds between accounts. The ledger trusts the gateway to
// succeed or fail synchronously; a failure aborts the whole operation.
package gateway

import (
	"context"
	"errors"
)

// ErrInsufficientBalance reports that the source account lacks funds.
var ErrInsufficientBalance = errors.New("gateway: insufficient balance")

// Gateway moves value between accounts on the ledger's behalf.
type Gateway interface {
	// Balance returns the current balance of an account.
	Balance(ctx context.Context, account string) (int64, error)

	// Transfer moves amount from one account to another. It returns
	// ErrInsufficientBalance when the source cannot cover the amount.
	Transfer(ctx context.Context, from, to string, amount int64) error
}
