package pool

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Transfer is one balance move requested from custody.
type Transfer struct {
	Asset  common.Address
	From   common.Address
	To     common.Address
	Amount *uint256.Int
}

// Custody moves balances. All transfers passed to one call must be applied
// together or not at all.
type Custody interface {
	Transfer(ctx context.Context, moves ...Transfer) error
}

// ShareHook is notified after liquidity changes are committed.
type ShareHook interface {
	MintShare(poolID common.Hash, owner common.Address, liquidity *uint256.Int)
	BurnShare(poolID common.Hash, owner common.Address, liquidity *uint256.Int)
}

type nopCustody struct{}

func (nopCustody) Transfer(context.Context, ...Transfer) error { return nil }

type nopShares struct{}

func (nopShares) MintShare(common.Hash, common.Address, *uint256.Int) {}
func (nopShares) BurnShare(common.Hash, common.Address, *uint256.Int) {}
