package custody

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityEngine/internal/pool"
)

// ShareRegistry tracks fungible LP receipts per pool. Burns larger than the
// holding saturate at zero.
type ShareRegistry struct {
	mu     sync.Mutex
	shares map[common.Hash]map[common.Address]*uint256.Int
	total  map[common.Hash]*uint256.Int
}

var _ pool.ShareHook = (*ShareRegistry)(nil)

func NewShareRegistry() *ShareRegistry {
	return &ShareRegistry{
		shares: make(map[common.Hash]map[common.Address]*uint256.Int),
		total:  make(map[common.Hash]*uint256.Int),
	}
}

func (r *ShareRegistry) MintShare(poolID common.Hash, owner common.Address, liquidity *uint256.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	holders, ok := r.shares[poolID]
	if !ok {
		holders = make(map[common.Address]*uint256.Int)
		r.shares[poolID] = holders
	}
	holders[owner] = saturatingAdd(holders[owner], liquidity)
	r.total[poolID] = saturatingAdd(r.total[poolID], liquidity)
}

func (r *ShareRegistry) BurnShare(poolID common.Hash, owner common.Address, liquidity *uint256.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	holders, ok := r.shares[poolID]
	if !ok {
		return
	}
	held, ok := holders[owner]
	if !ok {
		return
	}
	burn := liquidity
	if burn.Gt(held) {
		burn = held
	}
	left := new(uint256.Int).Sub(held, burn)
	if left.IsZero() {
		delete(holders, owner)
	} else {
		holders[owner] = left
	}
	r.total[poolID] = new(uint256.Int).Sub(r.total[poolID], burn)
}

// Shares returns the receipts owner holds in poolID.
func (r *ShareRegistry) Shares(poolID common.Hash, owner common.Address) *uint256.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.shares[poolID][owner]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

// TotalShares returns every receipt outstanding for poolID.
func (r *ShareRegistry) TotalShares(poolID common.Hash) *uint256.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.total[poolID]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

func saturatingAdd(a, b *uint256.Int) *uint256.Int {
	if a == nil {
		return b.Clone()
	}
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return sum
}
