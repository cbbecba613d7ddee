// Package custody keeps asset balances and LP share receipts in memory.
package custody

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityEngine/internal/pool"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBalanceOverflow     = errors.New("balance overflow")
)

// Ledger holds balances per asset and account. Transfers of one call are
// applied together or not at all.
type Ledger struct {
	mu       sync.Mutex
	balances map[common.Address]map[common.Address]*uint256.Int
}

var _ pool.Custody = (*Ledger)(nil)

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[common.Address]map[common.Address]*uint256.Int)}
}

// Mint credits amount of asset to account.
func (l *Ledger) Mint(asset, account common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.balance(asset, account)
	next, overflow := new(uint256.Int).AddOverflow(cur, amount)
	if overflow {
		return fmt.Errorf("%w: %s of %s", ErrBalanceOverflow, account.Hex(), asset.Hex())
	}
	l.set(asset, account, next)
	return nil
}

// Balance returns the balance of account in asset.
func (l *Ledger) Balance(asset, account common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(asset, account).Clone()
}

// Balance is one non-zero holding.
type Balance struct {
	Asset   common.Address
	Account common.Address
	Amount  *uint256.Int
}

// Balances lists every non-zero holding ordered by asset then account.
func (l *Ledger) Balances() []Balance {
	l.mu.Lock()
	var out []Balance
	for asset, accounts := range l.balances {
		for account, amount := range accounts {
			if !amount.IsZero() {
				out = append(out, Balance{Asset: asset, Account: account, Amount: amount.Clone()})
			}
		}
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Asset[:], out[j].Asset[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(out[i].Account[:], out[j].Account[:]) < 0
	})
	return out
}

type holding struct {
	asset   common.Address
	account common.Address
}

// Transfer applies moves atomically. Every move is checked against the
// balances that would result from the moves before it.
func (l *Ledger) Transfer(ctx context.Context, moves ...pool.Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	pending := make(map[holding]*big.Int)
	get := func(h holding) *big.Int {
		if v, ok := pending[h]; ok {
			return v
		}
		v := l.balance(h.asset, h.account).ToBig()
		pending[h] = v
		return v
	}
	for _, m := range moves {
		if m.Amount == nil || m.Amount.IsZero() {
			continue
		}
		amount := m.Amount.ToBig()
		from := get(holding{m.Asset, m.From})
		if from.Cmp(amount) < 0 {
			return fmt.Errorf("%w: %s holds %s of %s, needs %s",
				ErrInsufficientBalance, m.From.Hex(), from.String(), m.Asset.Hex(), amount.String())
		}
		from.Sub(from, amount)
		to := get(holding{m.Asset, m.To})
		to.Add(to, amount)
	}

	next := make(map[holding]*uint256.Int, len(pending))
	for h, v := range pending {
		u, overflow := uint256.FromBig(v)
		if overflow {
			return fmt.Errorf("%w: %s of %s", ErrBalanceOverflow, h.account.Hex(), h.asset.Hex())
		}
		next[h] = u
	}
	for h, v := range next {
		l.set(h.asset, h.account, v)
	}
	return nil
}

func (l *Ledger) balance(asset, account common.Address) *uint256.Int {
	if v, ok := l.balances[asset][account]; ok {
		return v
	}
	return new(uint256.Int)
}

func (l *Ledger) set(asset, account common.Address, v *uint256.Int) {
	accounts, ok := l.balances[asset]
	if !ok {
		accounts = make(map[common.Address]*uint256.Int)
		l.balances[asset] = accounts
	}
	accounts[account] = v
}
