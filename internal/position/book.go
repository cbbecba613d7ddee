// Package position tracks liquidity provider ranges and the fees owed to them.
package position

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityEngine/internal/fixedpoint"
)

var (
	ErrInvalidRange          = errors.New("invalid tick range")
	ErrPositionNotFound      = errors.New("position not found")
	ErrInsufficientLiquidity = errors.New("insufficient position liquidity")
)

// Key identifies a position.
type Key struct {
	Owner     common.Address
	TickLower int32
	TickUpper int32
}

func (k Key) String() string {
	return fmt.Sprintf("%s[%d,%d)", k.Owner.Hex(), k.TickLower, k.TickUpper)
}

// Position is the state of one owner's liquidity in one range.
type Position struct {
	Key                  Key
	Liquidity            *uint256.Int
	FeeGrowthInsideLastA *uint256.Int
	FeeGrowthInsideLastB *uint256.Int
	TokensOwedA          *uint256.Int
	TokensOwedB          *uint256.Int
}

// Clone returns a deep copy.
func (p *Position) Clone() *Position {
	return &Position{
		Key:                  p.Key,
		Liquidity:            p.Liquidity.Clone(),
		FeeGrowthInsideLastA: p.FeeGrowthInsideLastA.Clone(),
		FeeGrowthInsideLastB: p.FeeGrowthInsideLastB.Clone(),
		TokensOwedA:          p.TokensOwedA.Clone(),
		TokensOwedB:          p.TokensOwedB.Clone(),
	}
}

// Settled reports whether the position holds neither liquidity nor owed tokens.
func (p *Position) Settled() bool {
	return p.Liquidity.IsZero() && p.TokensOwedA.IsZero() && p.TokensOwedB.IsZero()
}

// ValidateRange checks that lower < upper, both are multiples of tickSpacing
// and both lie inside the supported tick bound.
func ValidateRange(tickLower, tickUpper, tickSpacing int32) error {
	switch {
	case tickSpacing <= 0:
		return fmt.Errorf("%w: tick spacing %d", ErrInvalidRange, tickSpacing)
	case tickLower >= tickUpper:
		return fmt.Errorf("%w: lower %d not below upper %d", ErrInvalidRange, tickLower, tickUpper)
	case tickLower < fixedpoint.MinTick || tickUpper > fixedpoint.MaxTick:
		return fmt.Errorf("%w: [%d, %d) outside [%d, %d]", ErrInvalidRange, tickLower, tickUpper, fixedpoint.MinTick, fixedpoint.MaxTick)
	case tickLower%tickSpacing != 0 || tickUpper%tickSpacing != 0:
		return fmt.Errorf("%w: [%d, %d) not aligned to spacing %d", ErrInvalidRange, tickLower, tickUpper, tickSpacing)
	}
	return nil
}

// Book holds every position of a pool. It is not safe for concurrent use.
type Book struct {
	positions map[Key]*Position
}

func NewBook() *Book {
	return &Book{positions: make(map[Key]*Position)}
}

// Open validates the range and returns the position for key, creating an
// empty one when needed.
func (b *Book) Open(owner common.Address, tickLower, tickUpper, tickSpacing int32) (*Position, error) {
	if err := ValidateRange(tickLower, tickUpper, tickSpacing); err != nil {
		return nil, err
	}
	key := Key{Owner: owner, TickLower: tickLower, TickUpper: tickUpper}
	if p, ok := b.positions[key]; ok {
		return p, nil
	}
	p := &Position{
		Key:                  key,
		Liquidity:            new(uint256.Int),
		FeeGrowthInsideLastA: new(uint256.Int),
		FeeGrowthInsideLastB: new(uint256.Int),
		TokensOwedA:          new(uint256.Int),
		TokensOwedB:          new(uint256.Int),
	}
	b.positions[key] = p
	return p, nil
}

// Get returns the live position for key.
func (b *Book) Get(key Key) (*Position, bool) {
	p, ok := b.positions[key]
	return p, ok
}

// ModifyLiquidity credits the fees earned since the last checkpoint and then
// applies delta. A zero delta only refreshes fees.
func (b *Book) ModifyLiquidity(key Key, delta *big.Int, feeGrowthInsideA, feeGrowthInsideB *uint256.Int) (*Position, error) {
	p, ok := b.positions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, key)
	}
	if delta.Sign() < 0 && new(big.Int).Neg(delta).Cmp(p.Liquidity.ToBig()) > 0 {
		return nil, fmt.Errorf("%w: %s holds %s", ErrInsufficientLiquidity, key, p.Liquidity.Dec())
	}
	if delta.Sign() == 0 && p.Liquidity.IsZero() {
		return nil, fmt.Errorf("%w: %s has no liquidity", ErrPositionNotFound, key)
	}

	liquidity, err := fixedpoint.AddDelta(p.Liquidity, delta)
	if err != nil {
		return nil, err
	}
	owedA, err := accrue(p.TokensOwedA, feeGrowthInsideA, p.FeeGrowthInsideLastA, p.Liquidity)
	if err != nil {
		return nil, err
	}
	owedB, err := accrue(p.TokensOwedB, feeGrowthInsideB, p.FeeGrowthInsideLastB, p.Liquidity)
	if err != nil {
		return nil, err
	}

	p.Liquidity = liquidity
	p.FeeGrowthInsideLastA = feeGrowthInsideA.Clone()
	p.FeeGrowthInsideLastB = feeGrowthInsideB.Clone()
	p.TokensOwedA = owedA
	p.TokensOwedB = owedB
	return p, nil
}

func accrue(owed, inside, insideLast, liquidity *uint256.Int) (*uint256.Int, error) {
	earned, err := fixedpoint.MulDiv(fixedpoint.WrappingSub(inside, insideLast), liquidity, fixedpoint.Q64)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Add(owed, earned)
}

// Collect takes up to maxA and maxB from the owed balances and returns the
// amounts taken. A nil limit takes everything.
func (b *Book) Collect(key Key, maxA, maxB *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	p, ok := b.positions[key]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrPositionNotFound, key)
	}
	takeA, takeB := p.TokensOwedA.Clone(), p.TokensOwedB.Clone()
	if maxA != nil {
		takeA = fixedpoint.Min(takeA, maxA).Clone()
	}
	if maxB != nil {
		takeB = fixedpoint.Min(takeB, maxB).Clone()
	}
	p.TokensOwedA = new(uint256.Int).Sub(p.TokensOwedA, takeA)
	p.TokensOwedB = new(uint256.Int).Sub(p.TokensOwedB, takeB)
	return takeA, takeB, nil
}

// Close removes the position once it is fully settled.
func (b *Book) Close(key Key) bool {
	p, ok := b.positions[key]
	if !ok || !p.Settled() {
		return false
	}
	delete(b.positions, key)
	return true
}

// Put stores a copy of p, replacing any position with the same key.
func (b *Book) Put(p *Position) {
	b.positions[p.Key] = p.Clone()
}

// All returns copies of every position ordered by owner, then range.
func (b *Book) All() []*Position {
	out := make([]*Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := out[i].Key, out[j].Key
		if c := ki.Owner.Cmp(kj.Owner); c != 0 {
			return c < 0
		}
		if ki.TickLower != kj.TickLower {
			return ki.TickLower < kj.TickLower
		}
		return ki.TickUpper < kj.TickUpper
	})
	return out
}

func (b *Book) Len() int {
	return len(b.positions)
}

// Clone returns an independent deep copy.
func (b *Book) Clone() *Book {
	out := &Book{positions: make(map[Key]*Position, len(b.positions))}
	for key, p := range b.positions {
		out.positions[key] = p.Clone()
	}
	return out
}
