// Package tickledger keeps the sparse set of initialized ticks of a pool.
//
// Ticks are held in a map keyed by index plus a sorted slice of the indexes so
// swaps can walk them in order with a binary search.
package tickledger

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/holiman/uint256"

	"liquidityEngine/internal/fixedpoint"
)

var (
	// ErrLiquidityGrossOverflow is returned when a tick would reference more
	// liquidity than the per-tick cap.
	ErrLiquidityGrossOverflow = errors.New("tick liquidity gross overflow")
	// ErrTickNotFound is returned when crossing a tick that is not initialized.
	ErrTickNotFound = errors.New("tick not initialized")
)

// Direction selects which way NextInitializedTick searches.
type Direction int

const (
	// Down searches toward lower ticks (price falling).
	Down Direction = iota
	// Up searches toward higher ticks (price rising).
	Up
)

// Tick is the per-boundary state.
type Tick struct {
	Index             int32
	LiquidityGross    *uint256.Int
	LiquidityNet      *big.Int
	FeeGrowthOutsideA *uint256.Int
	FeeGrowthOutsideB *uint256.Int
}

// Initialized reports whether any position references the tick.
func (t *Tick) Initialized() bool {
	return t.LiquidityGross != nil && !t.LiquidityGross.IsZero()
}

// Clone returns a deep copy.
func (t *Tick) Clone() *Tick {
	return &Tick{
		Index:             t.Index,
		LiquidityGross:    t.LiquidityGross.Clone(),
		LiquidityNet:      new(big.Int).Set(t.LiquidityNet),
		FeeGrowthOutsideA: t.FeeGrowthOutsideA.Clone(),
		FeeGrowthOutsideB: t.FeeGrowthOutsideB.Clone(),
	}
}

func newTick(index int32) *Tick {
	return &Tick{
		Index:             index,
		LiquidityGross:    new(uint256.Int),
		LiquidityNet:      new(big.Int),
		FeeGrowthOutsideA: new(uint256.Int),
		FeeGrowthOutsideB: new(uint256.Int),
	}
}

// Ledger is not safe for concurrent use; the owning pool serializes access.
type Ledger struct {
	maxLiquidityPerTick *uint256.Int
	index               []int32
	ticks               map[int32]*Tick
}

// New creates an empty ledger whose ticks may each reference at most maxLiquidityPerTick.
func New(maxLiquidityPerTick *uint256.Int) *Ledger {
	if maxLiquidityPerTick == nil {
		maxLiquidityPerTick = fixedpoint.MaxUint128
	}
	return &Ledger{
		maxLiquidityPerTick: maxLiquidityPerTick.Clone(),
		ticks:               make(map[int32]*Tick),
	}
}

// MaxLiquidityPerTick spreads the uint128 liquidity space evenly over every
// usable tick for the given spacing.
func MaxLiquidityPerTick(tickSpacing int32) *uint256.Int {
	if tickSpacing <= 0 {
		return new(uint256.Int)
	}
	minTick := (fixedpoint.MinTick / tickSpacing) * tickSpacing
	maxTick := (fixedpoint.MaxTick / tickSpacing) * tickSpacing
	numTicks := uint64((maxTick-minTick)/tickSpacing) + 1
	return new(uint256.Int).Div(fixedpoint.MaxUint128, uint256.NewInt(numTicks))
}

// MaxLiquidity returns the per-tick cap.
func (l *Ledger) MaxLiquidity() *uint256.Int {
	return l.maxLiquidityPerTick.Clone()
}

// EnsureInitialized returns the tick at index, creating an empty one if needed.
func (l *Ledger) EnsureInitialized(index int32) *Tick {
	if t, ok := l.ticks[index]; ok {
		return t
	}
	t := newTick(index)
	l.ticks[index] = t
	i := sort.Search(len(l.index), func(i int) bool { return l.index[i] >= index })
	l.index = append(l.index, 0)
	copy(l.index[i+1:], l.index[i:])
	l.index[i] = index
	return t
}

// UpdateLiquidity applies delta to the tick at index as the lower or upper
// boundary of a position and reports whether the tick flipped between
// referenced and unreferenced. A tick referenced for the first time at or
// below tickCurrent records the global fee growth as its outside value.
// Nothing is changed when an error is returned.
func (l *Ledger) UpdateLiquidity(index, tickCurrent int32, delta *big.Int, upper bool, feeGrowthGlobalA, feeGrowthGlobalB *uint256.Int) (bool, error) {
	grossBefore, netBefore := new(uint256.Int), new(big.Int)
	if t, ok := l.ticks[index]; ok {
		grossBefore, netBefore = t.LiquidityGross, t.LiquidityNet
	}

	grossAfter, err := fixedpoint.AddDelta(grossBefore, delta)
	if err != nil {
		return false, fmt.Errorf("tick %d: %w", index, err)
	}
	if grossAfter.Gt(l.maxLiquidityPerTick) {
		return false, fmt.Errorf("%w: tick %d", ErrLiquidityGrossOverflow, index)
	}

	netAfter := new(big.Int)
	if upper {
		netAfter.Sub(netBefore, delta)
	} else {
		netAfter.Add(netBefore, delta)
	}
	if err := fixedpoint.CheckInt128(netAfter); err != nil {
		return false, fmt.Errorf("tick %d net: %w", index, err)
	}

	t := l.EnsureInitialized(index)
	if grossBefore.IsZero() && index <= tickCurrent {
		t.FeeGrowthOutsideA = feeGrowthGlobalA.Clone()
		t.FeeGrowthOutsideB = feeGrowthGlobalB.Clone()
	}
	t.LiquidityGross = grossAfter
	t.LiquidityNet = netAfter

	return grossBefore.IsZero() != grossAfter.IsZero(), nil
}

// NextInitializedTick returns the nearest initialized tick strictly above
// (Up) or strictly below (Down) from.
func (l *Ledger) NextInitializedTick(from int32, dir Direction) (int32, bool) {
	if dir == Up {
		i := sort.Search(len(l.index), func(i int) bool { return l.index[i] > from })
		for ; i < len(l.index); i++ {
			if l.ticks[l.index[i]].Initialized() {
				return l.index[i], true
			}
		}
		return 0, false
	}

	i := sort.Search(len(l.index), func(i int) bool { return l.index[i] >= from })
	for i--; i >= 0; i-- {
		if l.ticks[l.index[i]].Initialized() {
			return l.index[i], true
		}
	}
	return 0, false
}

// Cross flips the outside fee growth of the tick as the price moves across
// it and returns its liquidity net.
func (l *Ledger) Cross(index int32, feeGrowthGlobalA, feeGrowthGlobalB *uint256.Int) (*big.Int, error) {
	t, ok := l.ticks[index]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTickNotFound, index)
	}
	t.FeeGrowthOutsideA = fixedpoint.WrappingSub(feeGrowthGlobalA, t.FeeGrowthOutsideA)
	t.FeeGrowthOutsideB = fixedpoint.WrappingSub(feeGrowthGlobalB, t.FeeGrowthOutsideB)
	return new(big.Int).Set(t.LiquidityNet), nil
}

// FeeGrowthInside returns the fee growth per unit of liquidity accumulated
// inside [lower, upper). Values wrap modulo 2^256; only differences matter.
func (l *Ledger) FeeGrowthInside(lower, upper, tickCurrent int32, feeGrowthGlobalA, feeGrowthGlobalB *uint256.Int) (*uint256.Int, *uint256.Int) {
	lowerA, lowerB := l.outside(lower)
	upperA, upperB := l.outside(upper)

	belowA, belowB := lowerA, lowerB
	if tickCurrent < lower {
		belowA = fixedpoint.WrappingSub(feeGrowthGlobalA, lowerA)
		belowB = fixedpoint.WrappingSub(feeGrowthGlobalB, lowerB)
	}
	aboveA, aboveB := upperA, upperB
	if tickCurrent >= upper {
		aboveA = fixedpoint.WrappingSub(feeGrowthGlobalA, upperA)
		aboveB = fixedpoint.WrappingSub(feeGrowthGlobalB, upperB)
	}

	insideA := fixedpoint.WrappingSub(fixedpoint.WrappingSub(feeGrowthGlobalA, belowA), aboveA)
	insideB := fixedpoint.WrappingSub(fixedpoint.WrappingSub(feeGrowthGlobalB, belowB), aboveB)
	return insideA, insideB
}

func (l *Ledger) outside(index int32) (*uint256.Int, *uint256.Int) {
	if t, ok := l.ticks[index]; ok {
		return t.FeeGrowthOutsideA, t.FeeGrowthOutsideB
	}
	return new(uint256.Int), new(uint256.Int)
}

// MaybeClear removes the tick when nothing references it any more.
func (l *Ledger) MaybeClear(index int32) bool {
	t, ok := l.ticks[index]
	if !ok || t.Initialized() {
		return false
	}
	delete(l.ticks, index)
	i := sort.Search(len(l.index), func(i int) bool { return l.index[i] >= index })
	l.index = append(l.index[:i], l.index[i+1:]...)
	return true
}

// Get returns a copy of the tick at index.
func (l *Ledger) Get(index int32) (Tick, bool) {
	t, ok := l.ticks[index]
	if !ok {
		return Tick{}, false
	}
	return *t.Clone(), true
}

// Put stores a copy of t, replacing any tick at the same index.
func (l *Ledger) Put(t Tick) {
	stored := l.EnsureInitialized(t.Index)
	*stored = *t.Clone()
}

// Ticks returns copies of every tick in ascending index order.
func (l *Ledger) Ticks() []Tick {
	out := make([]Tick, 0, len(l.index))
	for _, index := range l.index {
		out = append(out, *l.ticks[index].Clone())
	}
	return out
}

// Len returns the number of stored ticks.
func (l *Ledger) Len() int {
	return len(l.index)
}

// Clone returns an independent deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	out := &Ledger{
		maxLiquidityPerTick: l.maxLiquidityPerTick.Clone(),
		index:               append([]int32(nil), l.index...),
		ticks:               make(map[int32]*Tick, len(l.ticks)),
	}
	for index, t := range l.ticks {
		out.ticks[index] = t.Clone()
	}
	return out
}
