// Package pool implements a concentrated liquidity pool: price and active
// liquidity, liquidity provision, fee accounting and the tick-crossing swap.
//
// Every operation runs against a private copy of the pool state. The copy
// replaces the live state only after custody has accepted the transfers, so a
// failed call leaves the pool untouched.
package pool

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liquidityEngine/internal/fixedpoint"
	"liquidityEngine/internal/position"
	"liquidityEngine/internal/tickledger"
)

// Config holds the immutable parameters of a pool and its starting price.
type Config struct {
	AssetA           common.Address
	AssetB           common.Address
	Seed             uint64
	InitialSqrtPrice *uint256.Int
	TickSpacing      int32
	FeeRateBps       uint32
	// MaxLiquidityPerTick defaults to an even split of uint128 over every usable tick.
	MaxLiquidityPerTick *uint256.Int
	// MaxSteps bounds the swap loop; zero means unbounded.
	MaxSteps int
}

// Key returns the registry key of the configured pool.
func (c Config) Key() Key {
	return Key{AssetA: c.AssetA, AssetB: c.AssetB, Seed: c.Seed}
}

func (c Config) validate() error {
	if c.AssetA == c.AssetB {
		return fmt.Errorf("%w: %s", ErrSameAsset, c.AssetA.Hex())
	}
	if c.TickSpacing <= 0 {
		return fmt.Errorf("%w: tick spacing %d", ErrInvalidConfig, c.TickSpacing)
	}
	if c.FeeRateBps >= fixedpoint.FeeDenominatorBps {
		return fmt.Errorf("%w: fee %d bps", ErrInvalidConfig, c.FeeRateBps)
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("%w: max steps %d", ErrInvalidConfig, c.MaxSteps)
	}
	if c.MaxLiquidityPerTick != nil && c.MaxLiquidityPerTick.IsZero() {
		return fmt.Errorf("%w: zero max liquidity per tick", ErrInvalidConfig)
	}
	return fixedpoint.CheckPoolSqrtPrice(c.InitialSqrtPrice)
}

// Deps are the collaborators of a pool. Nil fields fall back to no-ops.
type Deps struct {
	Custody Custody
	Shares  ShareHook
	Logger  *zap.Logger
	Metrics *Metrics
}

func (d Deps) withDefaults() Deps {
	if d.Custody == nil {
		d.Custody = nopCustody{}
	}
	if d.Shares == nil {
		d.Shares = nopShares{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

type state struct {
	sqrtPrice        *uint256.Int
	tick             int32
	liquidity        *uint256.Int
	feeGrowthGlobalA *uint256.Int
	feeGrowthGlobalB *uint256.Int
	feesA            *uint256.Int
	feesB            *uint256.Int
	reserveA         *uint256.Int
	reserveB         *uint256.Int
	ticks            *tickledger.Ledger
	positions        *position.Book
}

func (s *state) clone() *state {
	return &state{
		sqrtPrice:        s.sqrtPrice.Clone(),
		tick:             s.tick,
		liquidity:        s.liquidity.Clone(),
		feeGrowthGlobalA: s.feeGrowthGlobalA.Clone(),
		feeGrowthGlobalB: s.feeGrowthGlobalB.Clone(),
		feesA:            s.feesA.Clone(),
		feesB:            s.feesB.Clone(),
		reserveA:         s.reserveA.Clone(),
		reserveB:         s.reserveB.Clone(),
		ticks:            s.ticks.Clone(),
		positions:        s.positions.Clone(),
	}
}

// Pool is safe for concurrent use; operations on one pool are serialized.
type Pool struct {
	mu sync.Mutex

	key         Key
	id          common.Hash
	account     common.Address
	tickSpacing int32
	feeRateBps  uint32
	maxSteps    int

	st *state

	custody Custody
	shares  ShareHook
	logger  *zap.Logger
	metrics *Metrics
}

// New creates an initialized pool at cfg.InitialSqrtPrice with no liquidity.
func New(cfg Config, deps Deps) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	tick, err := fixedpoint.TickAtSqrtPrice(cfg.InitialSqrtPrice)
	if err != nil {
		return nil, err
	}
	maxPerTick := cfg.MaxLiquidityPerTick
	if maxPerTick == nil {
		maxPerTick = tickledger.MaxLiquidityPerTick(cfg.TickSpacing)
	}

	p := newPool(cfg, deps, &state{
		sqrtPrice:        cfg.InitialSqrtPrice.Clone(),
		tick:             tick,
		liquidity:        new(uint256.Int),
		feeGrowthGlobalA: new(uint256.Int),
		feeGrowthGlobalB: new(uint256.Int),
		feesA:            new(uint256.Int),
		feesB:            new(uint256.Int),
		reserveA:         new(uint256.Int),
		reserveB:         new(uint256.Int),
		ticks:            tickledger.New(maxPerTick),
		positions:        position.NewBook(),
	})
	p.logger.Debug("pool initialized",
		zap.String("sqrt_price", cfg.InitialSqrtPrice.Dec()),
		zap.Int32("tick", tick),
		zap.Int32("tick_spacing", cfg.TickSpacing),
		zap.Uint32("fee_bps", cfg.FeeRateBps),
	)
	p.metrics.observeStatus(p.id.Hex(), p.status(p.st))
	return p, nil
}

func newPool(cfg Config, deps Deps, st *state) *Pool {
	deps = deps.withDefaults()
	key := cfg.Key()
	id := key.ID()
	return &Pool{
		key:         key,
		id:          id,
		account:     key.Account(),
		tickSpacing: cfg.TickSpacing,
		feeRateBps:  cfg.FeeRateBps,
		maxSteps:    cfg.MaxSteps,
		st:          st,
		custody:     deps.Custody,
		shares:      deps.Shares,
		logger:      deps.Logger.With(zap.String("pool", id.Hex())),
		metrics:     deps.Metrics,
	}
}

func (p *Pool) Key() Key                { return p.key }
func (p *Pool) ID() common.Hash         { return p.id }
func (p *Pool) Account() common.Address { return p.account }
func (p *Pool) TickSpacing() int32      { return p.tickSpacing }
func (p *Pool) FeeRateBps() uint32      { return p.feeRateBps }

// Status is a copy of the pool-level state.
type Status struct {
	SqrtPrice        *uint256.Int
	Tick             int32
	Liquidity        *uint256.Int
	FeeGrowthGlobalA *uint256.Int
	FeeGrowthGlobalB *uint256.Int
	FeesA            *uint256.Int
	FeesB            *uint256.Int
	ReserveA         *uint256.Int
	ReserveB         *uint256.Int
	InitializedTicks int
	Positions        int
}

// Price renders the sqrt price as asset B per asset A.
func (s Status) Price() decimal.Decimal {
	return fixedpoint.PriceFromSqrtPrice(s.SqrtPrice)
}

// Status returns the current pool-level state.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status(p.st)
}

func (p *Pool) status(st *state) Status {
	return Status{
		SqrtPrice:        st.sqrtPrice.Clone(),
		Tick:             st.tick,
		Liquidity:        st.liquidity.Clone(),
		FeeGrowthGlobalA: st.feeGrowthGlobalA.Clone(),
		FeeGrowthGlobalB: st.feeGrowthGlobalB.Clone(),
		FeesA:            st.feesA.Clone(),
		FeesB:            st.feesB.Clone(),
		ReserveA:         st.reserveA.Clone(),
		ReserveB:         st.reserveB.Clone(),
		InitializedTicks: st.ticks.Len(),
		Positions:        st.positions.Len(),
	}
}

// Tick returns a copy of the tick at index.
func (p *Pool) Tick(index int32) (tickledger.Tick, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st.ticks.Get(index)
}

// Ticks returns copies of every stored tick in ascending order.
func (p *Pool) Ticks() []tickledger.Tick {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st.ticks.Ticks()
}

// Position returns a copy of the position of owner over [lower, upper).
func (p *Pool) Position(owner common.Address, lower, upper int32) (*position.Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.st.positions.Get(position.Key{Owner: owner, TickLower: lower, TickUpper: upper})
	if !ok {
		return nil, false
	}
	return pos.Clone(), true
}

// commit publishes st after custody accepted moves. Callers hold p.mu.
func (p *Pool) commit(st *state) {
	p.st = st
	p.metrics.observeStatus(p.id.Hex(), p.status(st))
}

func (p *Pool) assetFor(aSide bool) common.Address {
	if aSide {
		return p.key.AssetA
	}
	return p.key.AssetB
}
