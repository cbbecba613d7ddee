package pool_test

import (
	"context"
	"errors"
	"math/big"
	"math/rand"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidityEngine/internal/custody"
	"liquidityEngine/internal/fixedpoint"
	"liquidityEngine/internal/pool"
)

func TestSwapWithinRange(t *testing.T) {
	f := newFixture(t).seeded(t)

	res, err := f.pool.Swap(context.Background(), pool.SwapRequest{
		Trader:    trader,
		AmountIn:  u(1000),
		Direction: pool.AToB,
	})
	require.NoError(t, err)

	assert.Equal(t, u(1000), res.AmountIn)
	assert.Equal(t, u(996), res.AmountOut)
	assert.Equal(t, u(3), res.FeeAmount)
	assert.Zero(t, res.Crossings)
	assert.False(t, res.PriceLimitReached)
	assert.False(t, res.LiquidityExhausted)

	st := res.Status
	assert.Equal(t, "18428370987834680440", st.SqrtPrice.Dec())
	assert.Equal(t, int32(-20), st.Tick)
	assert.Equal(t, u(1_000_000), st.Liquidity)
	assert.Equal(t, u(3), st.FeesA)
	assert.True(t, res.AmountOut.Lt(res.AmountIn), "selling A at a price below 1 returns less B")

	assert.Equal(t, u(1_000_000-1000), f.ledger.Balance(assetA, trader))
	assert.Equal(t, u(1_000_000+996), f.ledger.Balance(assetB, trader))
	f.assertReservesHeld(t)
}

func TestSwapBToARaisesPrice(t *testing.T) {
	f := newFixture(t).seeded(t)

	res, err := f.pool.Swap(context.Background(), pool.SwapRequest{
		Trader:    trader,
		AmountIn:  u(1000),
		Direction: pool.BToA,
	})
	require.NoError(t, err)
	assert.Equal(t, u(996), res.AmountOut)
	assert.Equal(t, u(3), res.FeeAmount)
	assert.Equal(t, "18465135477551040038", res.Status.SqrtPrice.Dec())
	assert.Equal(t, int32(19), res.Status.Tick)
	assert.Equal(t, u(3), res.Status.FeesB)
}

func TestSwapSlippageKeepsState(t *testing.T) {
	f := newFixture(t).seeded(t)
	before := f.pool.Snapshot()

	_, err := f.pool.Swap(context.Background(), pool.SwapRequest{
		Trader:       trader,
		AmountIn:     u(1000),
		Direction:    pool.AToB,
		MinAmountOut: u(997),
	})
	require.ErrorIs(t, err, pool.ErrSlippageExceeded)
	assert.Equal(t, "SlippageExceeded", pool.ErrorKind(err))
	assert.Equal(t, before, f.pool.Snapshot())
	assert.Equal(t, u(1_000_000), f.ledger.Balance(assetA, trader))
}

func TestSwapExhaustsLiquidity(t *testing.T) {
	f := newFixture(t).seeded(t)

	res, err := f.pool.Swap(context.Background(), pool.SwapRequest{
		Trader:    trader,
		AmountIn:  u(100_000),
		Direction: pool.AToB,
	})
	require.NoError(t, err)

	assert.True(t, res.LiquidityExhausted)
	assert.False(t, res.PriceLimitReached)
	assert.Equal(t, u(5029), res.AmountIn, "only the consumed input is charged")
	assert.Equal(t, u(4987), res.AmountOut)
	assert.Equal(t, u(16), res.FeeAmount)
	assert.Equal(t, 1, res.Crossings)
	require.Len(t, res.Steps, 1)
	assert.True(t, res.Steps[0].Crossed)
	assert.Equal(t, int32(-100), res.Steps[0].TickNext)

	st := res.Status
	assert.True(t, st.Liquidity.IsZero())
	assert.Equal(t, int32(-101), st.Tick)
	assert.Equal(t, sqrtAt(t, -100), st.SqrtPrice)
	assert.Equal(t, u(1_000_000-5029), f.ledger.Balance(assetA, trader))
	f.assertReservesHeld(t)

	// Nothing left to buy in the same direction.
	_, err = f.pool.Swap(context.Background(), pool.SwapRequest{Trader: trader, AmountIn: u(1000), Direction: pool.AToB})
	require.ErrorIs(t, err, pool.ErrZeroOutput)

	// Swapping back re-enters the range and reactivates the liquidity.
	res, err = f.pool.Swap(context.Background(), pool.SwapRequest{Trader: trader, AmountIn: u(1000), Direction: pool.BToA})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Crossings)
	assert.Equal(t, u(1_000_000), res.Status.Liquidity)
	assert.GreaterOrEqual(t, res.Status.Tick, int32(-100))
	assert.Less(t, res.Status.Tick, int32(100))
	f.assertReservesHeld(t)
}

func TestSwapStopsAtPriceLimit(t *testing.T) {
	f := newFixture(t).seeded(t)
	limit := sqrtAt(t, -10)

	res, err := f.pool.Swap(context.Background(), pool.SwapRequest{
		Trader:         trader,
		AmountIn:       u(1000),
		Direction:      pool.AToB,
		SqrtPriceLimit: limit,
	})
	require.NoError(t, err)
	assert.True(t, res.PriceLimitReached)
	assert.Equal(t, u(503), res.AmountIn)
	assert.Equal(t, u(499), res.AmountOut)
	assert.Equal(t, u(2), res.FeeAmount)
	assert.Equal(t, limit, res.Status.SqrtPrice)
	assert.Equal(t, int32(-10), res.Status.Tick)
}

func TestSwapRejectsLimitBehindPrice(t *testing.T) {
	f := newFixture(t).seeded(t)

	_, err := f.pool.Swap(context.Background(), pool.SwapRequest{
		Trader:         trader,
		AmountIn:       u(1000),
		Direction:      pool.AToB,
		SqrtPriceLimit: sqrtAt(t, 10),
	})
	require.ErrorIs(t, err, pool.ErrPriceOutOfBounds)

	_, err = f.pool.Swap(context.Background(), pool.SwapRequest{
		Trader:         trader,
		AmountIn:       u(1000),
		Direction:      pool.BToA,
		SqrtPriceLimit: f.pool.Status().SqrtPrice,
	})
	require.ErrorIs(t, err, pool.ErrPriceOutOfBounds)
}

func TestSwapRejectsZeroInput(t *testing.T) {
	f := newFixture(t).seeded(t)
	_, err := f.pool.Swap(context.Background(), pool.SwapRequest{Trader: trader, AmountIn: new(uint256.Int)})
	require.ErrorIs(t, err, pool.ErrZeroAmount)
}

func TestSwapWithoutLiquidityHasNoOutput(t *testing.T) {
	f := newFixture(t)
	_, err := f.pool.Swap(context.Background(), pool.SwapRequest{Trader: trader, AmountIn: u(1000), Direction: pool.BToA})
	require.ErrorIs(t, err, pool.ErrZeroOutput)
	assert.Equal(t, "ZeroOutput", pool.ErrorKind(err))
}

func TestSwapStepLimit(t *testing.T) {
	f := newFixture(t)
	p, err := pool.New(pool.Config{
		AssetA:           assetA,
		AssetB:           assetB,
		Seed:             2,
		InitialSqrtPrice: sqrtAt(t, 0),
		TickSpacing:      10,
		FeeRateBps:       30,
		MaxSteps:         1,
	}, pool.Deps{Custody: f.ledger})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = p.AddLiquidity(ctx, alice, -100, 100, u(1_000_000))
	require.NoError(t, err)
	_, err = p.AddLiquidity(ctx, alice, -200, -100, u(1_000_000))
	require.NoError(t, err)

	res, err := p.Swap(ctx, pool.SwapRequest{Trader: trader, AmountIn: u(100_000), Direction: pool.AToB})
	require.NoError(t, err)
	assert.True(t, res.StepLimitReached)
	assert.Len(t, res.Steps, 1)
	assert.Equal(t, int32(-101), res.Status.Tick)
	assert.Equal(t, u(1_000_000), res.Status.Liquidity, "the adjacent range became active")
}

func TestQuoteMatchesSwapWithoutMutating(t *testing.T) {
	f := newFixture(t).seeded(t)
	before := f.pool.Snapshot()
	req := pool.SwapRequest{Trader: trader, AmountIn: u(2500), Direction: pool.BToA, MinAmountOut: u(1_000_000)}

	quote, err := f.pool.Quote(req)
	require.NoError(t, err, "quotes ignore the slippage bound")
	assert.Equal(t, before, f.pool.Snapshot())
	assert.Equal(t, u(1_000_000), f.ledger.Balance(assetB, trader))

	req.MinAmountOut = nil
	res, err := f.pool.Swap(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, quote.AmountIn, res.AmountIn)
	assert.Equal(t, quote.AmountOut, res.AmountOut)
	assert.Equal(t, quote.FeeAmount, res.FeeAmount)
	assert.Equal(t, quote.Status.SqrtPrice, res.Status.SqrtPrice)
}

func TestSwapStepsNeverOverdrawInput(t *testing.T) {
	f := newFixture(t).seeded(t)
	ctx := context.Background()
	_, err := f.pool.AddLiquidity(ctx, alice, -300, -100, u(500_000))
	require.NoError(t, err)
	_, err = f.pool.AddLiquidity(ctx, alice, 100, 400, u(2_000_000))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		dir := pool.AToB
		if rng.Intn(2) == 0 {
			dir = pool.BToA
		}
		req := pool.SwapRequest{Trader: trader, AmountIn: u(uint64(50 + rng.Intn(8000))), Direction: dir}
		start := f.pool.Status().SqrtPrice

		res, err := f.pool.Swap(ctx, req)
		if errors.Is(err, pool.ErrZeroOutput) {
			continue
		}
		require.NoError(t, err, "swap %d", i)

		spent := new(uint256.Int)
		prev := start
		for _, s := range res.Steps {
			spent.Add(spent, s.AmountIn)
			spent.Add(spent, s.FeeAmount)
			if dir == pool.AToB {
				assert.False(t, s.SqrtPriceEnd.Gt(prev), "price rose while selling A")
			} else {
				assert.False(t, s.SqrtPriceEnd.Lt(prev), "price fell while selling B")
			}
			prev = s.SqrtPriceEnd
		}
		assert.Equal(t, res.AmountIn, spent, "swap %d", i)
		assert.False(t, res.AmountIn.Gt(req.AmountIn), "swap %d", i)
		f.assertReservesHeld(t)
	}
}

func TestRandomSequenceKeepsLiquidityConsistent(t *testing.T) {
	type rangeKey struct {
		owner        common.Address
		lower, upper int32
	}

	ledger := custody.NewLedger()
	p, err := pool.New(pool.Config{
		AssetA:           assetA,
		AssetB:           assetB,
		InitialSqrtPrice: fixedpoint.Q64.Clone(),
		TickSpacing:      1,
		FeeRateBps:       30,
	}, pool.Deps{Custody: ledger})
	require.NoError(t, err)

	owners := []common.Address{alice, trader, common.HexToAddress("0x0000000000000000000000000000000000000b0b")}
	for _, who := range owners {
		require.NoError(t, ledger.Mint(assetA, who, u(1_000_000_000_000)))
		require.NoError(t, ledger.Mint(assetB, who, u(1_000_000_000_000)))
	}

	ctx := context.Background()
	held := map[rangeKey]uint64{}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 1500; i++ {
		switch op := rng.Intn(3); {
		case op == 0 || len(held) == 0:
			lower := int32(rng.Intn(400) - 200)
			k := rangeKey{owners[rng.Intn(len(owners))], lower, lower + 1 + int32(rng.Intn(100))}
			amount := uint64(1_000 + rng.Intn(1_000_000))
			_, err := p.AddLiquidity(ctx, k.owner, k.lower, k.upper, u(amount))
			require.NoError(t, err, "add %d", i)
			held[k] += amount
		case op == 1:
			var k rangeKey
			n := rng.Intn(len(held))
			for key := range held {
				if n == 0 {
					k = key
					break
				}
				n--
			}
			amount := 1 + uint64(rng.Int63n(int64(held[k])))
			_, err := p.RemoveLiquidity(ctx, k.owner, k.lower, k.upper, u(amount))
			require.NoError(t, err, "remove %d", i)
			if held[k] -= amount; held[k] == 0 {
				delete(held, k)
			}
		default:
			dir := pool.AToB
			if rng.Intn(2) == 0 {
				dir = pool.BToA
			}
			_, err := p.Swap(ctx, pool.SwapRequest{Trader: owners[0], AmountIn: u(uint64(1 + rng.Intn(50_000))), Direction: dir})
			if !errors.Is(err, pool.ErrZeroOutput) {
				require.NoError(t, err, "swap %d", i)
			}
		}

		st := p.Status()
		active := new(uint256.Int)
		for k, l := range held {
			if k.lower <= st.Tick && st.Tick < k.upper {
				active.AddUint64(active, l)
			}
		}
		require.Equal(t, active, st.Liquidity, "active liquidity after op %d", i)

		net := new(big.Int)
		for _, tk := range p.Ticks() {
			require.False(t, tk.LiquidityGross.IsZero(), "tick %d left initialized at op %d", tk.Index, i)
			net.Add(net, tk.LiquidityNet)
		}
		require.Zero(t, net.Sign(), "liquidity net sum after op %d", i)
		assert.Equal(t, st.ReserveA, ledger.Balance(assetA, p.Account()))
		assert.Equal(t, st.ReserveB, ledger.Balance(assetB, p.Account()))
	}
}

func TestConcurrentSwapsConserveBalances(t *testing.T) {
	f := newFixture(t).seeded(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dir := pool.AToB
			if i%2 == 1 {
				dir = pool.BToA
			}
			_, err := f.pool.Swap(ctx, pool.SwapRequest{Trader: trader, AmountIn: u(300), Direction: dir})
			if err != nil && !errors.Is(err, pool.ErrZeroOutput) {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("swap failed: %v", err)
	}

	f.assertReservesHeld(t)
	total := new(uint256.Int).Add(f.ledger.Balance(assetA, trader), f.ledger.Balance(assetA, alice))
	total.Add(total, f.pool.Status().ReserveA)
	assert.Equal(t, u(2_000_000), total, "asset A is conserved")
}
