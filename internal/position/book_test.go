package position

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidityEngine/internal/fixedpoint"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func zero() *uint256.Int { return new(uint256.Int) }

func TestValidateRange(t *testing.T) {
	tests := []struct {
		name         string
		lower, upper int32
		spacing      int32
		ok           bool
	}{
		{"valid", -100, 100, 1, true},
		{"valid with spacing", -120, 60, 60, true},
		{"inverted", 100, -100, 1, false},
		{"empty", 10, 10, 1, false},
		{"misaligned lower", -101, 100, 10, false},
		{"misaligned upper", -100, 105, 10, false},
		{"below the bound", fixedpoint.MinTick - 1, 0, 1, false},
		{"above the bound", 0, fixedpoint.MaxTick + 1, 1, false},
		{"full bound", fixedpoint.MinTick, fixedpoint.MaxTick, 1, true},
		{"zero spacing", -100, 100, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRange(tt.lower, tt.upper, tt.spacing)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidRange)
			}
		})
	}
}

func TestModifyLiquidity(t *testing.T) {
	t.Run("unknown position", func(t *testing.T) {
		b := NewBook()
		_, err := b.ModifyLiquidity(Key{Owner: alice, TickLower: -10, TickUpper: 10}, big.NewInt(-1), zero(), zero())
		assert.ErrorIs(t, err, ErrPositionNotFound)
	})

	t.Run("removal larger than liquidity", func(t *testing.T) {
		b := NewBook()
		p, err := b.Open(alice, -10, 10, 1)
		require.NoError(t, err)
		_, err = b.ModifyLiquidity(p.Key, big.NewInt(100), zero(), zero())
		require.NoError(t, err)

		_, err = b.ModifyLiquidity(p.Key, big.NewInt(-101), zero(), zero())
		assert.ErrorIs(t, err, ErrInsufficientLiquidity)
		got, _ := b.Get(p.Key)
		assert.Equal(t, uint64(100), got.Liquidity.Uint64())
	})

	t.Run("accrues fees on the old liquidity", func(t *testing.T) {
		b := NewBook()
		p, err := b.Open(alice, -10, 10, 1)
		require.NoError(t, err)
		_, err = b.ModifyLiquidity(p.Key, big.NewInt(1_000), zero(), zero())
		require.NoError(t, err)

		// Half a unit of A and two units of B per unit of liquidity.
		growthA := new(uint256.Int).Rsh(fixedpoint.Q64, 1)
		growthB := new(uint256.Int).Lsh(fixedpoint.Q64, 1)
		p, err = b.ModifyLiquidity(p.Key, big.NewInt(-400), growthA, growthB)
		require.NoError(t, err)
		assert.Equal(t, uint64(600), p.Liquidity.Uint64())
		assert.Equal(t, uint64(500), p.TokensOwedA.Uint64())
		assert.Equal(t, uint64(2_000), p.TokensOwedB.Uint64())

		// No new growth: nothing more is owed.
		p, err = b.ModifyLiquidity(p.Key, big.NewInt(0), growthA, growthB)
		require.NoError(t, err)
		assert.Equal(t, uint64(500), p.TokensOwedA.Uint64())
	})

	t.Run("poke on an empty position", func(t *testing.T) {
		b := NewBook()
		p, err := b.Open(alice, -10, 10, 1)
		require.NoError(t, err)
		_, err = b.ModifyLiquidity(p.Key, big.NewInt(0), zero(), zero())
		assert.ErrorIs(t, err, ErrPositionNotFound)
	})
}

func TestCollectAndClose(t *testing.T) {
	b := NewBook()
	p, err := b.Open(alice, -10, 10, 1)
	require.NoError(t, err)
	_, err = b.ModifyLiquidity(p.Key, big.NewInt(10), zero(), zero())
	require.NoError(t, err)
	_, err = b.ModifyLiquidity(p.Key, big.NewInt(-10), new(uint256.Int).Mul(fixedpoint.Q64, uint256.NewInt(3)), zero())
	require.NoError(t, err)

	assert.False(t, b.Close(p.Key), "owed tokens keep the position open")

	a, bAmt, err := b.Collect(p.Key, uint256.NewInt(10), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), a.Uint64())
	assert.True(t, bAmt.IsZero())

	a, _, err = b.Collect(p.Key, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), a.Uint64())

	assert.True(t, b.Close(p.Key))
	assert.Equal(t, 0, b.Len())

	_, _, err = b.Collect(p.Key, nil, nil)
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestBookCloneAndAll(t *testing.T) {
	b := NewBook()
	for _, owner := range []common.Address{bob, alice} {
		p, err := b.Open(owner, -10, 10, 1)
		require.NoError(t, err)
		_, err = b.ModifyLiquidity(p.Key, big.NewInt(5), zero(), zero())
		require.NoError(t, err)
	}
	_, err := b.Open(alice, -20, 10, 1)
	require.NoError(t, err)

	clone := b.Clone()
	live, _ := b.Get(Key{Owner: alice, TickLower: -10, TickUpper: 10})
	live.Liquidity.SetUint64(99)

	all := clone.All()
	require.Len(t, all, 3)
	// bob sorts before alice byte-wise.
	assert.Equal(t, bob, all[0].Key.Owner)
	assert.Equal(t, alice, all[1].Key.Owner)
	assert.Equal(t, int32(-20), all[1].Key.TickLower)
	assert.Equal(t, int32(-10), all[2].Key.TickLower)
	assert.Equal(t, uint64(5), all[2].Liquidity.Uint64())

	restored := NewBook()
	for _, p := range all {
		restored.Put(p)
	}
	assert.Equal(t, all, restored.All())
}
