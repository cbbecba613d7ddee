package custody

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidityEngine/internal/pool"
)

var (
	assetA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	assetB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	alice  = common.HexToAddress("0x0000000000000000000000000000000000a11ce0")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestLedgerTransferMovesBalances(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Mint(assetA, alice, u(100)))
	require.NoError(t, l.Mint(assetB, bob, u(50)))

	err := l.Transfer(context.Background(),
		pool.Transfer{Asset: assetA, From: alice, To: bob, Amount: u(40)},
		pool.Transfer{Asset: assetB, From: bob, To: alice, Amount: u(50)},
	)
	require.NoError(t, err)

	assert.Equal(t, u(60), l.Balance(assetA, alice))
	assert.Equal(t, u(40), l.Balance(assetA, bob))
	assert.Equal(t, u(50), l.Balance(assetB, alice))
	assert.True(t, l.Balance(assetB, bob).IsZero())
	assert.Len(t, l.Balances(), 3)
}

func TestLedgerTransferIsAllOrNothing(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Mint(assetA, alice, u(100)))
	require.NoError(t, l.Mint(assetB, bob, u(10)))

	err := l.Transfer(context.Background(),
		pool.Transfer{Asset: assetA, From: alice, To: bob, Amount: u(40)},
		pool.Transfer{Asset: assetB, From: bob, To: alice, Amount: u(11)},
	)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	assert.Equal(t, u(100), l.Balance(assetA, alice))
	assert.True(t, l.Balance(assetA, bob).IsZero())
	assert.Equal(t, u(10), l.Balance(assetB, bob))
}

func TestLedgerTransferSeesEarlierMoves(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Mint(assetA, alice, u(5)))

	err := l.Transfer(context.Background(),
		pool.Transfer{Asset: assetA, From: alice, To: bob, Amount: u(5)},
		pool.Transfer{Asset: assetA, From: bob, To: alice, Amount: u(3)},
	)
	require.NoError(t, err)
	assert.Equal(t, u(3), l.Balance(assetA, alice))
	assert.Equal(t, u(2), l.Balance(assetA, bob))
}

func TestLedgerTransferHonoursCanceledContext(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Mint(assetA, alice, u(5)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Transfer(ctx, pool.Transfer{Asset: assetA, From: alice, To: bob, Amount: u(1)})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, u(5), l.Balance(assetA, alice))
}

func TestShareRegistry(t *testing.T) {
	r := NewShareRegistry()
	id := common.HexToHash("0x01")

	r.MintShare(id, alice, u(700))
	r.MintShare(id, bob, u(300))
	assert.Equal(t, u(1000), r.TotalShares(id))

	r.BurnShare(id, alice, u(200))
	assert.Equal(t, u(500), r.Shares(id, alice))
	assert.Equal(t, u(800), r.TotalShares(id))

	r.BurnShare(id, bob, u(1000))
	assert.True(t, r.Shares(id, bob).IsZero())
	assert.Equal(t, u(500), r.TotalShares(id))

	assert.True(t, r.TotalShares(common.HexToHash("0x02")).IsZero())
}
