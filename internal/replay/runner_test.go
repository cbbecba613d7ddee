package replay

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"liquidityEngine/internal/custody"
	"liquidityEngine/internal/dex"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/pool"
)

var sourcePool = common.HexToAddress("0x1111111111111111111111111111111111111111")

// fakeChain serves one V3 pool at price 1.0 with a fixed set of logs.
type fakeChain struct {
	poolABI abi.ABI
	logs    []types.Log
	filters int
}

func (f *fakeChain) ChainID(context.Context) (uint64, error)           { return 56, nil }
func (f *fakeChain) LatestBlockNumber(context.Context) (uint64, error) { return 103, nil }

func (f *fakeChain) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	return 1_700_000_000 + number, nil
}

func (f *fakeChain) FilterLogs(_ context.Context, from, to uint64, addresses []common.Address, _ []common.Hash) ([]types.Log, error) {
	f.filters++
	var out []types.Log
	for _, log := range f.logs {
		if log.BlockNumber >= from && log.BlockNumber <= to && len(addresses) == 1 && log.Address == addresses[0] {
			out = append(out, log)
		}
	}
	return out, nil
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	results := map[string][]interface{}{
		"token0":      {assetA},
		"token1":      {assetB},
		"fee":         {big.NewInt(3000)},
		"tickSpacing": {big.NewInt(10)},
		"liquidity":   {big.NewInt(0)},
		"slot0":       {new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(0), uint16(0), uint16(1), uint16(1), uint32(0), true},
	}
	for name, method := range f.poolABI.Methods {
		if bytes.HasPrefix(msg.Data, method.ID) {
			return method.Outputs.Pack(results[name]...)
		}
	}
	return nil, fmt.Errorf("execution reverted")
}

func int24Topic(v int64) common.Hash {
	b := big.NewInt(v)
	if v < 0 {
		b.Add(b, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	return common.BigToHash(b)
}

func addressTopic(a common.Address) common.Hash { return common.BytesToHash(a.Bytes()) }

func packLog(t *testing.T, poolABI abi.ABI, name string, block uint64, index uint, topics []common.Hash, values ...interface{}) types.Log {
	t.Helper()
	data, err := poolABI.Events[name].Inputs.NonIndexed().Pack(values...)
	require.NoError(t, err)
	return types.Log{
		Address:     sourcePool,
		Topics:      append([]common.Hash{poolABI.Events[name].ID}, topics...),
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block)),
		Index:       index,
	}
}

type memCheckpoint struct {
	last uint64
	ok   bool
}

func (m *memCheckpoint) Load(context.Context) (uint64, bool, error) { return m.last, m.ok, nil }

func (m *memCheckpoint) Save(_ context.Context, last uint64) error {
	m.last, m.ok = last, true
	return nil
}

type memSnapshots struct{ saved []model.PoolSnapshot }

func (m *memSnapshots) SaveSnapshot(_ context.Context, snap model.PoolSnapshot) error {
	m.saved = append(m.saved, snap)
	return nil
}

type memDecodeErrors struct{ errs []model.DecodeError }

func (m *memDecodeErrors) PutDecodeErrors(errs []model.DecodeError) error {
	m.errs = append(m.errs, errs...)
	return nil
}

func TestRunnerReplaysPoolEvents(t *testing.T) {
	poolABI, err := dex.V3PoolABI()
	require.NoError(t, err)

	mint := packLog(t, poolABI, "Mint", 100, 0,
		[]common.Hash{addressTopic(alice), int24Topic(-100), int24Topic(100)},
		alice, big.NewInt(1_000_000), big.NewInt(4988), big.NewInt(4988))
	swap := packLog(t, poolABI, "Swap", 101, 0,
		[]common.Hash{addressTopic(trader), addressTopic(trader)},
		big.NewInt(1000), big.NewInt(-996), new(big.Int).Lsh(big.NewInt(1), 95), big.NewInt(1_000_000), big.NewInt(-20))
	broken := types.Log{
		Address:     sourcePool,
		Topics:      []common.Hash{poolABI.Events["Swap"].ID},
		BlockNumber: 102,
		Index:       0,
	}
	poke := packLog(t, poolABI, "Burn", 103, 1,
		[]common.Hash{addressTopic(alice), int24Topic(-100), int24Topic(100)},
		big.NewInt(0), big.NewInt(0), big.NewInt(0))

	chain := &fakeChain{poolABI: poolABI, logs: []types.Log{mint, mint, swap, broken, poke}}
	decoder, err := dex.NewV3PoolDecoder(dex.DecoderConfig{})
	require.NoError(t, err)

	ledger := custody.NewLedger()
	reg := pool.NewRegistry(pool.Deps{Custody: ledger, Logger: zaptest.NewLogger(t)})
	applier := NewApplier(reg, pool.Config{}, zaptest.NewLogger(t), WithAutoFund(ledger))

	var journaled []model.OperationRecord
	checkpoint := &memCheckpoint{}
	snapshots := &memSnapshots{}
	rejected := &memDecodeErrors{}
	runner := NewRunner(RunConfig{
		Pool:         sourcePool,
		FromBlock:    100,
		BatchSize:    2,
		RetryBackoff: time.Millisecond,
	}, RunnerDeps{
		Chain:   chain,
		Decoder: decoder,
		Applier: applier,
		Journal: journalFunc(func(records []model.OperationRecord) error {
			journaled = append(journaled, records...)
			return nil
		}),
		Checkpoint:   checkpoint,
		Snapshots:    []SnapshotSink{snapshots},
		DecodeErrors: rejected,
		Metrics:      NewMetrics(nil),
		Logger:       zaptest.NewLogger(t),
	})

	require.NoError(t, runner.Run(context.Background()))

	require.Len(t, journaled, 4, "bootstrap initialize, mint, swap, poke")
	assert.Equal(t, model.OpInitialize, journaled[0].Op)
	assert.Nil(t, journaled[0].Chain)

	add := journaled[1]
	assert.Equal(t, model.OpAdd, add.Op)
	assert.False(t, add.Failed(), add.Error)
	assert.Equal(t, "4988", add.AmountA)
	require.NotNil(t, add.Chain)
	assert.Equal(t, uint64(100), add.Chain.BlockNumber)
	assert.Equal(t, uint64(1_700_000_100), add.Timestamp)

	sw := journaled[2]
	assert.Equal(t, model.OpSwap, sw.Op)
	assert.False(t, sw.Failed(), sw.Error)
	assert.Equal(t, "996", sw.AmountOut)
	assert.Equal(t, trader.Hex(), sw.Owner)

	collect := journaled[3]
	assert.Equal(t, model.OpCollect, collect.Op)
	assert.Equal(t, "2", collect.FeeA)

	require.Len(t, rejected.errs, 1)
	assert.Equal(t, model.StageDecode, rejected.errs[0].Stage)
	assert.Equal(t, uint64(102), rejected.errs[0].BlockNumber)

	assert.Equal(t, uint64(103), checkpoint.last)
	assert.Equal(t, 2, chain.filters)
	require.Len(t, snapshots.saved, 2)
	assert.Equal(t, applier.Pool().ID().Hex(), snapshots.saved[1].Pool.PoolID)
	assert.Equal(t, uint32(30), snapshots.saved[1].Pool.FeeBps)

	// A second run resumes after the checkpoint and finds nothing to do.
	require.NoError(t, runner.Run(context.Background()))
	assert.Len(t, journaled, 4)
	assert.Equal(t, 2, chain.filters)
}

func TestRunnerValidatesConfig(t *testing.T) {
	decoder, err := dex.NewV3PoolDecoder(dex.DecoderConfig{})
	require.NoError(t, err)
	applier := NewApplier(pool.NewRegistry(pool.Deps{}), pool.Config{}, nil)

	for name, r := range map[string]*Runner{
		"no chain":   NewRunner(RunConfig{Pool: sourcePool, BatchSize: 1}, RunnerDeps{Decoder: decoder, Applier: applier}),
		"no batch":   NewRunner(RunConfig{Pool: sourcePool}, RunnerDeps{Chain: &fakeChain{}, Decoder: decoder, Applier: applier}),
		"no pool":    NewRunner(RunConfig{BatchSize: 1}, RunnerDeps{Chain: &fakeChain{}, Decoder: decoder, Applier: applier}),
		"no applier": NewRunner(RunConfig{Pool: sourcePool, BatchSize: 1}, RunnerDeps{Chain: &fakeChain{}, Decoder: decoder}),
	} {
		assert.Error(t, r.Run(context.Background()), name)
	}
}

func TestWithRetry(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 2, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = withRetry(context.Background(), 1, time.Millisecond, func(context.Context) error {
		calls++
		return fmt.Errorf("permanent")
	})
	assert.EqualError(t, err, "permanent")
	assert.Equal(t, 2, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = withRetry(ctx, 5, time.Hour, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
}
