package postgres

import (
	"context"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"liquidityEngine/internal/model"
)

// openTestStore connects to CLMM_TEST_PG_DSN or skips.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("CLMM_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("CLMM_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

func TestNewStoreRequiresDSN(t *testing.T) {
	if _, err := NewStore(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestNullable(t *testing.T) {
	if nullable("") != nil {
		t.Fatalf("empty string should map to NULL")
	}
	if v := nullable("42"); v == nil || *v != "42" {
		t.Fatalf("unexpected value %v", v)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	poolID := "0x" + uuid.NewString()

	snap := model.PoolSnapshot{
		Pool: model.PoolRecord{
			PoolID: poolID, AssetA: "0xaa", AssetB: "0xbb", Seed: 18446744073709551615,
			TickSpacing: 10, FeeBps: 30, MaxLiquidityPerTick: "1917569901783203986719870431555990",
			SqrtPrice: "18446744073709551616", Tick: 0, Liquidity: "1000000",
			FeeGrowthGlobalA: "0", FeeGrowthGlobalB: "0", FeesA: "0", FeesB: "0",
			ReserveA: "4988", ReserveB: "4988",
		},
		Ticks: []model.TickRecord{
			{Tick: -100, LiquidityGross: "1000000", LiquidityNet: "1000000", FeeGrowthOutsideA: "0", FeeGrowthOutsideB: "0"},
			{Tick: 100, LiquidityGross: "1000000", LiquidityNet: "-1000000", FeeGrowthOutsideA: "0", FeeGrowthOutsideB: "0"},
		},
		Positions: []model.PositionRecord{
			{Owner: "0x01", TickLower: -100, TickUpper: 100, Liquidity: "1000000",
				FeeGrowthInsideLastA: "0", FeeGrowthInsideLastB: "0", TokensOwedA: "0", TokensOwedB: "0"},
		},
	}
	if err := s.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap.Ticks = snap.Ticks[:1]
	if err := s.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("resave: %v", err)
	}

	got, ok, err := s.LoadSnapshot(ctx, poolID)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, snap) {
		t.Fatalf("snapshot mismatch:\n got %+v\nwant %+v", got, snap)
	}

	if _, ok, err := s.LoadSnapshot(ctx, "0xmissing"); err != nil || ok {
		t.Fatalf("missing pool: ok=%v err=%v", ok, err)
	}
}

func TestOperationsAndState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	records := []model.OperationRecord{
		{ID: uuid.NewString(), PoolID: "0xpool", Op: model.OpSwap, AmountIn: "1000", AmountOut: "996",
			SqrtPrice: "18428370987834680440", Tick: -20, ActiveLiquidity: "1000000", Timestamp: 1},
		{ID: uuid.NewString(), PoolID: "0xpool", Op: model.OpSwap, ErrorKind: "SlippageExceeded", Timestamp: 2,
			Chain: &model.ChainRef{ChainID: 56, BlockNumber: 10, TxHash: "0xabc", LogIndex: 3}},
	}
	if err := s.Journal(ctx).PutOperationBatch(records); err != nil {
		t.Fatalf("journal: %v", err)
	}
	if err := s.UpsertOperations(ctx, records); err != nil {
		t.Fatalf("duplicate ids should be ignored: %v", err)
	}

	name := "test-" + uuid.NewString()
	if _, ok, err := s.LoadState(ctx, name); err != nil || ok {
		t.Fatalf("fresh state: ok=%v err=%v", ok, err)
	}
	if err := s.SaveState(ctx, name, 42); err != nil {
		t.Fatalf("save state: %v", err)
	}
	if last, ok, err := s.LoadState(ctx, name); err != nil || !ok || last != 42 {
		t.Fatalf("load state: last=%d ok=%v err=%v", last, ok, err)
	}

	apr := "0.12"
	err := s.UpsertWindowMetrics(ctx, []model.PoolWindowMetrics{{
		PoolID: "0xpool", WindowSizeSecs: 3600,
		WindowStart: time.Unix(0, 0).UTC(), WindowEnd: time.Unix(3600, 0).UTC(),
		SwapCount: 1, VolumeA: "1000", VolumeB: "0", FeeA: "3", FeeB: "0", APR: &apr,
	}})
	if err != nil {
		t.Fatalf("window metrics: %v", err)
	}
}
