package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/spf13/pflag"

	"liquidityEngine/internal/fixedpoint"
)

const (
	testAssetA = "0x00000000000000000000000000000000000000a1"
	testAssetB = "0x00000000000000000000000000000000000000b2"
)

func poolFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("asset-a", "", "")
	flags.String("asset-b", "", "")
	flags.String("price", "", "")
	flags.String("sqrt-price", "", "")
	flags.Int32("tick-spacing", 10, "")
	flags.Uint32("fee-bps", 30, "")
	flags.Int("max-steps", 0, "")
	if err := flags.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return flags
}

func TestLoadFromFlagsAndDefaults(t *testing.T) {
	flags := poolFlags(t, "--asset-a="+testAssetA, "--asset-b="+testAssetB, "--price=4", "--tick-spacing=60")
	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Journal != "./data/journal.jsonl" || cfg.Snapshot != "./data/snapshot.json" {
		t.Fatalf("unexpected default paths: %+v", cfg)
	}
	if !cfg.AutoFund {
		t.Fatalf("auto-fund should default to true")
	}
	if cfg.Pool.TickSpacing != 60 || cfg.Pool.FeeBps != 30 {
		t.Fatalf("unexpected pool params: %+v", cfg.Pool)
	}

	poolCfg, err := cfg.Pool.Build(cfg.MaxSteps)
	if err != nil {
		t.Fatalf("build pool config: %v", err)
	}
	want := new(uint256.Int).Lsh(fixedpoint.Q64, 1)
	if !poolCfg.InitialSqrtPrice.Eq(want) {
		t.Fatalf("sqrt price %s, want %s", poolCfg.InitialSqrtPrice.Dec(), want.Dec())
	}
	if poolCfg.AssetA.Hex() != "0x00000000000000000000000000000000000000A1" {
		t.Fatalf("unexpected asset a: %s", poolCfg.AssetA.Hex())
	}
}

func TestLoadReadsConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clmm.yaml")
	body := "asset-a: \"" + testAssetA + "\"\n" +
		"asset-b: \"" + testAssetB + "\"\n" +
		"sqrt-price: \"18446744073709551616\"\n" +
		"fee-bps: 5\n" +
		"scenario: ./scenario.jsonl\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CLMM_MAX_STEPS", "7")

	cfg, err := Load(path, poolFlags(t, "--fee-bps=1"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scenario != "./scenario.jsonl" {
		t.Fatalf("scenario from file not read: %q", cfg.Scenario)
	}
	if cfg.MaxSteps != 7 {
		t.Fatalf("max steps from env: got %d", cfg.MaxSteps)
	}
	if cfg.Pool.FeeBps != 1 {
		t.Fatalf("flag should override file: fee %d", cfg.Pool.FeeBps)
	}

	poolCfg, err := cfg.Pool.Build(cfg.MaxSteps)
	if err != nil {
		t.Fatalf("build pool config: %v", err)
	}
	if !poolCfg.InitialSqrtPrice.Eq(fixedpoint.Q64) {
		t.Fatalf("sqrt price should take precedence over the default price: %s", poolCfg.InitialSqrtPrice.Dec())
	}
	if poolCfg.MaxSteps != 7 {
		t.Fatalf("max steps not carried: %d", poolCfg.MaxSteps)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for a missing explicit config file")
	}
}

func TestPoolConfigBuildRejects(t *testing.T) {
	valid := PoolConfig{AssetA: testAssetA, AssetB: testAssetB, Price: "1", TickSpacing: 10, FeeBps: 30}
	cases := map[string]func(c *PoolConfig){
		"missing asset":    func(c *PoolConfig) { c.AssetA = "" },
		"bad asset":        func(c *PoolConfig) { c.AssetB = "0x1234" },
		"bad price":        func(c *PoolConfig) { c.Price = "abc" },
		"zero price":       func(c *PoolConfig) { c.Price = "0" },
		"no price":         func(c *PoolConfig) { c.Price = "" },
		"bad sqrt price":   func(c *PoolConfig) { c.SqrtPrice = "0x10" },
		"bad max per tick": func(c *PoolConfig) { c.MaxLiquidityPerTick = "5e3" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			if _, err := cfg.Build(0); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	if _, err := valid.Build(0); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestLoadReplay(t *testing.T) {
	flags := pflag.NewFlagSet("replay", pflag.ContinueOnError)
	flags.String("topic0-map", "", "")
	flags.String("pool", "", "")
	if err := flags.Parse([]string{"--topic0-map= 0xaa=Swap, 0xbb = Mint,broken", "--pool=0xpool"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := LoadReplay("", flags)
	if err != nil {
		t.Fatalf("load replay: %v", err)
	}
	want := map[string]string{"0xaa": "Swap", "0xbb": "Mint"}
	if !reflect.DeepEqual(cfg.Topic0Map, want) {
		t.Fatalf("topic0 map %v, want %v", cfg.Topic0Map, want)
	}
	if cfg.Pool != "0xpool" || cfg.BatchSize != 2000 || !cfg.CheckpointEnabled {
		t.Fatalf("unexpected replay config: %+v", cfg)
	}
	if cfg.RetryBackoff != 500*time.Millisecond || cfg.MaxRetries != 5 {
		t.Fatalf("unexpected retry settings: %v %d", cfg.RetryBackoff, cfg.MaxRetries)
	}
}

func TestLoadAggregate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aggregate.yaml")
	body := "in: ./journal.jsonl\n" +
		"token-decimals:\n" +
		"  \"" + testAssetA + "\": 6\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CLMM_SNAPSHOT", "a.json, b.json")

	cfg, err := LoadAggregate(path, nil)
	if err != nil {
		t.Fatalf("load aggregate: %v", err)
	}
	if cfg.Input != "./journal.jsonl" || cfg.Window != "5m" || cfg.BatchSize != 1000 {
		t.Fatalf("unexpected aggregate config: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Snapshots, []string{"a.json", "b.json"}) {
		t.Fatalf("snapshots: %v", cfg.Snapshots)
	}
	if got := cfg.TokenDecimals[testAssetA]; got != "6" {
		t.Fatalf("token decimals: %v", cfg.TokenDecimals)
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "1700000000", want: 1700000000},
		{in: "2024-01-01T00:00:00Z", want: 1704067200},
		{in: "yesterday", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseTimestamp(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%q: got %d want %d", tc.in, got, tc.want)
		}
	}
}
