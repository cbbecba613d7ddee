package model

// PoolSnapshot is the persisted state of one pool.
type PoolSnapshot struct {
	Pool      PoolRecord       `json:"pool"`
	Ticks     []TickRecord     `json:"ticks"`
	Positions []PositionRecord `json:"positions"`
}

// PoolRecord holds pool-level state. Integers are decimal strings.
type PoolRecord struct {
	PoolID              string `json:"pool_id"`
	AssetA              string `json:"asset_a"`
	AssetB              string `json:"asset_b"`
	Seed                uint64 `json:"seed"`
	TickSpacing         int32  `json:"tick_spacing"`
	FeeBps              uint32 `json:"fee_bps"`
	MaxLiquidityPerTick string `json:"max_liquidity_per_tick"`
	SqrtPrice           string `json:"sqrt_price"`
	Tick                int32  `json:"tick"`
	Liquidity           string `json:"liquidity"`
	FeeGrowthGlobalA    string `json:"fee_growth_global_a"`
	FeeGrowthGlobalB    string `json:"fee_growth_global_b"`
	FeesA               string `json:"fees_a"`
	FeesB               string `json:"fees_b"`
	ReserveA            string `json:"reserve_a"`
	ReserveB            string `json:"reserve_b"`
}

// TickRecord holds one initialized tick.
type TickRecord struct {
	Tick              int32  `json:"tick"`
	LiquidityGross    string `json:"liquidity_gross"`
	LiquidityNet      string `json:"liquidity_net"`
	FeeGrowthOutsideA string `json:"fee_growth_outside_a"`
	FeeGrowthOutsideB string `json:"fee_growth_outside_b"`
}

// PositionRecord holds one liquidity position.
type PositionRecord struct {
	Owner                string `json:"owner"`
	TickLower            int32  `json:"tick_lower"`
	TickUpper            int32  `json:"tick_upper"`
	Liquidity            string `json:"liquidity"`
	FeeGrowthInsideLastA string `json:"fee_growth_inside_last_a"`
	FeeGrowthInsideLastB string `json:"fee_growth_inside_last_b"`
	TokensOwedA          string `json:"tokens_owed_a"`
	TokensOwedB          string `json:"tokens_owed_b"`
}
