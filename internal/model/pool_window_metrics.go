package model

import "time"

// PoolWindowMetrics stores aggregated journal metrics for a pool window.
type PoolWindowMetrics struct {
	PoolID           string
	WindowSizeSecs   int64
	WindowStart      time.Time
	WindowEnd        time.Time
	SwapCount        uint64
	FailedCount      uint64
	Crossings        uint64
	LiquidityAdds    uint64
	LiquidityRemoves uint64
	VolumeA          string
	VolumeB          string
	FeeA             string
	FeeB             string
	FeeRateA         *string
	FeeRateB         *string
	TVLA             *string
	TVLB             *string
	APR              *string
	ClosePrice       *string
}
