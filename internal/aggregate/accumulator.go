package aggregate

import (
	"fmt"
	"math/big"

	"liquidityEngine/internal/model"
)

// Accumulator holds the journal totals of one pool window.
type Accumulator struct {
	PoolID      string
	WindowStart uint64
	WindowEnd   uint64

	SwapCount        uint64
	FailedCount      uint64
	Crossings        uint64
	LiquidityAdds    uint64
	LiquidityRemoves uint64

	VolumeA *big.Int
	VolumeB *big.Int
	FeeA    *big.Int
	FeeB    *big.Int

	// Post-state of the latest record in the window.
	LastTS    uint64
	ReserveA  string
	ReserveB  string
	SqrtPrice string
}

func NewAccumulator(poolID string, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		PoolID:      poolID,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		VolumeA:     big.NewInt(0),
		VolumeB:     big.NewInt(0),
		FeeA:        big.NewInt(0),
		FeeB:        big.NewInt(0),
	}
}

// Add folds one journal record into the window.
func (a *Accumulator) Add(record model.OperationRecord) error {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
		a.ReserveA = record.ReserveA
		a.ReserveB = record.ReserveB
		a.SqrtPrice = record.SqrtPrice
	}
	if record.Failed() {
		a.FailedCount++
		return nil
	}

	switch record.Op {
	case model.OpSwap:
		for _, f := range []struct {
			target *big.Int
			value  string
		}{
			{a.VolumeA, record.AmountA},
			{a.VolumeB, record.AmountB},
			{a.FeeA, record.FeeA},
			{a.FeeB, record.FeeB},
		} {
			v, err := parseBigInt(f.value)
			if err != nil {
				return fmt.Errorf("swap %s: %w", record.ID, err)
			}
			f.target.Add(f.target, v)
		}
		a.SwapCount++
		a.Crossings += uint64(record.Crossings)
	case model.OpAdd:
		a.LiquidityAdds++
	case model.OpRemove:
		a.LiquidityRemoves++
	}
	return nil
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}
	return parsed, nil
}
