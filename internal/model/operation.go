package model

// Operation names shared by requests and journal records.
const (
	OpInitialize = "initialize"
	OpAdd        = "add"
	OpRemove     = "remove"
	OpCollect    = "collect"
	OpSwap       = "swap"
)

// ChainRef points back at the chain log an operation was replayed from.
type ChainRef struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
}

// OperationRequest is one scripted or replayed engine call. Amounts are
// decimal strings; an empty limit means none. SqrtPrice is the Q64.64 start
// price of an initialize request.
type OperationRequest struct {
	Op             string    `json:"op"`
	Owner          string    `json:"owner,omitempty"`
	SqrtPrice      string    `json:"sqrt_price,omitempty"`
	TickLower      int32     `json:"tick_lower,omitempty"`
	TickUpper      int32     `json:"tick_upper,omitempty"`
	Liquidity      string    `json:"liquidity,omitempty"`
	AmountIn       string    `json:"amount_in,omitempty"`
	Direction      string    `json:"direction,omitempty"`
	SqrtPriceLimit string    `json:"sqrt_price_limit,omitempty"`
	MinAmountOut   string    `json:"min_amount_out,omitempty"`
	Timestamp      uint64    `json:"timestamp,omitempty"`
	Chain          *ChainRef `json:"chain,omitempty"`
}

// OperationRecord is the journal entry written for every applied request,
// successful or not. Post-state fields describe the pool after the call.
type OperationRecord struct {
	ID        string `json:"id"`
	PoolID    string `json:"pool_id"`
	Op        string `json:"op"`
	Owner     string `json:"owner,omitempty"`
	TickLower int32  `json:"tick_lower,omitempty"`
	TickUpper int32  `json:"tick_upper,omitempty"`
	Liquidity string `json:"liquidity,omitempty"`
	Direction string `json:"direction,omitempty"`

	AmountIn  string `json:"amount_in,omitempty"`
	AmountOut string `json:"amount_out,omitempty"`
	AmountA   string `json:"amount_a,omitempty"`
	AmountB   string `json:"amount_b,omitempty"`
	FeeA      string `json:"fee_a,omitempty"`
	FeeB      string `json:"fee_b,omitempty"`
	Crossings int    `json:"crossings,omitempty"`

	PriceLimitReached  bool `json:"price_limit_reached,omitempty"`
	LiquidityExhausted bool `json:"liquidity_exhausted,omitempty"`
	StepLimitReached   bool `json:"step_limit_reached,omitempty"`

	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`

	SqrtPrice       string `json:"sqrt_price"`
	Tick            int32  `json:"tick"`
	ActiveLiquidity string `json:"active_liquidity"`
	ReserveA        string `json:"reserve_a"`
	ReserveB        string `json:"reserve_b"`

	Timestamp uint64    `json:"timestamp"`
	Chain     *ChainRef `json:"chain,omitempty"`
}

// Failed reports whether the operation was rejected.
func (r OperationRecord) Failed() bool {
	return r.ErrorKind != ""
}
