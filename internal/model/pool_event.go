package model

// PoolEvent is a decoded V3 pool event enriched with pool metadata.
type PoolEvent struct {
	ChainID     uint64      `json:"chain_id"`
	BlockNumber uint64      `json:"block_number"`
	BlockHash   string      `json:"block_hash"`
	TxHash      string      `json:"tx_hash"`
	LogIndex    uint64      `json:"log_index"`
	Address     string      `json:"address"`
	EventName   string      `json:"event_name"`
	Timestamp   uint64      `json:"timestamp"`
	Decoded     interface{} `json:"decoded"`
	PoolMeta    PoolMeta    `json:"pool_meta"`
	Raw         *RawLogRef  `json:"raw,omitempty"`
}

// RawLogRef keeps a minimal raw reference for traceability.
type RawLogRef struct {
	Topic0 string `json:"topic0"`
	Data   string `json:"data"`
}

// Ref returns the chain reference of the event.
func (e PoolEvent) Ref() *ChainRef {
	return &ChainRef{
		ChainID:     e.ChainID,
		BlockNumber: e.BlockNumber,
		TxHash:      e.TxHash,
		LogIndex:    e.LogIndex,
	}
}
