package model

// DecodeError records a chain log that could not be turned into an engine operation.
type DecodeError struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	Topic0      string `json:"topic0"`
	Stage       string `json:"stage"`
	Error       string `json:"error"`
}

// Stages at which a chain log can be rejected.
const (
	StageDecode    = "decode"
	StageTransform = "transform"
)
