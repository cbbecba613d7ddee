package model

import "fmt"

// LogRecord is the normalized representation of a chain log.
type LogRecord struct {
	ChainID     uint64   `json:"chain_id"`
	BlockNumber uint64   `json:"block_number"`
	BlockHash   string   `json:"block_hash"`
	TxHash      string   `json:"tx_hash"`
	TxIndex     uint64   `json:"tx_index"`
	LogIndex    uint64   `json:"log_index"`
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	Removed     bool     `json:"removed"`
	Timestamp   uint64   `json:"timestamp"`
}

// ID identifies the log within its chain.
func (lr LogRecord) ID() string {
	return fmt.Sprintf("%d:%s:%d", lr.BlockNumber, lr.TxHash, lr.LogIndex)
}

// Ref returns the chain reference carried into engine operations.
func (lr LogRecord) Ref() *ChainRef {
	return &ChainRef{
		ChainID:     lr.ChainID,
		BlockNumber: lr.BlockNumber,
		TxHash:      lr.TxHash,
		LogIndex:    lr.LogIndex,
	}
}
