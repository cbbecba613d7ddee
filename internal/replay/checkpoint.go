package replay

import (
	"context"

	"liquidityEngine/internal/storage"
)

// Checkpointer persists the last fully replayed block.
type Checkpointer interface {
	Load(ctx context.Context) (uint64, bool, error)
	Save(ctx context.Context, lastProcessed uint64) error
}

var (
	_ Checkpointer = (*storage.StateFile)(nil)
	_ Checkpointer = storage.StateRow{}
)
