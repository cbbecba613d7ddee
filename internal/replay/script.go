package replay

import (
	"context"

	"go.uber.org/zap"

	"liquidityEngine/internal/model"
	"liquidityEngine/internal/storage"
)

// ScriptSummary counts the outcomes of a scripted run.
type ScriptSummary struct {
	Applied int
	Failed  int
	// Kinds counts failures by error kind.
	Kinds map[string]int
}

// RunScript applies reqs in order and journals every record in one batch.
// Rejected requests do not stop the run; a cancelled context does.
func RunScript(ctx context.Context, applier *Applier, reqs []model.OperationRequest, journal storage.Journal, logger *zap.Logger) (ScriptSummary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	summary := ScriptSummary{Kinds: make(map[string]int)}
	records := make([]model.OperationRecord, 0, len(reqs))
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		record := applier.Apply(ctx, req)
		records = append(records, record)
		if record.Failed() {
			summary.Failed++
			summary.Kinds[record.ErrorKind]++
			logger.Info("request rejected", zap.Int("index", i), zap.String("op", req.Op), zap.String("kind", record.ErrorKind), zap.String("error", record.Error))
			continue
		}
		summary.Applied++
	}
	if journal != nil {
		if err := journal.PutOperationBatch(records); err != nil {
			return summary, err
		}
	}
	return summary, nil
}
