package recorder

import (
	"context"

	"SignalSentinel/internal/model"
)

// Recorder persists emitted signals, their lifecycle and regime history for analysis.
// Outcomes double as the training history of the probability estimator.
type Recorder interface {
	RecordSignal(ctx context.Context, sig *model.Signal) error
	RecordLifecycle(ctx context.Context, evt model.LifecycleEvent) error
	RecordOutcome(ctx context.Context, out model.OutcomeRecord) error
	RecordRegime(ctx context.Context, r model.DominanceReading) error
	// LoadOutcomes returns up to limit most recent outcomes, oldest first. limit <= 0 loads all.
	LoadOutcomes(ctx context.Context, limit int) ([]model.OutcomeRecord, error)
	Close() error
}
