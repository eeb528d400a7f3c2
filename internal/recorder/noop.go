package recorder

import (
	"context"

	"SignalSentinel/internal/model"
)

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordSignal(context.Context, *model.Signal) error           { return nil }
func (n *NoopRecorder) RecordLifecycle(context.Context, model.LifecycleEvent) error { return nil }
func (n *NoopRecorder) RecordOutcome(context.Context, model.OutcomeRecord) error    { return nil }
func (n *NoopRecorder) RecordRegime(context.Context, model.DominanceReading) error  { return nil }
func (n *NoopRecorder) Close() error                                                { return nil }

func (n *NoopRecorder) LoadOutcomes(context.Context, int) ([]model.OutcomeRecord, error) {
	return nil, nil
}
