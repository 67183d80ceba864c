package ports

import (
	"context"

	"github.com/aretw0/bandit/pkg/domain"
)

// MetricsSink receives signals from mounted contexts.
// SinkEvent must not block the caller; implementations queue or count.
type MetricsSink interface {
	SinkEvent(snap domain.Snapshot, name string)

	// Flush pushes queued events. final marks the last flush before unload;
	// sinks may stop accepting events afterwards.
	Flush(ctx context.Context, final bool) error
}

// EventWriter stores a batch of metric events.
type EventWriter interface {
	WriteEvents(ctx context.Context, events []domain.MetricEvent) error
}
