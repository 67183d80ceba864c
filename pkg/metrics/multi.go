package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/aretw0/bandit/pkg/domain"
	"github.com/aretw0/bandit/pkg/ports"
)

// Multi fans out to several sinks. Nil entries are skipped.
type Multi []ports.MetricsSink

func (m Multi) SinkEvent(snap domain.Snapshot, name string) {
	for _, s := range m {
		if s != nil {
			s.SinkEvent(snap, name)
		}
	}
}

// Flush flushes every sink and joins their errors.
func (m Multi) Flush(ctx context.Context, final bool) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Flush(ctx, final); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ObserveLoad forwards to the sinks that implement ports.LoadObserver.
func (m Multi) ObserveLoad(site, outcome string, d time.Duration) {
	for _, s := range m {
		if o, ok := s.(ports.LoadObserver); ok {
			o.ObserveLoad(site, outcome, d)
		}
	}
}
