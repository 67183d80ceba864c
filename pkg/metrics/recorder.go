package metrics

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/bandit/pkg/domain"
)

// Recorder keeps every event in memory.
type Recorder struct {
	mu      sync.Mutex
	events  []domain.MetricEvent
	flushes int
	final   bool
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) SinkEvent(snap domain.Snapshot, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, domain.NewMetricEvent(snap, name, time.Now()))
}

func (r *Recorder) Flush(ctx context.Context, final bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	r.final = r.final || final
	return nil
}

// WriteEvents lets a Recorder stand in for a ports.EventWriter.
func (r *Recorder) WriteEvents(ctx context.Context, events []domain.MetricEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []domain.MetricEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Count returns how many events with the given name were recorded.
func (r *Recorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

// Flushes returns the number of Flush calls and whether one was final.
func (r *Recorder) Flushes() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes, r.final
}
