package domain

import "time"

// Phase is the coarse position of a load session in the state machine.
type Phase string

const (
	PhasePreload Phase = "PRELOAD" // Nothing started yet
	PhaseWait    Phase = "WAIT"    // Fetch in flight, timer armed
	PhaseReady   Phase = "READY"   // Terminal: a variant is assigned and exposed
)

// LoadState is the snapshot of one load session.
// It is owned by a single controller and never shared across mounted contexts.
type LoadState struct {
	Phase            Phase     `json:"phase"`
	LoadStart        time.Time `json:"load_start"`
	LoadEnd          time.Time `json:"load_end,omitempty"`
	TimedOut         bool      `json:"timed_out"`
	ExposureRecorded bool      `json:"exposure_recorded"`
	RenderCount      int       `json:"render_count"`
}

// NewLoadState creates a clean state in PRELOAD.
func NewLoadState(now time.Time) LoadState {
	return LoadState{
		Phase:     PhasePreload,
		LoadStart: now,
	}
}

// Duration is the time spent loading, or zero while the load is still open.
func (s LoadState) Duration() time.Duration {
	if s.LoadEnd.IsZero() {
		return 0
	}
	return s.LoadEnd.Sub(s.LoadStart)
}

// Ready reports whether the terminal phase was reached.
func (s LoadState) Ready() bool {
	return s.Phase == PhaseReady
}
